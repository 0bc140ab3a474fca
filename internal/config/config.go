package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultTimeout = 30 * time.Second

type Config struct {
	DBPath        string   `yaml:"db_path"`
	DefaultServer string   `yaml:"default_server,omitempty"`
	Timeout       Duration `yaml:"timeout,omitempty"`
	Output        Output   `yaml:"output,omitempty"`
}

type Output struct {
	JSON bool `yaml:"json,omitempty"`
}

// Duration accepts Go duration strings ("45s") or a bare number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	value := strings.TrimSpace(node.Value)
	if value == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}

func DefaultConfigPath() string {
	if envPath := strings.TrimSpace(os.Getenv("ASTRBOT_CONFIG")); envPath != "" {
		return envPath
	}
	return filepath.Join(xdgConfigHome(), "astrbot", "config.yaml")
}

func DefaultDBPath() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); dir != "" {
		return filepath.Join(dir, "astrbot", "astrbot.db")
	}
	return filepath.Join(homeDir(), ".local", "share", "astrbot", "astrbot.db")
}

// ServerOverride and TokenOverride let scripts bypass the saved login.
func ServerOverride() string {
	return strings.TrimSpace(os.Getenv("ASTRBOT_SERVER"))
}

func TokenOverride() string {
	return strings.TrimSpace(os.Getenv("ASTRBOT_TOKEN"))
}

func xdgConfigHome() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".config")
}

func homeDir() string {
	if home := strings.TrimSpace(os.Getenv("HOME")); home != "" {
		return home
	}
	if home := strings.TrimSpace(os.Getenv("USERPROFILE")); home != "" {
		return home
	}
	return "/tmp/astrbot-" + strconv.Itoa(os.Getuid())
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.DBPath = os.ExpandEnv(cfg.DBPath)
	cfg.DefaultServer = os.ExpandEnv(cfg.DefaultServer)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := validate(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0o600); err != nil {
		return err
	}
	if _, err := Load(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("resulting config is invalid: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func LoadOrInit(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = &Config{
		DBPath:  DefaultDBPath(),
		Timeout: Duration(DefaultTimeout),
	}
	if err := Save(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = Duration(DefaultTimeout)
	}
}

func validate(cfg *Config) error {
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout.Std())
	}
	if cfg.DefaultServer != "" {
		if err := ValidateServerURL(cfg.DefaultServer); err != nil {
			return fmt.Errorf("default_server: %w", err)
		}
	}
	return nil
}

// ValidateServerURL requires an absolute http(s) URL with a host.
func ValidateServerURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server url %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("server url %q is missing a host", raw)
	}
	return nil
}
