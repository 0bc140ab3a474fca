package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/prbarcelon/astrbotctl/internal/api"
	"github.com/prbarcelon/astrbotctl/internal/config"
	"github.com/prbarcelon/astrbotctl/internal/protocol"
	"github.com/prbarcelon/astrbotctl/internal/store"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// runtime carries per-invocation state shared by all commands.
type runtime struct {
	stdout io.Writer
	stderr io.Writer
	stdin  *os.File

	configPath string
	verbose    bool
	jsonOut    bool

	logger *slog.Logger
	cfg    *config.Config
	store  *store.Store
	styles styles
}

// Run executes the astrbot command line and returns the process exit code.
func Run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	rt := &runtime{stdout: stdout, stderr: stderr, stdin: os.Stdin}
	defer rt.close()

	root := newRootCommand(rt)
	root.SetArgs(argv)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "astrbot",
		Short:         "Command line client for the AstrBot dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.setup(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.BoolVarP(&rt.verbose, "verbose", "v", false, "print request diagnostics")
	flags.StringVar(&rt.configPath, "config", config.DefaultConfigPath(), "config file path")
	flags.BoolVar(&rt.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newLoginCommand(rt),
		newLogoutCommand(rt),
		newWhoamiCommand(rt),
		newPluginCommand(rt),
		newStatCommand(rt),
		newLogCommand(rt),
		newHistoryCommand(rt),
		newVersionCommand(rt),
	)
	return root
}

func (rt *runtime) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if rt.verbose {
		level = slog.LevelDebug
	}
	rt.logger = slog.New(slog.NewTextHandler(rt.stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	rt.styles = newStyles(lipgloss.NewRenderer(rt.stdout))

	cfg, err := config.LoadOrInit(rt.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", rt.configPath, err)
	}
	rt.cfg = cfg
	if cfg.Output.JSON && !cmd.Flags().Changed("json") {
		rt.jsonOut = true
	}
	rt.logger.Debug("config loaded", "path", rt.configPath, "db", cfg.DBPath)
	return nil
}

func (rt *runtime) openStore() (*store.Store, error) {
	if rt.store != nil {
		return rt.store, nil
	}
	st, err := store.Open(rt.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	rt.store = st
	return st, nil
}

func (rt *runtime) close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
}

// credentials resolves the saved login, with ASTRBOT_SERVER and
// ASTRBOT_TOKEN taking precedence over what is stored.
func (rt *runtime) credentials() (protocol.Credentials, error) {
	server, token := config.ServerOverride(), config.TokenOverride()
	if server != "" && token != "" {
		return protocol.Credentials{Token: token, ServerURL: server}, nil
	}
	st, err := rt.openStore()
	if err != nil {
		return protocol.Credentials{}, err
	}
	creds, err := st.LoadCredentials()
	if err != nil {
		if errors.Is(err, store.ErrNoCredentials) {
			return creds, err
		}
		return creds, fmt.Errorf("load credentials: %w", err)
	}
	if server != "" {
		creds.ServerURL = server
	}
	if token != "" {
		creds.Token = token
	}
	return creds, nil
}

func (rt *runtime) newClient(serverURL, token string) (*api.Client, error) {
	cfg := api.Config{
		BaseURL: serverURL,
		Token:   token,
		Timeout: rt.cfg.Timeout.Std(),
		Logger:  rt.logger,
	}
	if st, err := rt.openStore(); err == nil {
		cfg.Recorder = st
	} else {
		rt.logger.Warn("request history disabled", "error", err)
	}
	return api.New(cfg)
}

// authedClient builds a client from the saved login.
func (rt *runtime) authedClient() (*api.Client, error) {
	creds, err := rt.credentials()
	if err != nil {
		return nil, err
	}
	return rt.newClient(creds.ServerURL, creds.Token)
}

func (rt *runtime) printJSON(v any) error {
	enc := json.NewEncoder(rt.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
