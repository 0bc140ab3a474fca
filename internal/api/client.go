package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

const defaultTimeout = 30 * time.Second

// HistoryRecorder receives one entry per completed request.
type HistoryRecorder interface {
	InsertHistory(item protocol.HistoryItem) error
}

// CredentialStore persists the login produced by Login.
type CredentialStore interface {
	LoadCredentials() (protocol.Credentials, error)
	SaveCredentials(creds protocol.Credentials) error
}

// Config holds everything needed to build a Client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:6185". A trailing
	// slash is stripped.
	BaseURL string
	// Token is sent as a bearer token on every request except Login.
	Token string
	// HTTPClient is used for request/response calls. If nil, a client with
	// Timeout is created. The live log stream always uses a copy of it
	// without a timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
	// Logger receives request diagnostics at debug level. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
	// Recorder is optional.
	Recorder HistoryRecorder
}

// Client talks to one AstrBot dashboard API. It is immutable after New.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
	recorder     HistoryRecorder
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api: server url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	streamClient := *httpClient
	streamClient.Timeout = 0

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:      base,
		token:        strings.TrimSpace(cfg.Token),
		httpClient:   httpClient,
		streamClient: &streamClient,
		logger:       logger,
		recorder:     cfg.Recorder,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListPlugins returns the installed plugins. A null payload yields an
// empty slice.
func (c *Client) ListPlugins(ctx context.Context) ([]protocol.Plugin, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/plugin/get", nil, "")
	if err != nil {
		return nil, err
	}
	env, err := roundTrip[[]protocol.Plugin](c, req)
	if err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []protocol.Plugin{}, nil
	}
	return *env.Data, nil
}

// InstallPluginFromUpload uploads a local plugin archive and returns the
// server's status message.
func (c *Client) InstallPluginFromUpload(ctx context.Context, archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open plugin archive: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(archivePath))
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read plugin archive: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/plugin/install-upload", &body, form.FormDataContentType())
	if err != nil {
		return "", err
	}
	return c.messageCall(req)
}

// InstallPluginFromURL asks the server to fetch and install a plugin
// repository.
func (c *Client) InstallPluginFromURL(ctx context.Context, repoURL string) (string, error) {
	if strings.TrimSpace(repoURL) == "" {
		return "", errors.New("plugin url is required")
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/api/plugin/install", protocol.InstallURLRequest{
		Proxy: "",
		URL:   repoURL,
	})
	if err != nil {
		return "", err
	}
	return c.messageCall(req)
}

// PluginAction enables, disables, reloads or uninstalls a plugin.
func (c *Client) PluginAction(ctx context.Context, pluginName string, action protocol.PluginAction) (string, error) {
	if !action.Valid() {
		return "", fmt.Errorf("unsupported plugin action %q", action)
	}
	if strings.TrimSpace(pluginName) == "" {
		return "", errors.New("plugin name is required")
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/api/plugin/"+action.String(), protocol.PluginNameRequest{Name: pluginName})
	if err != nil {
		return "", err
	}
	return c.messageCall(req)
}

func (c *Client) GetStat(ctx context.Context) (*protocol.Stat, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/stat/get", nil, "")
	if err != nil {
		return nil, err
	}
	env, err := roundTrip[protocol.Stat](c, req)
	if err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, ErrMissingData
	}
	return env.Data, nil
}

func (c *Client) GetLogHistory(ctx context.Context) (*protocol.LogHistory, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/log-history", nil, "")
	if err != nil {
		return nil, err
	}
	env, err := roundTrip[protocol.LogHistory](c, req)
	if err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, ErrMissingData
	}
	return env.Data, nil
}

// messageCall is for endpoints that report their outcome in message
// rather than data.
func (c *Client) messageCall(req *http.Request) (string, error) {
	env, err := roundTrip[noPayload](c, req)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// noPayload accepts any JSON value for endpoints whose data is ignored.
type noPayload struct{}

func (*noPayload) UnmarshalJSON([]byte) error {
	return nil
}
