package mockserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prbarcelon/astrbotctl/internal/api"
	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	opts.Logger = quietLogger()
	s := New(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func newClient(t *testing.T, baseURL, token string) *api.Client {
	t.Helper()
	c, err := api.New(api.Config{BaseURL: baseURL, Token: token, Logger: quietLogger(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return c
}

func TestLoginIssuesUsableToken(t *testing.T) {
	_, ts := startServer(t, Options{Username: "admin", Password: "secret"})

	data, err := newClient(t, ts.URL, "").Login(context.Background(), "admin", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if data.Token == "" || data.Username != "admin" {
		t.Fatalf("unexpected login data %+v", data)
	}

	plugins, err := newClient(t, ts.URL, data.Token).ListPlugins(context.Background())
	if err != nil {
		t.Fatalf("ListPlugins: %v", err)
	}
	if len(plugins) != 2 {
		t.Errorf("expected seeded plugins, got %d", len(plugins))
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	_, ts := startServer(t, Options{})
	_, err := newClient(t, ts.URL, "").Login(context.Background(), "astrbot", "nope")
	var authErr *api.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Message != "invalid username or password" {
		t.Errorf("unexpected message %q", authErr.Message)
	}
}

func TestUnauthorizedRequest(t *testing.T) {
	_, ts := startServer(t, Options{})
	_, err := newClient(t, ts.URL, "bogus").GetStat(context.Background())
	var terr *api.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.StatusCode != http.StatusUnauthorized || !strings.Contains(terr.Body, "unauthorized") {
		t.Errorf("unexpected transport error %+v", terr)
	}
}

func TestPluginLifecycle(t *testing.T) {
	s, ts := startServer(t, Options{})
	c := newClient(t, ts.URL, s.IssueToken("astrbot"))
	ctx := context.Background()

	msg, err := c.InstallPluginFromURL(ctx, "https://github.com/example/astrbot_plugin_weather.git")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if msg != "installed plugin astrbot_plugin_weather" {
		t.Errorf("unexpected message %q", msg)
	}

	if _, err := c.PluginAction(ctx, "astrbot_plugin_weather", protocol.ActionOff); err != nil {
		t.Fatalf("off: %v", err)
	}
	if p := findPlugin(s.Plugins(), "astrbot_plugin_weather"); p == nil || p.Activated {
		t.Fatalf("expected deactivated plugin, got %+v", p)
	}

	if _, err := c.PluginAction(ctx, "astrbot_plugin_weather", protocol.ActionUninstall); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if findPlugin(s.Plugins(), "astrbot_plugin_weather") != nil {
		t.Error("expected plugin removed")
	}

	_, err = c.PluginAction(ctx, "missing", protocol.ActionReload)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "plugin missing not found" {
		t.Errorf("expected APIError for unknown plugin, got %v", err)
	}
}

func TestInstallUpload(t *testing.T) {
	s, ts := startServer(t, Options{})
	c := newClient(t, ts.URL, s.IssueToken("astrbot"))

	archive := filepath.Join(t.TempDir(), "astrbot_plugin_local-main.zip")
	if err := os.WriteFile(archive, []byte("PK\x03\x04fake"), 0o600); err != nil {
		t.Fatal(err)
	}
	msg, err := c.InstallPluginFromUpload(context.Background(), archive)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if msg != "installed plugin astrbot_plugin_local-main" {
		t.Errorf("unexpected message %q", msg)
	}
	if findPlugin(s.Plugins(), "astrbot_plugin_local-main") == nil {
		t.Error("expected uploaded plugin registered")
	}
}

func TestStatAndHistory(t *testing.T) {
	s, ts := startServer(t, Options{})
	c := newClient(t, ts.URL, s.IssueToken("astrbot"))
	ctx := context.Background()

	stat, err := c.GetStat(ctx)
	if err != nil {
		t.Fatalf("GetStat: %v", err)
	}
	if stat.PluginCount != 2 || stat.ThreadCount != 12 {
		t.Errorf("unexpected stat %+v", stat)
	}

	s.AppendLog("WARN", "disk almost full")
	history, err := c.GetLogHistory(ctx)
	if err != nil {
		t.Fatalf("GetLogHistory: %v", err)
	}
	if len(history.Logs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(history.Logs))
	}
	if history.Logs[0].Kind != protocol.LogRecordText || history.Logs[0].Text != "AstrBot mock server started" {
		t.Errorf("unexpected first record %+v", history.Logs[0])
	}
	if last := history.Logs[2].RenderLine(); !strings.Contains(last, `"data":"[WARN] disk almost full"`) {
		t.Errorf("unexpected last record %s", last)
	}
}

func TestLiveLogReplay(t *testing.T) {
	s, ts := startServer(t, Options{})
	c := newClient(t, ts.URL, s.IssueToken("astrbot"))

	var out bytes.Buffer
	if err := c.StreamLiveLog(context.Background(), &out, false); err != nil {
		t.Fatalf("StreamLiveLog: %v", err)
	}
	want := "AstrBot mock server started\n[INFO] loaded 2 plugins\n"
	if out.String() != want {
		t.Errorf("expected %q, got %q", want, out.String())
	}
}

func TestLiveLogFollow(t *testing.T) {
	s, ts := startServer(t, Options{Follow: true})
	c := newClient(t, ts.URL, s.IssueToken("astrbot"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() { done <- c.StreamLiveLog(ctx, out, false) }()

	waitFor(t, func() bool { return strings.Contains(out.String(), "loaded 2 plugins") })
	s.AppendLog("INFO", "new message")
	waitFor(t, func() bool { return strings.Contains(out.String(), "[INFO] new message") })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func findPlugin(plugins []protocol.Plugin, name string) *protocol.Plugin {
	for i := range plugins {
		if plugins[i].Name == name {
			return &plugins[i]
		}
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
