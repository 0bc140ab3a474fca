package api

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

	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

type capturedRequest struct {
	Method      string
	Path        string
	Auth        string
	ContentType string
	Body        []byte
}

// recordingServer answers every request with reply and keeps what it saw.
type recordingServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	reply    string
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Auth:        r.Header.Get("Authorization"),
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
	})
	s.mu.Unlock()
	status := s.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, s.reply)
}

func (s *recordingServer) last(t *testing.T) capturedRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("no request captured")
	}
	return s.requests[len(s.requests)-1]
}

type memoryRecorder struct {
	items []protocol.HistoryItem
}

func (m *memoryRecorder) InsertHistory(item protocol.HistoryItem) error {
	m.items = append(m.items, item)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, srv *recordingServer) (*Client, *memoryRecorder) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	rec := &memoryRecorder{}
	c, err := New(Config{BaseURL: ts.URL + "/", Token: "tok-abcdefghijkl", Logger: testLogger(), Recorder: rec})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, rec
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "  "}); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestJoinURL(t *testing.T) {
	cases := []struct{ base, path, want string }{
		{"http://h/", "/api/x", "http://h/api/x"},
		{"http://h", "/api/x", "http://h/api/x"},
		{"http://h//", "api/x", "http://h/api/x"},
		{"https://h:6185/prefix/", "/api/plugin/get", "https://h:6185/prefix/api/plugin/get"},
	}
	for _, tc := range cases {
		if got := joinURL(tc.base, tc.path); got != tc.want {
			t.Errorf("joinURL(%q, %q) = %q, want %q", tc.base, tc.path, got, tc.want)
		}
	}
}

func TestTokenPreview(t *testing.T) {
	cases := map[string]string{
		"abcdefghijkl": "abcdefgh…",
		"abcdefgh":     "abcdefgh…",
		"abcdefg":      "abcdefg",
		"abc":          "abc",
		"":             "",
		"令牌令牌令牌令牌令牌":   "令牌令牌令牌令牌…",
	}
	for token, want := range cases {
		if got := TokenPreview(token); got != want {
			t.Errorf("TokenPreview(%q) = %q, want %q", token, got, want)
		}
	}
}

func TestDebugLogShowsOnlyTokenPreview(t *testing.T) {
	srv := &recordingServer{reply: `{"status":"ok","message":null,"data":[]}`}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c, err := New(Config{BaseURL: ts.URL, Token: "secret-token-value", Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListPlugins(context.Background()); err != nil {
		t.Fatalf("ListPlugins: %v", err)
	}
	if strings.Contains(logs.String(), "secret-token-value") {
		t.Errorf("full token leaked into logs: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "secret-t…") {
		t.Errorf("expected token preview in logs: %s", logs.String())
	}
	if srv.last(t).Auth != "Bearer secret-token-value" {
		t.Errorf("unexpected auth header %q", srv.last(t).Auth)
	}
}

func TestListPlugins(t *testing.T) {
	srv := &recordingServer{reply: `{"status":"ok","message":null,"data":[{"name":"hello","version":"v1","activated":true,"author":"a"}]}`}
	c, rec := newTestClient(t, srv)

	plugins, err := c.ListPlugins(context.Background())
	if err != nil {
		t.Fatalf("ListPlugins: %v", err)
	}
	if len(plugins) != 1 || plugins[0].Name != "hello" || !plugins[0].Activated {
		t.Errorf("unexpected plugins %+v", plugins)
	}
	got := srv.last(t)
	if got.Method != http.MethodGet || got.Path != "/api/plugin/get" {
		t.Errorf("unexpected request %s %s", got.Method, got.Path)
	}
	if got.Auth != "Bearer tok-abcdefghijkl" {
		t.Errorf("expected bearer header on body-less request, got %q", got.Auth)
	}
	if len(rec.items) != 1 || !rec.items[0].Success || rec.items[0].Path != "/api/plugin/get" {
		t.Errorf("unexpected history %+v", rec.items)
	}
}

func TestListPluginsNullDataIsEmpty(t *testing.T) {
	srv := &recordingServer{reply: `{"status":"ok","message":null,"data":null}`}
	c, _ := newTestClient(t, srv)
	plugins, err := c.ListPlugins(context.Background())
	if err != nil {
		t.Fatalf("ListPlugins: %v", err)
	}
	if plugins == nil || len(plugins) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", plugins)
	}
}

func TestInstallPluginFromURL(t *testing.T) {
	srv := &recordingServer{reply: `{"status":"ok","message":"install ok","data":null}`}
	c, _ := newTestClient(t, srv)

	msg, err := c.InstallPluginFromURL(context.Background(), "https://github.com/x/y")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if msg != "install ok" {
		t.Errorf("unexpected message %q", msg)
	}
	got := srv.last(t)
	if got.Path != "/api/plugin/install" || got.ContentType != "application/json" {
		t.Errorf("unexpected request %+v", got)
	}
	if string(got.Body) != `{"proxy":"","url":"https://github.com/x/y"}` {
		t.Errorf("unexpected body %s", got.Body)
	}
	if got.Auth != "Bearer tok-abcdefghijkl" {
		t.Errorf("expected bearer header on json request, got %q", got.Auth)
	}
}

func TestInstallPluginFromUpload(t *testing.T) {
	var (
		gotAuth     string
		gotFilename string
		gotContent  []byte
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotContent, _ = io.ReadAll(file)
		_, _ = io.WriteString(w, `{"status":"ok","message":"uploaded","data":null}`)
	}))
	defer ts.Close()

	archive := filepath.Join(t.TempDir(), "plugin-main.zip")
	if err := os.WriteFile(archive, []byte("zip bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := New(Config{BaseURL: ts.URL, Token: "tok", Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := c.InstallPluginFromUpload(context.Background(), archive)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if msg != "uploaded" || gotFilename != "plugin-main.zip" || string(gotContent) != "zip bytes" {
		t.Errorf("unexpected upload: msg=%q name=%q content=%q", msg, gotFilename, gotContent)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("expected bearer header on multipart request, got %q", gotAuth)
	}
}

func TestInstallPluginFromUploadMissingFile(t *testing.T) {
	srv := &recordingServer{reply: `{}`}
	c, _ := newTestClient(t, srv)
	_, err := c.InstallPluginFromUpload(context.Background(), filepath.Join(t.TempDir(), "absent.zip"))
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if len(srv.requests) != 0 {
		t.Error("expected no request for a missing archive")
	}
}

func TestPluginAction(t *testing.T) {
	for _, action := range protocol.PluginActions {
		srv := &recordingServer{reply: `{"status":"ok","message":"done","data":null}`}
		c, _ := newTestClient(t, srv)
		if _, err := c.PluginAction(context.Background(), "hello", action); err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		got := srv.last(t)
		if got.Path != "/api/plugin/"+action.String() || string(got.Body) != `{"name":"hello"}` {
			t.Errorf("%s: unexpected request %s %s", action, got.Path, got.Body)
		}
	}
}

func TestPluginActionRejectsUnknownAction(t *testing.T) {
	srv := &recordingServer{reply: `{}`}
	c, _ := newTestClient(t, srv)
	if _, err := c.PluginAction(context.Background(), "hello", protocol.PluginAction("explode")); err == nil {
		t.Fatal("expected error")
	}
	if len(srv.requests) != 0 {
		t.Error("expected no request for an invalid action")
	}
}

func TestPluginActionAPIError(t *testing.T) {
	srv := &recordingServer{reply: `{"status":"error","message":"plugin not found","data":null}`}
	c, rec := newTestClient(t, srv)
	_, err := c.PluginAction(context.Background(), "ghost", protocol.ActionOn)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "plugin not found" {
		t.Fatalf("expected APIError, got %v", err)
	}
	if len(rec.items) != 1 || rec.items[0].Success || rec.items[0].Error == "" {
		t.Errorf("expected failed history entry, got %+v", rec.items)
	}
}

func TestGetStat(t *testing.T) {
	srv := &recordingServer{reply: `{"status":"ok","message":null,"data":{"message_count":10,"platform_count":1,"plugin_count":3,"running":{"hours":1,"minutes":2,"seconds":3},"memory":{"process":100,"system":2000},"cpu_percent":2.5,"thread_count":8,"start_time":1700000000,"platform":[]}}`}
	c, _ := newTestClient(t, srv)
	stat, err := c.GetStat(context.Background())
	if err != nil {
		t.Fatalf("GetStat: %v", err)
	}
	if stat.MessageCount != 10 || stat.Running.Minutes != 2 || stat.CPUPercent != 2.5 {
		t.Errorf("unexpected stat %+v", stat)
	}
}

func TestGetStatNullDataIsMissing(t *testing.T) {
	srv := &recordingServer{reply: `{"status":"ok","message":null,"data":null}`}
	c, _ := newTestClient(t, srv)
	_, err := c.GetStat(context.Background())
	if !errors.Is(err, ErrMissingData) {
		t.Fatalf("expected ErrMissingData, got %v", err)
	}
	if err.Error() != "no data received" {
		t.Errorf("unexpected text %q", err.Error())
	}
}

func TestGetLogHistory(t *testing.T) {
	srv := &recordingServer{reply: `{"status":"ok","message":null,"data":{"logs":["first",{"level":"INFO","data":"second"}]}}`}
	c, _ := newTestClient(t, srv)
	history, err := c.GetLogHistory(context.Background())
	if err != nil {
		t.Fatalf("GetLogHistory: %v", err)
	}
	var lines []string
	for _, rec := range history.Logs {
		lines = append(lines, rec.RenderLine())
	}
	want := []string{"first", `{"level":"INFO","data":"second"}`}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("unexpected lines %q", lines)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := &recordingServer{status: http.StatusInternalServerError, reply: strings.Repeat("x", 1000)}
	c, rec := newTestClient(t, srv)
	_, err := c.ListPlugins(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.StatusCode != 500 || len(terr.Body) != maxErrorSnippet {
		t.Errorf("unexpected error %d / %d bytes", terr.StatusCode, len(terr.Body))
	}
	if len(rec.items) != 1 || rec.items[0].StatusCode != 500 {
		t.Errorf("unexpected history %+v", rec.items)
	}
}

func TestConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := New(Config{BaseURL: url, Token: "tok", Logger: testLogger(), Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.GetStat(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) || terr.StatusCode != 0 || terr.Err == nil {
		t.Fatalf("expected connection TransportError, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "API request failed: ") {
		t.Errorf("unexpected text %q", err.Error())
	}
}

func TestRequestHonoursContext(t *testing.T) {
	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(block)

	c, err := New(Config{BaseURL: ts.URL, Token: "tok", Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.GetStat(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
