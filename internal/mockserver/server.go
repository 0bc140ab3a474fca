package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prbarcelon/astrbotctl/internal/api"
	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

type Options struct {
	Username string
	Password string
	// Follow keeps live log connections open for lines appended after the
	// replay instead of closing once the buffer is sent.
	Follow bool
	Logger *slog.Logger
}

// Server is an in-memory stand-in for the AstrBot dashboard API.
type Server struct {
	opts      Options
	logger    *slog.Logger
	startedAt time.Time

	mu           sync.RWMutex
	tokens       map[string]string
	plugins      []protocol.Plugin
	logs         []protocol.LogRecord
	subscribers  map[chan protocol.LiveLogEvent]struct{}
	messageCount int64
}

func New(opts Options) *Server {
	if opts.Username == "" {
		opts.Username = "astrbot"
	}
	if opts.Password == "" {
		opts.Password = "astrbot"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:        opts,
		logger:      logger,
		startedAt:   time.Now().UTC(),
		tokens:      map[string]string{},
		subscribers: map[chan protocol.LiveLogEvent]struct{}{},
		plugins: []protocol.Plugin{
			{Name: "astrbot_plugin_helloworld", Author: "Soulter", Desc: "say hello", Version: "v1.0.0", Activated: true, Repo: "https://github.com/Soulter/helloworld"},
			{Name: "astrbot_plugin_reminder", Author: "Soulter", Desc: "scheduled reminders", Version: "v0.3.1", Activated: false},
		},
		logs: []protocol.LogRecord{protocol.TextRecord("AstrBot mock server started")},
	}
	s.AppendLog("INFO", "loaded 2 plugins")
	return s
}

// IssueToken registers and returns a fresh bearer token for user.
func (s *Server) IssueToken(user string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = user
	s.mu.Unlock()
	return token
}

func (s *Server) Plugins() []protocol.Plugin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Plugin, len(s.plugins))
	copy(out, s.plugins)
	return out
}

// AppendLog adds a line to the history buffer and pushes it to connected
// live log followers.
func (s *Server) AppendLog(level, line string) {
	ev := protocol.LiveLogEvent{
		Type:  "log",
		Level: level,
		Time:  time.Now().Format("15:04:05"),
		Data:  fmt.Sprintf("[%s] %s", level, line),
	}
	raw, _ := json.Marshal(ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, protocol.ObjectRecord(raw))
	s.messageCount++
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Server) Handler() http.Handler {
	return s.router()
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("mock server listening", "addr", ln.Addr().String(), "username", s.opts.Username)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) authenticated(header string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, known := s.tokens[token]
	return known
}

func (s *Server) checkPassword(user, digest string) bool {
	return user == s.opts.Username && strings.EqualFold(digest, api.HashPassword(s.opts.Password))
}

func (s *Server) stat() protocol.Stat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uptime := time.Since(s.startedAt)
	return protocol.Stat{
		Platform: []protocol.PlatformUsage{
			{Name: "aiocqhttp", Count: s.messageCount, Timestamp: float64(time.Now().Unix())},
		},
		MessageCount:  s.messageCount,
		PlatformCount: 1,
		PluginCount:   len(s.plugins),
		Running: protocol.Running{
			Hours:   int(uptime.Hours()),
			Minutes: int(uptime.Minutes()) % 60,
			Seconds: int(uptime.Seconds()) % 60,
		},
		Memory:      protocol.Memory{Process: 128, System: 4096},
		CPUPercent:  1.5,
		ThreadCount: 12,
		StartTime:   s.startedAt.Unix(),
	}
}
