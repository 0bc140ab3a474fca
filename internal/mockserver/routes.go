package mockserver

import (
	"io"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

// response mirrors the dashboard envelope. A nil Message is sent as null.
type response struct {
	Status  string `json:"status"`
	Message any    `json:"message"`
	Data    any    `json:"data"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, response{Status: "ok", Data: data})
}

func okMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, response{Status: "ok", Message: message})
}

func fail(c *gin.Context, code int, message string) {
	c.JSON(code, response{Status: "error", Message: message})
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.POST("/api/auth/login", s.handleLogin)

	api := r.Group("/api")
	api.Use(s.requireToken())
	{
		api.GET("/plugin/get", s.handleListPlugins)
		api.POST("/plugin/install", s.handleInstallURL)
		api.POST("/plugin/install-upload", s.handleInstallUpload)
		for _, action := range protocol.PluginActions {
			api.POST("/plugin/"+action.String(), s.handlePluginAction(action))
		}
		api.GET("/stat/get", s.handleStat)
		api.GET("/log-history", s.handleLogHistory)
		api.GET("/live-log", s.handleLiveLog)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug("mock request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		)
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.authenticated(c.GetHeader("Authorization")) {
			fail(c, http.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleLogin(c *gin.Context) {
	var req protocol.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	// The dashboard reports bad credentials inside a 200 envelope.
	if !s.checkPassword(req.Username, req.Password) {
		fail(c, http.StatusOK, "invalid username or password")
		return
	}
	token := s.IssueToken(req.Username)
	s.logger.Info("mock login", "username", req.Username)
	ok(c, protocol.LoginData{
		Token:         token,
		Username:      req.Username,
		ChangePwdHint: s.opts.Password == "astrbot",
	})
}

func (s *Server) handleListPlugins(c *gin.Context) {
	ok(c, s.Plugins())
}

func (s *Server) handleInstallURL(c *gin.Context) {
	var req protocol.InstallURLRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		fail(c, http.StatusOK, "url is required")
		return
	}
	name := strings.TrimSuffix(path.Base(strings.TrimRight(req.URL, "/")), ".git")
	s.installPlugin(protocol.Plugin{Name: name, Repo: req.URL, Version: "v0.0.1"})
	okMessage(c, "installed plugin "+name)
}

func (s *Server) handleInstallUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusOK, "file is required")
		return
	}
	src, err := file.Open()
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	defer src.Close()
	size, _ := io.Copy(io.Discard, src)
	if size == 0 {
		fail(c, http.StatusOK, "uploaded archive is empty")
		return
	}
	name := strings.TrimSuffix(filepath.Base(file.Filename), filepath.Ext(file.Filename))
	s.installPlugin(protocol.Plugin{Name: name, Version: "v0.0.1"})
	okMessage(c, "installed plugin "+name)
}

func (s *Server) handlePluginAction(action protocol.PluginAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req protocol.PluginNameRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
			fail(c, http.StatusOK, "name is required")
			return
		}
		if err := s.applyAction(req.Name, action); err != nil {
			fail(c, http.StatusOK, err.Error())
			return
		}
		s.logger.Info("mock plugin action", "plugin", req.Name, "action", action.String())
		okMessage(c, action.String()+" "+req.Name+" succeeded")
	}
}

func (s *Server) handleStat(c *gin.Context) {
	ok(c, s.stat())
}

func (s *Server) handleLogHistory(c *gin.Context) {
	s.mu.RLock()
	logs := make([]protocol.LogRecord, len(s.logs))
	copy(logs, s.logs)
	s.mu.RUnlock()
	ok(c, protocol.LogHistory{Logs: logs})
}

// handleLiveLog replays the buffered log lines as SSE events. With Follow
// set it then keeps forwarding new lines until the client goes away.
func (s *Server) handleLiveLog(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	replay := s.replayEvents()
	var updates chan protocol.LiveLogEvent
	if s.opts.Follow {
		updates = s.subscribe()
		defer s.unsubscribe(updates)
	}

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		if len(replay) > 0 {
			c.SSEvent("", replay[0])
			replay = replay[1:]
			return true
		}
		if updates == nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case ev := <-updates:
			c.SSEvent("", ev)
			return true
		}
	})
	s.logger.Debug("live log client disconnected", slog.String("remote", c.ClientIP()))
}
