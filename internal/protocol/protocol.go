package protocol

import (
	"encoding/json"
	"time"
)

type Credentials struct {
	Token     string `json:"token"`
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginData struct {
	Token         string `json:"token"`
	Username      string `json:"username"`
	ChangePwdHint bool   `json:"change_pwd_hint"`
}

type InstallURLRequest struct {
	Proxy string `json:"proxy"`
	URL   string `json:"url"`
}

type PluginNameRequest struct {
	Name string `json:"name"`
}

type Plugin struct {
	Name          string          `json:"name"`
	Repo          string          `json:"repo,omitempty"`
	Author        string          `json:"author,omitempty"`
	Desc          string          `json:"desc,omitempty"`
	Version       string          `json:"version"`
	Reserved      bool            `json:"reserved,omitempty"`
	Activated     bool            `json:"activated"`
	OnlineVersion string          `json:"online_version,omitempty"`
	Handlers      json.RawMessage `json:"handlers,omitempty"`
}

type PlatformUsage struct {
	Name      string  `json:"name"`
	Count     int64   `json:"count"`
	Timestamp float64 `json:"timestamp"`
}

type Running struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

type Memory struct {
	Process int64 `json:"process"`
	System  int64 `json:"system"`
}

type Stat struct {
	Platform          []PlatformUsage `json:"platform"`
	MessageCount      int64           `json:"message_count"`
	PlatformCount     int             `json:"platform_count"`
	PluginCount       int             `json:"plugin_count"`
	Plugins           json.RawMessage `json:"plugins,omitempty"`
	MessageTimeSeries json.RawMessage `json:"message_time_series,omitempty"`
	Running           Running         `json:"running"`
	Memory            Memory          `json:"memory"`
	CPUPercent        float64         `json:"cpu_percent"`
	ThreadCount       int             `json:"thread_count"`
	StartTime         int64           `json:"start_time"`
}

type LogHistory struct {
	Logs []LogRecord `json:"logs"`
}

type LiveLogEvent struct {
	Type  string `json:"type"`
	Level string `json:"level"`
	Time  string `json:"time"`
	Data  string `json:"data"`
}

type HistoryItem struct {
	At         time.Time `json:"at"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}
