package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/prbarcelon/astrbotctl/internal/mockserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "astrbot-mock: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen   string
		username string
		password string
		follow   bool
		tick     time.Duration
		debug    bool
	)
	flagSet := pflag.NewFlagSet("astrbot-mock", pflag.ContinueOnError)
	flagSet.StringVar(&listen, "listen", "127.0.0.1:6185", "address to serve the dashboard API on")
	flagSet.StringVar(&username, "username", "astrbot", "accepted login username")
	flagSet.StringVar(&password, "password", "astrbot", "accepted login password")
	flagSet.BoolVar(&follow, "follow", false, "keep live log connections open for new lines")
	flagSet.DurationVar(&tick, "tick", 0, "append a heartbeat log line at this interval (0 disables)")
	flagSet.BoolVar(&debug, "debug", false, "debug logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mockserver.New(mockserver.Options{
		Username: username,
		Password: password,
		Follow:   follow,
		Logger:   logger,
	})
	if tick > 0 {
		go heartbeat(ctx, srv, tick)
	}
	return srv.Run(ctx, listen)
}

func heartbeat(ctx context.Context, srv *mockserver.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.AppendLog("INFO", fmt.Sprintf("heartbeat %d", n))
		}
	}
}
