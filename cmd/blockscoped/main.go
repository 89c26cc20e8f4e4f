// Command blockscoped is the interactive Blockscope server. It serves the
// block tree, on-demand analysis, source replacement and batch runs for one
// project on localhost, and exits after a client request, a signal or an
// idle timeout.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockscope/blockscope/internal/api"
	"github.com/blockscope/blockscope/internal/logx"
	"github.com/blockscope/blockscope/internal/workspace"
)

var version = "dev"

// idleCheckInterval is how often the idle watcher looks at the last request.
const idleCheckInterval = 10 * time.Second

type settings struct {
	Path       string
	ConfigPath string
	Host       string
	Port       int
	Token      string
	LogLevel   string
	LogFormat  string
}

func loadSettings() settings {
	port, _ := strconv.Atoi(os.Getenv("BLOCKSCOPE_PORT"))
	return settings{
		Path:      envOrDefault("BLOCKSCOPE_PROJECT", "."),
		Host:      envOrDefault("BLOCKSCOPE_HOST", "127.0.0.1"),
		Port:      port,
		Token:     os.Getenv("BLOCKSCOPE_TOKEN"),
		LogLevel:  envOrDefault("BLOCKSCOPE_LOG_LEVEL", "info"),
		LogFormat: envOrDefault("BLOCKSCOPE_LOG_FORMAT", "json"),
	}
}

// announcement is printed on stdout once the server listens so a launcher
// can connect.
type announcement struct {
	URL   string `json:"url"`
	Token string `json:"token"`
	PID   int    `json:"pid"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	s := loadSettings()
	cmd := &cobra.Command{
		Use:           "blockscoped",
		Short:         "Interactive Blockscope server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), s, os.Stdout)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&s.Path, "path", "C", s.Path, "Project directory to serve [BLOCKSCOPE_PROJECT]")
	f.StringVar(&s.ConfigPath, "config", "", "Config file (default: nearest .blockscope/config.yaml)")
	f.StringVar(&s.Host, "host", s.Host, "Interface to listen on [BLOCKSCOPE_HOST]")
	f.IntVar(&s.Port, "port", s.Port, "Port to listen on; 0 uses server.port from config or a free port [BLOCKSCOPE_PORT]")
	f.StringVar(&s.Token, "token", s.Token, "Session token; generated when empty [BLOCKSCOPE_TOKEN]")
	f.StringVar(&s.LogLevel, "log-level", s.LogLevel, "Log level: debug, info, warn, error [BLOCKSCOPE_LOG_LEVEL]")
	f.StringVar(&s.LogFormat, "log-format", s.LogFormat, "Log format: json or text [BLOCKSCOPE_LOG_FORMAT]")
	return cmd
}

func serve(ctx context.Context, s settings, out io.Writer) error {
	log := logx.New(os.Stderr, logx.LevelFromString(s.LogLevel), s.LogFormat)
	slog.SetDefault(log)

	ws, err := workspace.Open(ctx, workspace.Options{
		Path:       s.Path,
		ConfigPath: s.ConfigPath,
		History:    true,
		Logger:     log,
	})
	if err != nil {
		return err
	}
	defer ws.Close()

	token := s.Token
	if token == "" {
		if token, err = newToken(); err != nil {
			return err
		}
	}

	opts := api.Options{
		Root:    ws.Root,
		Token:   token,
		Workers: ws.Config.Engine.Workers,
		Cache:   ws,
		Logger:  log,
	}
	if ws.Runs != nil {
		opts.Runs = ws.Runs
	}
	server := api.NewServer(ws.Engine, opts)

	port := s.Port
	if port == 0 {
		port = ws.Config.Server.Port
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(s.Host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := json.NewEncoder(out).Encode(announcement{
		URL:   "http://" + ln.Addr().String(),
		Token: token,
		PID:   os.Getpid(),
	}); err != nil {
		ln.Close()
		return err
	}

	if idle := ws.Config.Server.IdleTimeout; idle > 0 {
		go server.WatchIdle(ctx, time.Duration(idle)*time.Second, idleCheckInterval)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting blockscoped", "addr", ln.Addr().String(), "project", ws.Root)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case <-server.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
	server.Close()
	if err := ws.Flush(shutdownCtx); err != nil {
		log.Error("saving analysis cache", "error", err)
	}
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
