// Command capsight keeps a synchronized local view of a bettercap engine:
// session snapshot, event log and deduplicated notifications, with durable
// credentials and settings. Optional surfaces: a diagnostics HTTP listener
// and the MCP tool set over stdio.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/term"
	_ "modernc.org/sqlite"

	"github.com/capsight/capsight/creds"
	"github.com/capsight/capsight/engine"
	"github.com/capsight/capsight/mcpserve"
	"github.com/capsight/capsight/remote"
	"github.com/capsight/capsight/settings"
	"github.com/capsight/capsight/state"
)

const version = "1.0.0"

func main() {
	configPath := env("CAPSIGHT_CONFIG", "")
	mcpTransport := env("MCP_TRANSPORT", "")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STATE_DB"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("DIAG_LISTEN"); v != "" {
		cfg.DiagListen = v
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logOut := os.Stdout
	if mcpTransport == "stdio" {
		// stdout carries the MCP framing when serving over stdio.
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Durable state.
	st, err := state.Open(cfg.StatePath)
	if err != nil {
		slog.Error("state db", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	credStore := creds.New(st)
	if err := credStore.Load(ctx); err != nil {
		slog.Error("credentials load", "error", err)
		os.Exit(1)
	}
	settingStore := settings.New(st)
	if err := settingStore.Load(ctx); err != nil {
		slog.Error("settings load", "error", err)
		os.Exit(1)
	}

	// A config file target overrides whatever was persisted.
	if configPath != "" {
		tgt := cfg.Target
		if err := settingStore.SetTarget(ctx, tgt.Scheme, tgt.Host, tgt.Port, tgt.APIPath); err != nil {
			slog.Error("settings target", "error", err)
			os.Exit(1)
		}
		if err := settingStore.SetPollInterval(ctx, cfg.PollInterval); err != nil {
			slog.Error("settings poll interval", "error", err)
			os.Exit(1)
		}
		if err := settingStore.SetEventWindow(ctx, cfg.EventWindow); err != nil {
			slog.Error("settings event window", "error", err)
			os.Exit(1)
		}
	}

	// The base is resolved per request, so SetTarget and out-of-band settings
	// edits redirect the very next poll.
	client := remote.New(settingStore.Current().BaseURL(), credStore,
		remote.WithBaseSource(func() string { return settingStore.Current().BaseURL() }))
	eng := engine.New(client, credStore, settingStore, engine.Config{
		Production: cfg.Production,
		MinVersion: cfg.MinVersion,
		Logger:     logger,
	})

	// No restored material: ask the operator, or fail when headless.
	if !credStore.HasMaterial() {
		user, pass, err := promptLogin()
		if err != nil {
			slog.Error("no stored credentials", "error", err)
			os.Exit(1)
		}
		if err := eng.Login(ctx, user, pass); err != nil {
			slog.Error("login failed", "target", settingStore.Current().BaseURL(), "error", err)
			os.Exit(1)
		}
		slog.Info("logged in", "user", user)
	}

	// Synchronizers and the out-of-band settings watcher.
	go eng.RunSession(ctx)
	go eng.RunEvents(ctx)
	go settingStore.Watch(ctx, 2*time.Second)
	go logSignals(ctx, eng)

	// Diagnostics listener.
	if cfg.DiagListen != "" {
		r := chi.NewRouter()
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, map[string]string{"status": "ok", "version": version})
		})
		r.Get("/state", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, eng.Stats())
		})
		r.Get("/snapshot", func(w http.ResponseWriter, _ *http.Request) {
			snap, ok := eng.Snapshot()
			if !ok {
				writeJSON(w, 404, map[string]string{"error": "no session synchronized yet"})
				return
			}
			writeJSON(w, 200, snap)
		})
		srv := &http.Server{Addr: cfg.DiagListen, Handler: r}
		go func() {
			slog.Info("diagnostics listening", "addr", cfg.DiagListen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("diagnostics listener", "error", err)
			}
		}()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer shutCancel()
			srv.Shutdown(shutCtx)
		}()
	}

	// MCP over stdio blocks until the client disconnects; otherwise wait for
	// the signal context.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "capsight", Version: version}, nil)
		mcpserve.Register(mcpSrv, eng)
		slog.Info("MCP serving", "transport", "stdio")
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("MCP server", "error", err)
			os.Exit(1)
		}
		return
	}

	<-ctx.Done()
	slog.Info("shutting down")
}

// logSignals drains the engine's signal buses into the log so the buses stay
// observable even with no other consumer attached.
func logSignals(ctx context.Context, eng *engine.Engine) {
	loggedOut := eng.LoggedOut.Listen()
	notes := eng.Notifications.Listen()
	sessionErrs := eng.SessionErrors.Listen()
	cmdErrs := eng.CommandErrors.Listen()
	for {
		select {
		case <-ctx.Done():
			return
		case cause := <-loggedOut:
			if cause != nil {
				slog.Warn("logged out", "reason", cause)
			}
		case n := <-notes:
			slog.Info("notification", "severity", n.Severity.String(), "tag", n.Tag, "message", n.Message)
		case err := <-sessionErrs:
			slog.Warn("session sync degraded", "error", err)
		case err := <-cmdErrs:
			slog.Warn("command failed", "error", err)
		}
	}
}

// promptLogin reads credentials interactively. Refuses to prompt when stdin
// is not a terminal.
func promptLogin() (user, pass string, err error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", "", fmt.Errorf("stdin is not a terminal; provision credentials interactively first")
	}
	fmt.Fprint(os.Stderr, "username: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("read username: %w", err)
	}
	user = strings.TrimSpace(line)
	if user == "" {
		return "", "", fmt.Errorf("username is required")
	}
	fmt.Fprint(os.Stderr, "password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	return user, string(raw), nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
