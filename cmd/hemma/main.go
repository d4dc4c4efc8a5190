// Command hemma is a wake-word voice assistant for the home. It listens on a
// local microphone, and for every phrase that starts with the wake phrase it
// classifies the request, runs the matching action, and speaks the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/MrWong99/hemma/internal/app"
	"github.com/MrWong99/hemma/internal/config"
	"github.com/MrWong99/hemma/internal/health"
	"github.com/MrWong99/hemma/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.StringP("config", "c", "config.yaml", "path to the YAML configuration file")
	envFile := flag.StringP("env", "e", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	// Secrets referenced as ${VAR} in the config may live in the env file.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "hemma: env file %q: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hemma: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hemma: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat))
	slog.Info("hemma starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg, providers)

	application, err := app.New(cfg, providers, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		if err := providers.Close(); err != nil {
			slog.Warn("close providers", "err", err)
		}
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Operator endpoint (optional) ──────────────────────────────────────────
	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		srv = newServer(cfg.Server.ListenAddr, application, metrics)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("operator endpoint failed", "addr", srv.Addr, "err", err)
			}
		}()
		slog.Info("operator endpoint listening", "addr", srv.Addr)
	}

	exit := 0
	if err := application.Start(ctx); err != nil {
		slog.Error("startup failed", "state", application.State(), "err", err)
		exit = 1
	} else {
		slog.Info("ready, say the wake phrase or press Ctrl+C to shut down", "wake_phrase", cfg.WakeWord.Phrase)
		if err := application.Run(ctx); err != nil {
			slog.Error("run error", "err", err)
			exit = 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping", "state", application.State())
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("operator endpoint shutdown", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	slog.Info("goodbye")
	return exit
}

// newServer serves the health probes, the status page and Prometheus metrics.
func newServer(addr string, a *app.App, m *observe.Metrics) *http.Server {
	mux := http.NewServeMux()
	h := health.New(
		[]health.Checker{
			health.StateCheck("supervisor", func() string { return a.State().String() }, app.StateRunning.String()),
		},
		health.WithDetails(a.Details),
	)
	h.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, ps *app.Providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          hemma, startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Audio", ps.Source.Name())
	printRow("STT", providerLabel(cfg.Providers.STT))
	printRow("LLM", providerLabel(cfg.Providers.LLM))
	printRow("TTS", providerLabel(cfg.Providers.TTS))
	printRow("Embeddings", providerLabel(cfg.Providers.Embeddings))
	printRow("Wake phrase", cfg.WakeWord.Phrase)
	printRow("MCP servers", fmt.Sprint(len(cfg.MCP.Servers)))
	if cfg.Memory.PostgresDSN != "" {
		printRow("Turn log", "postgres")
	} else {
		printRow("Turn log", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}

func printRow(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	switch format {
	case config.LogFormatJSON:
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	case config.LogFormatPretty:
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl, TimeFormat: time.Kitchen}))
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	}
}
