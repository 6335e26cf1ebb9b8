// Command irc-tender imports archived IRC channel logs and reconstructs them
// into messages, conversations and a word index. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the configured sink (Postgres with migrations, or an embedded Badger store).
//   - Fetches the archive listing, replays every selected day through the chat
//     session and persists the resulting history as one batch.
//   - Optionally keeps serving /healthz, /readyz, /metrics and the search API.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/irc-tender/config"
	"github.com/onnwee/irc-tender/db"
	"github.com/onnwee/irc-tender/localstore"
	"github.com/onnwee/irc-tender/server"
	"github.com/onnwee/irc-tender/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("irc-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, store, closeSink, err := openSink(ctx, cfg)
	if err != nil {
		slog.Error("failed to open sink", slog.String("sink", cfg.Sink), slog.Any("err", err))
		os.Exit(1)
	}
	defer closeSink()

	startPprof()

	run, err := runImport(ctx, cfg, out)
	telemetry.RecordImportRun(cfg.Sink, err)
	if err != nil {
		slog.Error("import failed", slog.String("run_id", run.ID.String()), slog.Any("err", err))
		closeSink()
		os.Exit(1)
	}
	slog.Info("import complete",
		slog.String("run_id", run.ID.String()),
		slog.Int("archives", run.Archives),
		slog.Int("failed", run.Failed))

	if !cfg.Serve {
		return
	}
	if err := server.Start(ctx, store, cfg.HTTPAddr, server.Options{CaseSensitive: cfg.IndexCaseSensitive}); err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
	}
	slog.Info("shutting down")
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// openSink opens the configured sink and the matching read store for the API.
// The returned close function is safe to call more than once.
func openSink(ctx context.Context, cfg *config.Config) (sink, server.Store, func(), error) {
	switch cfg.Sink {
	case config.SinkBadger:
		ls, err := localstore.Open(cfg.BadgerDir)
		if err != nil {
			return nil, nil, nil, err
		}
		if n, err := ls.PruneIncomplete(); err != nil {
			slog.Warn("could not prune unfinished runs", slog.Any("err", err), slog.String("component", "localstore"))
		} else if n > 0 {
			slog.Info("pruned unfinished runs", slog.Int("count", n), slog.String("component", "localstore"))
		}
		return ls, server.BadgerStore(ls), closeOnce(ls.Close, "badger store"), nil
	default:
		database, err := db.Connect(cfg.DBDsn)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := migrate(ctx, database); err != nil {
			database.Close()
			return nil, nil, nil, err
		}
		return postgresSink{database}, server.PostgresStore(database), closeOnce(database.Close, "database"), nil
	}
}

// migrate prefers versioned migrations and falls back to the embedded
// statements when golang-migrate cannot run (e.g. a schema created by hand).
func migrate(ctx context.Context, database *sql.DB) error {
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			return fmt.Errorf("migrate db (both versioned and embedded SQL failed): %w", err)
		}
	}
	return nil
}

func closeOnce(fn func() error, what string) func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		if err := fn(); err != nil {
			slog.Error("failed to close "+what, slog.Any("err", err))
		}
	}
}

// startPprof exposes /debug/pprof when ENABLE_PPROF=1.
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
		srv := &http.Server{
			Addr:              pprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
