package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/irc-tender/archive"
	"github.com/onnwee/irc-tender/chat"
	"github.com/onnwee/irc-tender/config"
	"github.com/onnwee/irc-tender/db"
	"github.com/onnwee/irc-tender/localstore"
	"github.com/onnwee/irc-tender/telemetry"
)

// sink persists one finished run.
type sink interface {
	Save(ctx context.Context, run archive.Run, h *chat.History) error
}

type postgresSink struct{ db *sql.DB }

func (s postgresSink) Save(ctx context.Context, run archive.Run, h *chat.History) error {
	return db.Save(ctx, s.db, run, h)
}

var _ sink = (*localstore.Store)(nil)

// runImport lists the archives under cfg.LogBaseURL, reconstructs the chat
// history and hands it to out in one batch.
func runImport(ctx context.Context, cfg *config.Config, out sink) (archive.Run, error) {
	logger := slog.Default().With(slog.String("component", "import"))
	ctx, span := telemetry.StartSpan(ctx, "importer", "import.run",
		attribute.String("base_url", cfg.LogBaseURL),
		attribute.String("sink", cfg.Sink),
		attribute.Int("max_archives", cfg.MaxArchives))
	defer span.End()

	run := archive.NewRun(cfg.LogBaseURL)
	logger = logger.With(slog.String("run_id", run.ID.String()))

	fetcher := archive.NewHTTPFetcher(cfg.LogBaseURL, cfg.FetchTimeout)
	names, err := fetcher.ListArchives(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return run, fmt.Errorf("list archives: %w", err)
	}

	session := chat.NewSession(chat.IndexOptions{CaseSensitive: cfg.IndexCaseSensitive})
	driver := &archive.Driver{
		Fetcher:     fetcher,
		Session:     session,
		Concurrency: cfg.FetchConcurrency,
		Logger:      logger,
	}
	rep, err := driver.Run(ctx, names, cfg.MaxArchives)
	if err != nil {
		telemetry.RecordError(span, err)
		return run, fmt.Errorf("import archives: %w", err)
	}
	run.Finish(rep)

	h := session.History()
	if h.Empty() {
		logger.Info("import produced no messages", slog.Int("archives", rep.Processed), slog.Int("failed", rep.Failed))
	}

	pctx, pspan := telemetry.StartSpan(ctx, "importer", "import.persist",
		attribute.Int("messages", len(h.Messages)),
		attribute.Int("conversations", len(h.Conversations)),
		attribute.Int("words", len(h.Index)))
	took := telemetry.TimeFunc(telemetry.PersistDuration, func() {
		err = out.Save(pctx, run, h)
	})
	if err != nil {
		telemetry.RecordError(pspan, err)
		pspan.End()
		telemetry.RecordError(span, err)
		return run, fmt.Errorf("persist run %s: %w", run.ID, err)
	}
	telemetry.SetSpanSuccess(pspan)
	pspan.End()

	logger.Info("run persisted",
		slog.String("sink", cfg.Sink),
		slog.Int("users", len(h.Users)),
		slog.Int("messages", len(h.Messages)),
		slog.Int("conversations", len(h.Conversations)),
		slog.Int("words", len(h.Index)),
		slog.Duration("took", took))
	telemetry.SetSpanSuccess(span)
	return run, nil
}
