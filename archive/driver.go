package archive

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/onnwee/irc-tender/chat"
	"github.com/onnwee/irc-tender/telemetry"
)

const tracerName = "archive-driver"

// Report summarizes one Driver.Run.
type Report struct {
	Listed    int      // names handed to Run
	Selected  int      // archives chosen after filtering and the max count
	Processed int      // archives whose lines were applied
	Failed    int      // archives that could not be fetched or dated
	Lines     int      // lines fed to the session
	Names     []string // selected archive names, in processing order
}

// Driver feeds archives through a chat.Session in listing order.
type Driver struct {
	Fetcher Fetcher
	Session *chat.Session
	// Concurrency bounds how many archives may be fetched ahead of the one
	// being applied. Values below 1 mean 1 (strictly sequential).
	Concurrency int
	Logger      *slog.Logger
}

// SelectArchives keeps names shaped like YY.MM.DD, in order, and truncates
// to maxCount. A negative maxCount means no limit.
func SelectArchives(names []string, maxCount int) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if maxCount >= 0 && len(out) >= maxCount {
			break
		}
		if chat.IsArchiveName(n) {
			out = append(out, n)
		}
	}
	return out
}

type fetchResult struct {
	date     chat.Date
	lines    []string
	err      error
	acquired bool
}

// Run processes at most maxCount archives from names. Fetching may run ahead
// of application by up to Concurrency archives, but lines are always applied
// in archive order and file order. Fetch failures are logged and counted;
// they do not stop the run. Cancellation is honoured between archives.
func (d *Driver) Run(ctx context.Context, names []string, maxCount int) (Report, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "archive_driver"))

	selected := SelectArchives(names, maxCount)
	rep := Report{Listed: len(names), Selected: len(selected), Names: selected}
	if len(selected) == 0 {
		logger.Info("no archives selected", slog.Int("listed", len(names)), slog.Int("max", maxCount))
		return rep, nil
	}

	workers := d.Concurrency
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan fetchResult, len(selected))
	for i := range results {
		results[i] = make(chan fetchResult, 1)
	}
	go func() {
		for i, name := range selected {
			if err := sem.Acquire(fetchCtx, 1); err != nil {
				for j := i; j < len(selected); j++ {
					results[j] <- fetchResult{err: err}
				}
				return
			}
			go func(i int, name string) {
				res := d.fetch(fetchCtx, name)
				res.acquired = true
				results[i] <- res
			}(i, name)
		}
	}()

	logger.Info("import starting", slog.Int("archives", len(selected)), slog.Int("concurrency", workers))
	for i, name := range selected {
		if err := ctx.Err(); err != nil {
			logger.Warn("import canceled", slog.Int("processed", rep.Processed), slog.Any("err", err))
			return rep, err
		}
		res := <-results[i]
		if res.acquired {
			sem.Release(1)
		}
		if res.err != nil {
			if ctx.Err() != nil {
				logger.Warn("import canceled", slog.Int("processed", rep.Processed), slog.Any("err", ctx.Err()))
				return rep, ctx.Err()
			}
			rep.Failed++
			telemetry.RecordArchive(false)
			logger.Warn("archive skipped", slog.String("archive", name), slog.Any("err", res.err))
			continue
		}
		rep.Lines += d.apply(ctx, logger, name, res)
		rep.Processed++
		telemetry.RecordArchive(true)
	}

	st := d.Session.Stats()
	logger.Info("import finished",
		slog.Int("processed", rep.Processed),
		slog.Int("failed", rep.Failed),
		slog.Int("lines", rep.Lines),
		slog.Int("messages", st.Messages),
		slog.Int("conversations", st.Conversations),
		slog.Int("words", st.Words))
	return rep, nil
}

func (d *Driver) fetch(ctx context.Context, name string) fetchResult {
	date, err := chat.ParseArchiveDate(name)
	if err != nil {
		return fetchResult{err: err}
	}
	var lines []string
	telemetry.TimeFunc(telemetry.FetchDuration, func() {
		lines, err = d.Fetcher.Lines(ctx, name)
	})
	if err != nil {
		return fetchResult{err: err}
	}
	return fetchResult{date: date, lines: lines}
}

// apply feeds one archive's lines to the session and reports metric deltas.
func (d *Driver) apply(ctx context.Context, logger *slog.Logger, name string, res fetchResult) int {
	_, span := telemetry.StartSpan(ctx, tracerName, "archive.apply",
		attribute.String("archive", name),
		attribute.Int("lines", len(res.lines)))
	defer span.End()

	start := time.Now()
	before := d.Session.Stats()
	counts := make(map[chat.Outcome]int, 5)
	for _, line := range res.lines {
		counts[d.Session.Feed(res.date, line)]++
	}
	after := d.Session.Stats()

	for outcome, n := range counts {
		telemetry.AddLines(outcome.String(), n)
	}
	telemetry.AddClosed(after.Closed - before.Closed)
	telemetry.SetSessionGauges(after.Users, after.Words, after.Active)
	telemetry.SetSpanSuccess(span)

	logger.Debug("archive applied",
		slog.String("archive", name),
		slog.String("date", res.date.String()),
		slog.Int("lines", len(res.lines)),
		slog.Int("messages", after.Messages-before.Messages),
		slog.Int("opened", counts[chat.OutcomeOpened]),
		slog.Int("closed", after.Closed-before.Closed),
		slog.Duration("took", time.Since(start)))
	return len(res.lines)
}
