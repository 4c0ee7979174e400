// Package scheduler maintains one recurring job per tracked product.
//
// The scheduler is an injectable value with an explicit Start/Stop
// lifecycle rather than a package-level singleton, so every test can run
// its own isolated instance.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner with a productID → entry index.
//
// INVARIANT: at most one live cron entry per product ID. Schedule with an
// already-known ID replaces the previous entry; Cancel on an unknown ID is
// a no-op. The map and the cron instance are mutated together under mu.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a stopped scheduler. Call Start before scheduling matters;
// entries added before Start simply begin firing once it runs.
//
// The cron chain wraps every job in Recover: a panicking tick is logged and
// the entry stays registered for its next firing. Jobs are expected to
// swallow their own errors — this is the backstop, not the error path.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithChain(cron.Recover(&cronLogger{logger: logger})),
		),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins firing scheduled jobs in the scheduler's own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and blocks until every in-flight job has returned.
// Safe to call on a scheduler that was never started.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Schedule registers job to run every period, keyed by productID.
//
// Re-scheduling an existing productID atomically replaces the old entry —
// the old job never fires again once Schedule returns. The first run happens
// one full period after registration (registration itself just scraped, so
// an immediate run would be redundant).
func (s *Scheduler) Schedule(productID string, period time.Duration, job func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[productID]; ok {
		s.cron.Remove(old)
	}

	id := s.cron.Schedule(cron.Every(period), cron.FuncJob(job))
	s.entries[productID] = id

	s.logger.Info("tracking scheduled",
		slog.String("productID", productID),
		slog.Duration("period", period),
	)
}

// Cancel removes the product's job if present. Cancelling an unknown ID is
// not an error — deletion races and repeated cancels are expected.
func (s *Scheduler) Cancel(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[productID]
	if !ok {
		return
	}
	s.cron.Remove(id)
	delete(s.entries, productID)

	s.logger.Info("tracking cancelled", slog.String("productID", productID))
}

// Has reports whether a job is currently registered for productID.
func (s *Scheduler) Has(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[productID]
	return ok
}

// cronLogger adapts slog to cron's Logger interface so Recover'd panics land
// in the application log stream.
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info("cron: "+msg, slog.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg,
		slog.String("error", err.Error()),
		slog.Any("details", keysAndValues),
	)
}
