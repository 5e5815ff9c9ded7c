package events

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/telemetry"
)

// LedgerEventArgs is the River job enqueued for every appended event.
type LedgerEventArgs struct {
	Event models.Event `json:"event"`
}

func (LedgerEventArgs) Kind() string { return "ledger_event" }

// Worker publishes ledger events. A failed publish is returned so River
// retries the job with backoff.
type Worker struct {
	river.WorkerDefaults[LedgerEventArgs]
	pub     Publisher
	metrics *telemetry.Metrics
	log     *slog.Logger
}

func NewWorker(pub Publisher, m *telemetry.Metrics, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{pub: pub, metrics: m, log: log}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[LedgerEventArgs]) error {
	e := job.Args.Event
	if err := w.pub.Publish(ctx, e); err != nil {
		w.log.Warn("publish ledger event", "kind", e.Kind, "id", e.ID, "attempt", job.Attempt, "error", err)
		return err
	}
	w.metrics.EventPublished(ctx, e.Kind)
	return nil
}

// CommitHook publishes events straight after a commit. It serves stores
// that cannot enqueue jobs transactionally; delivery is best effort.
func CommitHook(pub Publisher, m *telemetry.Metrics, log *slog.Logger) func(ctx context.Context, events []models.Event) {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, events []models.Event) {
		for _, e := range events {
			if err := pub.Publish(context.WithoutCancel(ctx), e); err != nil {
				log.Error("publish ledger event", "kind", e.Kind, "id", e.ID, "error", err)
				continue
			}
			m.EventPublished(ctx, e.Kind)
		}
	}
}
