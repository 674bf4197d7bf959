package documents

import (
	"context"
	"time"

	"auditdocs-backend/internal/shared/telemetry"
)

// SweepJob rechecks documents stuck in processing. It is scheduled
// periodically (cron) and covers documents whose detached reconciliation was
// lost to a restart, plus partition attachments that failed during ingestion.
type SweepJob struct {
	Repo       Repo
	Reconciler *Reconciler
	// Grace keeps freshly ingested documents out of the sweep while their
	// own reconciliation loop is still running.
	Grace     time.Duration
	BatchSize int
}

// Run performs one sweep pass.
func (j *SweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	grace := j.Grace
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	limit := j.BatchSize
	if limit <= 0 {
		limit = 100
	}

	docs, err := j.Repo.ListByStatus(ctx, StatusProcessing, time.Now().UTC().Add(-grace), limit)
	if err != nil {
		telemetry.Error("sweep.list_failed", map[string]any{"err": err.Error()})
		return
	}
	if len(docs) == 0 {
		return
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}

	result := j.Reconciler.RecheckMany(ctx, ids)
	telemetry.Info("sweep.done", map[string]any{
		"checked": len(ids),
		"errors":  len(result.Errors),
	})
}
