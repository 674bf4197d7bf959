package documents

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"auditdocs-backend/internal/searchindex"
	"auditdocs-backend/internal/shared/metrics"
	"auditdocs-backend/internal/shared/telemetry"
)

const recheckConcurrency = 4

// ReconcileConfig bounds the polling loop.
type ReconcileConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// DefaultReconcileConfig returns the default polling bounds.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		MaxAttempts: 20,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Factor:      1.5,
	}
}

func (c ReconcileConfig) normalized() ReconcileConfig {
	def := DefaultReconcileConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Factor <= 1 {
		c.Factor = def.Factor
	}
	return c
}

// Delay returns the wait before attempt n+1 (n is 1-based):
// min(base * factor^(n-1), max).
func (c ReconcileConfig) Delay(attempt int) time.Duration {
	d := float64(c.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= c.Factor
		if d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	if d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Reconciler drives a document from processing to a terminal status by
// polling the index with bounded backoff.
type Reconciler struct {
	Repo        Repo
	Index       searchindex.Client
	PartitionID string
	Cfg         ReconcileConfig

	// after is swappable for tests; defaults to time.After.
	after func(time.Duration) <-chan time.Time
}

// NewReconciler constructs a Reconciler.
func NewReconciler(repo Repo, index searchindex.Client, partitionID string, cfg ReconcileConfig) *Reconciler {
	return &Reconciler{
		Repo:        repo,
		Index:       index,
		PartitionID: partitionID,
		Cfg:         cfg.normalized(),
		after:       time.After,
	}
}

// Spawn launches a detached reconciliation. The caller gets no handle; the
// run always reaches one of its terminal outcomes on its own.
func (r *Reconciler) Spawn(docID string) {
	go r.Run(context.Background(), docID)
}

// Run polls the index until the document is searchable or attempts run out,
// then records the terminal status. Re-invoking on an already-terminal
// document is a no-op. Per-document probes are sequential; the loop never
// overlaps itself for one document.
func (r *Reconciler) Run(ctx context.Context, docID string) {
	doc, err := r.Repo.GetByID(ctx, docID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			telemetry.Error("reconcile.load_failed", map[string]any{"document_id": docID, "err": err.Error()})
		}
		return
	}
	if doc.Terminal() {
		return
	}

	cfg := r.Cfg.normalized()
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		probe, err := r.Index.ProbeSearchable(ctx, r.PartitionID, doc.ExternalFileRef)
		if err == nil && probe == searchindex.ProbeReady {
			r.finish(ctx, docID, StatusReady, attempt)
			return
		}
		if err != nil {
			telemetry.Info("reconcile.probe_error", map[string]any{
				"document_id": docID,
				"attempt":     attempt,
				"err":         err.Error(),
			})
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-r.wait(cfg.Delay(attempt)):
		}
	}

	r.finish(ctx, docID, StatusFailed, cfg.MaxAttempts)
}

// finish records the terminal transition. A failure here is reported, not
// retried; the sweep will encounter the row again.
func (r *Reconciler) finish(ctx context.Context, docID, status string, attempts int) {
	if err := r.Repo.UpdateStatus(ctx, docID, status); err != nil {
		telemetry.Error("reconcile.update_failed", map[string]any{
			"document_id": docID,
			"status":      status,
			"err":         err.Error(),
		})
		return
	}
	switch status {
	case StatusReady:
		metrics.IncReconcileReady()
	case StatusFailed:
		metrics.IncReconcileFailed()
	}
	telemetry.Info("reconcile.done", map[string]any{
		"document_id": docID,
		"status":      status,
		"attempts":    attempts,
	})
}

func (r *Reconciler) wait(d time.Duration) <-chan time.Time {
	if r.after != nil {
		return r.after(d)
	}
	return time.After(d)
}

// RecheckResult is the outcome of a bulk recheck sweep.
type RecheckResult struct {
	Statuses map[string]string `json:"statuses"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// RecheckMany performs a single best-effort probe per non-terminal document.
// It flips to ready only when both the raw file status and the partition
// probe agree, to failed when either signal is terminal, and otherwise
// leaves the document processing for the asynchronous reconciler.
func (r *Reconciler) RecheckMany(ctx context.Context, ids []string) RecheckResult {
	result := RecheckResult{
		Statuses: make(map[string]string, len(ids)),
		Errors:   make(map[string]string),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recheckConcurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			status, err := r.recheckOne(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[id] = err.Error()
				return nil
			}
			result.Statuses[id] = status
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (r *Reconciler) recheckOne(ctx context.Context, id string) (string, error) {
	doc, err := r.Repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if doc.Terminal() {
		return doc.Status, nil
	}

	fileStatus, fileErr := r.Index.FileStatus(ctx, doc.ExternalFileRef)
	probe, probeErr := r.Index.ProbeSearchable(ctx, r.PartitionID, doc.ExternalFileRef)

	switch {
	case fileErr == nil && probeErr == nil && fileStatus == searchindex.ProbeReady && probe == searchindex.ProbeReady:
		if err := r.Repo.UpdateStatus(ctx, doc.ID, StatusReady); err != nil {
			return "", err
		}
		return StatusReady, nil
	case (fileErr == nil && fileStatus == searchindex.ProbeFailed) || (probeErr == nil && probe == searchindex.ProbeFailed):
		if err := r.Repo.UpdateStatus(ctx, doc.ID, StatusFailed); err != nil {
			return "", err
		}
		return StatusFailed, nil
	default:
		// Signals disagree or a probe errored transiently; stay processing.
		return StatusProcessing, nil
	}
}
