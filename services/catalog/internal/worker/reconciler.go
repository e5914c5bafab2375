package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sakashimaa/marketplace/pkg/mylogger"
	"github.com/sakashimaa/marketplace/services/catalog/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	pendingEdits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_staged_edits_pending",
		Help: "Pending staged edits in the ledger.",
	})
	abandonedEdits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_staged_edits_abandoned",
		Help: "Pending staged edits older than the abandonment threshold.",
	})
	repairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_staging_repairs_total",
		Help: "Staging cache entries fixed by the reconciler.",
	}, []string{"action"})
)

type EditLedger interface {
	ListPendingEdits(ctx context.Context, createdBefore time.Time) ([]*domain.StagedEdit, error)
}

type EditCache interface {
	Index(ctx context.Context) (map[string]*domain.StagedEdit, error)
	Backfill(ctx context.Context, edit *domain.StagedEdit) (bool, error)
	RemoveEdit(ctx context.Context, editID uuid.UUID) (bool, error)
}

type Report struct {
	Pending    int
	Backfilled int
	Evicted    int
	Abandoned  int
}

// Reconciler brings the staging cache back in line with the edit ledger.
type Reconciler struct {
	ledger         EditLedger
	cache          EditCache
	interval       time.Duration
	abandonedAfter time.Duration
	now            func() time.Time
	logger         *zap.Logger
	tracer         trace.Tracer
}

func NewReconciler(ledger EditLedger, cache EditCache, interval, abandonedAfter time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		ledger:         ledger,
		cache:          cache,
		interval:       interval,
		abandonedAfter: abandonedAfter,
		now:            time.Now,
		logger:         logger,
		tracer:         otel.Tracer("staging-reconciler"),
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	mylogger.Info(ctx, r.logger, "Starting staging reconciler", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, r.logger, "Staging reconciler stopping")
			return
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				mylogger.Error(ctx, r.logger, "Error reconciling staging cache", zap.Error(err))
			}
		}
	}
}

// Reconcile runs one pass. The cache is read before the ledger: an edit can only
// leave the pending state, so a cached id missing from the later ledger read is stale.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.Reconcile")
	defer span.End()

	var report Report

	cached, err := r.cache.Index(ctx)
	if err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("read staging cache: %w", err)
	}

	pending, err := r.ledger.ListPendingEdits(ctx, time.Time{})
	if err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("list pending edits: %w", err)
	}

	report.Pending = len(pending)
	now := r.now()

	pendingIDs := make(map[uuid.UUID]struct{}, len(pending))
	var errs error

	for _, edit := range pending {
		pendingIDs[edit.ID] = struct{}{}

		if edit.Abandoned(now, r.abandonedAfter) {
			report.Abandoned++
			mylogger.Warn(ctx, r.logger, "Staged edit awaiting decision too long",
				zap.String("product_id", edit.ProductID),
				zap.String("edit_id", edit.ID.String()),
				zap.Time("staged_at", edit.CreatedAt),
			)
		}
	}

	// evict first so a superseded entry does not block the backfill of its successor
	for productID, entry := range cached {
		if _, ok := pendingIDs[entry.ID]; ok {
			continue
		}

		removed, err := r.cache.RemoveEdit(ctx, entry.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("evict %s: %w", productID, err))
			continue
		}
		if removed {
			report.Evicted++
			repairsTotal.WithLabelValues("evict").Inc()
		}
	}

	for _, edit := range pending {
		if entry, ok := cached[edit.ProductID]; ok && entry.ID == edit.ID {
			continue
		}

		added, err := r.cache.Backfill(ctx, edit)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("backfill %s: %w", edit.ProductID, err))
			continue
		}
		if added {
			report.Backfilled++
			repairsTotal.WithLabelValues("backfill").Inc()
		}
	}

	pendingEdits.Set(float64(report.Pending))
	abandonedEdits.Set(float64(report.Abandoned))

	if report.Backfilled > 0 || report.Evicted > 0 {
		mylogger.Info(ctx, r.logger, "Staging cache repaired",
			zap.Int("backfilled", report.Backfilled),
			zap.Int("evicted", report.Evicted),
		)
	}

	if errs != nil {
		span.RecordError(errs)
	}
	return report, errs
}
