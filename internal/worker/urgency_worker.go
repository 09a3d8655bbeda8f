package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qaddoumi/tahweel/internal/domain"
	"github.com/qaddoumi/tahweel/internal/observability"
	"github.com/qaddoumi/tahweel/internal/service"
)

// UrgencyWorker keeps the urgent-orders gauge fresh: it counts unreviewed
// orders older than the urgency threshold so dashboards can alert on a
// growing review backlog. Urgency itself is derived per read; this worker
// never writes order rows.
type UrgencyWorker struct {
	store    service.QueryStore
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewUrgencyWorker(store service.QueryStore) *UrgencyWorker {
	return &UrgencyWorker{
		store:    store,
		interval: time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *UrgencyWorker) WithInterval(interval time.Duration) *UrgencyWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and refreshes the gauge at the configured interval.
func (w *UrgencyWorker) Start(ctx context.Context) {
	zap.L().Info("urgency worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("urgency worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("urgency worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *UrgencyWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *UrgencyWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *UrgencyWorker) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-domain.UrgencyThreshold)
	count, err := w.store.Queries().CountUnreviewedOlderThan(ctx, cutoff)
	if err != nil {
		observability.IncrementWorkerRun("urgency", "failed")
		zap.L().Error("urgent order count failed", zap.Error(err))
		return
	}
	observability.SetUrgentOrders(count)
	observability.IncrementWorkerRun("urgency", "success")
}
