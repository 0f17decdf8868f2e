// Package refresh provides the asynchronous projection refresh queue.
//
// Ledger and conversion services hand touched items to the queue after commit;
// a background worker folds them into the current-value projection. Scheduling
// never blocks the caller and a refresh failure never propagates back: the
// projection is disposable and can always be rebuilt.
package refresh

import (
	"context"
	"sync"
	"time"

	"invcore/internal/domain/ledger"
	"invcore/internal/domain/projection"
	"invcore/internal/infrastructure/metrics"
	"invcore/pkg/logger"
)

// Queue implements ledger.Refresher with a buffered channel and a single
// background worker.
type Queue struct {
	svc     *projection.Service
	metrics *metrics.Metrics

	ch chan ledger.ItemRef
	wg sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// timeout bounds one refresh pass.
	timeout time.Duration
}

var _ ledger.Refresher = (*Queue)(nil)

// NewQueue creates a refresh queue with the given buffer size and starts its
// worker. A zero or negative size defaults to 1024.
func NewQueue(svc *projection.Service, m *metrics.Metrics, size int) *Queue {
	if size <= 0 {
		size = 1024
	}
	q := &Queue{
		svc:     svc,
		metrics: m,
		ch:      make(chan ledger.ItemRef, size),
		timeout: 30 * time.Second,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Schedule enqueues refresh requests. Never blocks: when the buffer is full
// the request is dropped and counted, relying on a later full rebuild.
func (q *Queue) Schedule(items ...ledger.ItemRef) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}

	for _, item := range items {
		select {
		case q.ch <- item:
			if q.metrics != nil {
				q.metrics.ProjectionQueueDepth.Set(float64(len(q.ch)))
			}
		default:
			if q.metrics != nil {
				q.metrics.ProjectionQueueDropped.Inc()
			}
			logger.Warn(context.Background(), "projection refresh dropped, queue full",
				"sku", item.SKU)
		}
	}
}

// Close stops the worker after draining queued requests.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for item := range q.ch {
		q.refresh(item)
		if q.metrics != nil {
			q.metrics.ProjectionQueueDepth.Set(float64(len(q.ch)))
		}
	}
}

// refresh runs one refresh pass on a background context: the scheduling
// request's context may already be gone.
func (q *Queue) refresh(item ledger.ItemRef) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := q.svc.Refresh(ctx, item); err != nil {
		if q.metrics != nil {
			q.metrics.ProjectionRefreshes.WithLabelValues("failed").Inc()
		}
		logger.Error(ctx, "projection refresh failed",
			"sku", item.SKU,
			"item_type", item.ItemType,
			"error", err,
		)
		return
	}
	if q.metrics != nil {
		q.metrics.ProjectionRefreshes.WithLabelValues("ok").Inc()
	}
}
