package service

import (
	"context"
	"sync"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	auditEventsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portfolio_admin",
		Subsystem: "audit",
		Name:      "events_written_total",
		Help:      "Total number of audit events persisted.",
	})
	auditEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio_admin",
		Subsystem: "audit",
		Name:      "events_dropped_total",
		Help:      "Total number of audit events that were never persisted.",
	}, []string{"reason"})
	auditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "portfolio_admin",
		Subsystem: "audit",
		Name:      "queue_depth",
		Help:      "Number of audit events waiting to be flushed.",
	})
)

// AuditRecorder persists audit events off the request path. Delivery is at
// most once: events are dropped when the queue is full or a batch write fails.
// Until Start is called events are written inline and failures are only logged.
type AuditRecorder struct {
	repo          repository.AuditRepository
	queue         chan models.AuditEvent
	queueSize     int
	batchSize     int
	flushInterval time.Duration
	afterWrite    func()

	mu      sync.RWMutex
	running bool
	done    chan struct{}
}

func NewAuditRecorder(repo repository.AuditRepository, queueSize, batchSize int, flushInterval time.Duration) *AuditRecorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}

	return &AuditRecorder{
		repo:          repo,
		queueSize:     queueSize,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (r *AuditRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	r.queue = make(chan models.AuditEvent, r.queueSize)
	r.done = make(chan struct{})
	r.running = true

	go r.run(r.queue, r.done)

	logger.Info("Audit recorder started", map[string]interface{}{
		"queue_size":     r.queueSize,
		"batch_size":     r.batchSize,
		"flush_interval": r.flushInterval.String(),
	})
}

// Shutdown stops accepting queued events and waits for the pending ones to be
// flushed or for ctx to end.
func (r *AuditRecorder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.queue)
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		logger.Info("Audit recorder stopped", nil)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *AuditRecorder) Record(event models.AuditEvent) {
	r.mu.RLock()
	if r.running {
		select {
		case r.queue <- event:
			auditQueueDepth.Inc()
		default:
			auditEventsDropped.WithLabelValues("queue_full").Inc()
			logger.Warn("Audit queue full, event dropped", map[string]interface{}{
				"action":   event.Action,
				"resource": event.Resource,
			})
		}
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	if err := r.repo.Create(&event); err != nil {
		auditEventsDropped.WithLabelValues("write_failed").Inc()
		logger.Error(err, "Failed to write audit event", map[string]interface{}{
			"action":   event.Action,
			"resource": event.Resource,
		})
		return
	}
	auditEventsWritten.Inc()
	r.written()
}

func (r *AuditRecorder) run(queue <-chan models.AuditEvent, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]models.AuditEvent, 0, r.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.flush(batch)
		batch = make([]models.AuditEvent, 0, r.batchSize)
	}

	for {
		select {
		case event, ok := <-queue:
			if !ok {
				flush()
				return
			}
			auditQueueDepth.Dec()
			batch = append(batch, event)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (r *AuditRecorder) flush(batch []models.AuditEvent) {
	if err := r.repo.CreateBatch(batch); err != nil {
		auditEventsDropped.WithLabelValues("write_failed").Add(float64(len(batch)))
		logger.Error(err, "Failed to flush audit events", map[string]interface{}{
			"events": len(batch),
		})
		return
	}
	auditEventsWritten.Add(float64(len(batch)))
	r.written()
}

func (r *AuditRecorder) written() {
	if r.afterWrite != nil {
		r.afterWrite()
	}
}
