package background

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrRunnerNotStarted = errors.New("backup job runner not started")
	ErrBackupInProgress = errors.New("a backup of this type is already queued or running")
	errRunnerStopping   = errors.New("backup job runner is stopping")
)

var (
	backupJobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio_admin",
		Subsystem: "background",
		Name:      "backup_job_runs_total",
		Help:      "Backup job attempts by backup type and outcome",
	}, []string{"type", "status"})

	backupJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portfolio_admin",
		Subsystem: "background",
		Name:      "backup_job_duration_seconds",
		Help:      "Duration of backup job attempts",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"type"})

	backupJobLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "portfolio_admin",
		Subsystem: "background",
		Name:      "backup_job_last_success_timestamp",
		Help:      "Unix timestamp of the last successful backup job",
	}, []string{"type"})
)

// BackupJob is one backup run. Only one job per backup type may be queued or
// running at a time.
type BackupJob struct {
	Type    models.BackupType
	Timeout time.Duration
	Retries int
	Backoff time.Duration
	Run     func(ctx context.Context) (*models.BackupManifest, error)
}

func (j BackupJob) key() string {
	return "backup:" + string(j.Type)
}

type JobRunnerConfig struct {
	Workers   int
	QueueSize int
}

// JobRunner executes backup jobs on a small worker pool.
type JobRunner struct {
	config JobRunnerConfig
	queue  chan BackupJob

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	inflight map[string]struct{}
	workers  sync.WaitGroup
}

func NewJobRunner(cfg JobRunnerConfig) *JobRunner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4
	}
	return &JobRunner{
		config:   cfg,
		queue:    make(chan BackupJob, cfg.QueueSize),
		inflight: make(map[string]struct{}),
	}
}

func (r *JobRunner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx != nil {
		return
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	for i := 0; i < r.config.Workers; i++ {
		r.workers.Add(1)
		go r.work(r.ctx)
	}
}

// Submit queues job unless one of the same backup type is already pending.
func (r *JobRunner) Submit(job BackupJob) error {
	if !job.Type.Valid() {
		return fmt.Errorf("invalid backup type %q", job.Type)
	}
	if job.Run == nil {
		return errors.New("backup job has no run function")
	}

	key := job.key()

	r.mu.Lock()
	if r.ctx == nil {
		r.mu.Unlock()
		return ErrRunnerNotStarted
	}
	if _, busy := r.inflight[key]; busy {
		r.mu.Unlock()
		return ErrBackupInProgress
	}
	r.inflight[key] = struct{}{}
	ctx := r.ctx
	r.mu.Unlock()

	select {
	case r.queue <- job:
		return nil
	case <-ctx.Done():
		r.release(key)
		return errRunnerStopping
	default:
		r.release(key)
		return fmt.Errorf("backup job queue is full (%d)", r.config.QueueSize)
	}
}

func (r *JobRunner) work(ctx context.Context) {
	defer r.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			r.execute(ctx, job)
		}
	}
}

func (r *JobRunner) execute(ctx context.Context, job BackupJob) {
	key := job.key()
	defer r.release(key)

	for attempt := 1; ; attempt++ {
		manifest, err := r.attempt(ctx, job)
		fields := map[string]interface{}{"job": key, "attempt": attempt}

		if err == nil {
			if manifest != nil {
				fields["backup_id"] = manifest.ID
			}
			logger.Info("Backup job completed", fields)
			return
		}
		if errors.Is(err, context.Canceled) || attempt > job.Retries {
			logger.Error(err, "Backup job failed", fields)
			return
		}

		logger.Warn("Backup job failed, retrying", map[string]interface{}{
			"job":     key,
			"attempt": attempt,
			"backoff": job.Backoff.String(),
			"error":   err.Error(),
		})
		if job.Backoff > 0 {
			timer := time.NewTimer(job.Backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				logger.Warn("Backup job canceled during backoff", fields)
				return
			}
		}
	}
}

func (r *JobRunner) attempt(ctx context.Context, job BackupJob) (manifest *models.BackupManifest, err error) {
	label := string(job.Type)
	start := time.Now()

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}

		status := "success"
		switch {
		case err == nil:
			backupJobLastSuccess.WithLabelValues(label).Set(float64(time.Now().Unix()))
		case errors.Is(err, context.Canceled):
			status = "canceled"
		case errors.Is(err, context.DeadlineExceeded):
			status = "timeout"
		default:
			status = "failure"
		}
		backupJobRunsTotal.WithLabelValues(label, status).Inc()
		backupJobDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	return job.Run(ctx)
}

func (r *JobRunner) release(key string) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}

// Shutdown cancels running jobs and waits for the workers to exit.
func (r *JobRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
