package background

import (
	"context"
	"errors"
	"sync"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/pkg/logger"

	"github.com/robfig/cron/v3"
)

// BackupRunner is the part of the backup service the planner drives.
type BackupRunner interface {
	GetSchedule() (*models.BackupSchedule, error)
	RunScheduled(ctx context.Context) (*models.BackupManifest, error)
}

type PlannerConfig struct {
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// BackupPlanner re-reads the stored backup schedule on every poll and submits
// a scheduled backup to the job runner whenever a cron activation fell
// between the previous poll and now. Missed activations while the process
// was down are not replayed.
type BackupPlanner struct {
	runner BackupRunner
	jobs   *JobRunner
	config PlannerConfig
	now    func() time.Time

	mu        sync.Mutex
	lastCheck time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewBackupPlanner(runner BackupRunner, jobs *JobRunner, cfg PlannerConfig) *BackupPlanner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	return &BackupPlanner{
		runner: runner,
		jobs:   jobs,
		config: cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *BackupPlanner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.lastCheck = p.now()

	go p.loop(ctx, p.done)

	logger.Info("Backup planner started", map[string]interface{}{"poll_interval": p.config.PollInterval.String()})
}

func (p *BackupPlanner) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(p.now())
		}
	}
}

// tick submits a backup when the schedule had an activation in
// (lastCheck, now]. It reports whether a job was submitted.
func (p *BackupPlanner) tick(now time.Time) bool {
	p.mu.Lock()
	since := p.lastCheck
	p.lastCheck = now
	p.mu.Unlock()

	schedule, err := p.runner.GetSchedule()
	if err != nil {
		logger.Error(err, "Failed to load backup schedule", nil)
		return false
	}
	if schedule == nil || !schedule.Enabled {
		return false
	}

	parsed, err := cron.ParseStandard(schedule.Cron)
	if err != nil {
		logger.Warn("Ignoring invalid backup schedule", map[string]interface{}{"cron": schedule.Cron, "error": err.Error()})
		return false
	}

	if next := parsed.Next(since); next.After(now) {
		return false
	}

	err = p.jobs.Submit(BackupJob{
		Type:    models.BackupTypeScheduled,
		Timeout: p.config.JobTimeout,
		Retries: 1,
		Backoff: time.Minute,
		Run:     p.runner.RunScheduled,
	})
	switch {
	case errors.Is(err, ErrBackupInProgress):
		logger.Warn("Previous scheduled backup is still running, skipping", nil)
		return false
	case err != nil:
		logger.Error(err, "Failed to submit scheduled backup", nil)
		return false
	}

	logger.Info("Scheduled backup submitted", map[string]interface{}{"cron": schedule.Cron})
	return true
}

func (p *BackupPlanner) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
