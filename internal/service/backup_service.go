package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/internal/storage"
	"portfolio-admin-backend/pkg/cache"
	"portfolio-admin-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

const (
	scheduleEnabledKey   = "backup.schedule.enabled"
	scheduleCronKey      = "backup.schedule.cron"
	scheduleRetentionKey = "backup.schedule.retention"
)

var (
	backupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio_admin",
		Subsystem: "backup",
		Name:      "runs_total",
		Help:      "Total number of backups by type and final status.",
	}, []string{"type", "status"})
	backupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portfolio_admin",
		Subsystem: "backup",
		Name:      "duration_seconds",
		Help:      "Time spent producing a backup payload.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"type"})
	restoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio_admin",
		Subsystem: "backup",
		Name:      "restores_total",
		Help:      "Total number of restore attempts by outcome.",
	}, []string{"outcome"})

	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

type BackupOptions struct {
	Tables            []string
	IncludeMedia      bool
	IncludeSystemData bool
	Description       string
	Actor             models.Actor
}

type RestoreOptions struct {
	CreatePreRestoreBackup bool
	ValidateIntegrity      bool
	Actor                  models.Actor
}

type BackupScheduleDefaults struct {
	Enabled   bool
	Cron      string
	Retention int
}

type BackupService struct {
	db        *gorm.DB
	repo      repository.BackupRepository
	settings  repository.SettingRepository
	tables    *repository.TableRegistry
	store     storage.BackupStore
	uploadDir string
	defaults  BackupScheduleDefaults
	audit     *AuditService
	cache     *cache.Cache
	now       func() time.Time

	// restores are serialised; a restore rewrites whole tables.
	restoreMu sync.Mutex
}

func NewBackupService(
	db *gorm.DB,
	repo repository.BackupRepository,
	settings repository.SettingRepository,
	tables *repository.TableRegistry,
	store storage.BackupStore,
	uploadDir string,
	defaults BackupScheduleDefaults,
	audit *AuditService,
	cacheService *cache.Cache,
) *BackupService {
	return &BackupService{
		db:        db,
		repo:      repo,
		settings:  settings,
		tables:    tables,
		store:     store,
		uploadDir: uploadDir,
		defaults:  defaults,
		audit:     audit,
		cache:     cacheService,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ParseCronSchedule parses a five field cron expression or a descriptor such
// as @daily.
func ParseCronSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty cron expression", ErrInvalidSchedule)
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return schedule, nil
}

// CreateBackup snapshots the selected tables into a zip payload, stores it
// and records a manifest. The manifest moves from pending to in_progress to
// completed or failed; a failed manifest is kept for diagnosis.
func (s *BackupService) CreateBackup(ctx context.Context, backupType models.BackupType, opts BackupOptions) (*models.BackupManifest, error) {
	manifest, err := s.createBackup(ctx, backupType, opts)

	resourceID := ""
	if manifest != nil {
		resourceID = manifest.ID
	}
	s.audit.Track(opts.Actor, "backup.create", "backup", resourceID, models.SeverityMedium, err,
		models.JSONMap{"type": string(backupType)})

	if manifest != nil {
		backupsTotal.WithLabelValues(string(backupType), string(manifest.Status)).Inc()
		_ = s.cache.InvalidateBackupStatistics()
	}
	return manifest, err
}

func (s *BackupService) createBackup(ctx context.Context, backupType models.BackupType, opts BackupOptions) (*models.BackupManifest, error) {
	if backupType == "" {
		backupType = models.BackupTypeManual
	}
	if !backupType.Valid() {
		return nil, ErrInvalidBackupType
	}

	tables, err := s.tables.Resolve(opts.Tables, opts.IncludeSystemData)
	if err != nil {
		return nil, newValidationError(err.Error())
	}

	manifest := &models.BackupManifest{
		ID:        uuid.NewString(),
		Type:      backupType,
		Status:    models.BackupStatusPending,
		CreatedAt: s.now(),
		Metadata: models.BackupMetadata{
			IncludeMedia:      opts.IncludeMedia,
			IncludeSystemData: opts.IncludeSystemData,
			Description:       strings.TrimSpace(opts.Description),
			CreatedBy:         opts.Actor.Label(),
		},
	}
	if err := s.repo.Create(manifest); err != nil {
		return nil, fmt.Errorf("failed to record backup: %w", err)
	}

	manifest.Status = models.BackupStatusInProgress
	if err := s.repo.Update(manifest); err != nil {
		return s.failBackup(manifest, fmt.Errorf("failed to update backup status: %w", err))
	}

	started := time.Now()
	err = s.writePayload(ctx, manifest, tables, opts.IncludeMedia)
	backupDuration.WithLabelValues(string(backupType)).Observe(time.Since(started).Seconds())
	if err != nil {
		return s.failBackup(manifest, err)
	}

	completedAt := s.now()
	manifest.Status = models.BackupStatusCompleted
	manifest.CompletedAt = &completedAt
	if err := s.repo.Update(manifest); err != nil {
		return s.failBackup(manifest, fmt.Errorf("failed to finalise backup: %w", err))
	}

	logger.Info("Backup completed", map[string]interface{}{
		"backup_id": manifest.ID,
		"type":      manifest.Type,
		"size":      manifest.Size,
		"records":   manifest.Metadata.RecordCount,
		"store":     s.store.Kind(),
	})

	return manifest, nil
}

func (s *BackupService) writePayload(ctx context.Context, manifest *models.BackupManifest, tables []repository.Table, includeMedia bool) error {
	snapshot, err := snapshotTables(s.db.WithContext(ctx), tables)
	if err != nil {
		return err
	}

	var uploads []string
	if includeMedia {
		if uploads, err = listUploads(s.uploadDir); err != nil {
			return err
		}
	}

	tempFile, err := os.CreateTemp("", "portfolio-backup-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create temporary archive: %w", err)
	}
	defer func() {
		tempFile.Close()
		os.Remove(tempFile.Name())
	}()

	hasher := sha256.New()
	counter := &countingWriter{}
	archiveManifest := archiveManifest{
		BackupID:    manifest.ID,
		Type:        string(manifest.Type),
		GeneratedAt: manifest.CreatedAt,
		Uploads:     uploads,
	}
	if err := writeArchive(io.MultiWriter(tempFile, hasher, counter), archiveManifest, snapshot, s.uploadDir); err != nil {
		return err
	}

	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind backup archive: %w", err)
	}

	key := fmt.Sprintf("backup-%s-%s.zip", manifest.CreatedAt.Format("20060102-150405"), manifest.ID)
	if err := s.store.Put(ctx, key, tempFile, counter.n); err != nil {
		return fmt.Errorf("failed to store backup payload: %w", err)
	}

	manifest.StorageKey = key
	manifest.Size = counter.n
	manifest.Checksum = hex.EncodeToString(hasher.Sum(nil))
	manifest.Metadata.Tables = snapshot.Tables
	manifest.Metadata.TableCounts = snapshot.Counts
	manifest.Metadata.RecordCount = snapshot.RecordCount()
	manifest.Metadata.MediaFiles = len(uploads)
	return nil
}

func (s *BackupService) failBackup(manifest *models.BackupManifest, cause error) (*models.BackupManifest, error) {
	manifest.Status = models.BackupStatusFailed
	manifest.ErrorMessage = cause.Error()
	if err := s.repo.Update(manifest); err != nil {
		logger.Error(err, "Failed to mark backup as failed", map[string]interface{}{"backup_id": manifest.ID})
	}
	logger.Error(cause, "Backup failed", map[string]interface{}{"backup_id": manifest.ID, "type": manifest.Type})
	return manifest, cause
}

// RestoreFromBackup replaces the tables captured in a backup with its
// contents. With ValidateIntegrity the payload checksum is verified before
// any table is touched and a mismatch refuses the restore.
func (s *BackupService) RestoreFromBackup(ctx context.Context, backupID string, opts RestoreOptions) (*models.RestoreResult, error) {
	s.restoreMu.Lock()
	defer s.restoreMu.Unlock()

	result, err := s.restore(ctx, backupID, opts)

	outcome := "success"
	severity := models.SeverityCritical
	switch {
	case errors.Is(err, ErrChecksumMismatch):
		outcome = "checksum_mismatch"
	case err != nil:
		outcome = "failed"
	}
	restoresTotal.WithLabelValues(outcome).Inc()
	s.audit.Track(opts.Actor, "backup.restore", "backup", backupID, severity, err,
		models.JSONMap{"validate_integrity": opts.ValidateIntegrity, "pre_restore_backup": opts.CreatePreRestoreBackup})

	if err != nil {
		return nil, err
	}

	_ = s.cache.InvalidateAnalytics()
	_ = s.cache.InvalidateBackupStatistics()
	_ = s.cache.InvalidateAuditSummaries()
	return result, nil
}

func (s *BackupService) restore(ctx context.Context, backupID string, opts RestoreOptions) (*models.RestoreResult, error) {
	manifest, err := s.repo.GetByID(backupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if manifest.Status != models.BackupStatusCompleted || manifest.StorageKey == "" {
		return nil, fmt.Errorf("%w: backup status is %s", ErrBackupNotRestorable, manifest.Status)
	}

	payload, size, checksum, err := s.fetchPayload(ctx, manifest.StorageKey)
	if err != nil {
		return nil, err
	}
	defer func() {
		payload.Close()
		os.Remove(payload.Name())
	}()

	if opts.ValidateIntegrity && checksum != manifest.Checksum {
		logger.Warn("Backup checksum mismatch, restore refused", map[string]interface{}{
			"backup_id": manifest.ID,
			"expected":  manifest.Checksum,
			"actual":    checksum,
		})
		return nil, ErrChecksumMismatch
	}

	archive, err := openArchive(payload, size)
	if err != nil {
		return nil, err
	}

	tables := make([]repository.Table, 0, len(archive.Manifest.Tables))
	for _, name := range archive.Manifest.Tables {
		table, ok := s.tables.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown table %s", ErrInvalidBackup, name)
		}
		tables = append(tables, table)
	}

	result := &models.RestoreResult{
		BackupID:          manifest.ID,
		RestoredTables:    make(map[string]int, len(tables)),
		IntegrityVerified: opts.ValidateIntegrity,
	}

	if opts.CreatePreRestoreBackup {
		names := make([]string, 0, len(tables))
		system := false
		for _, table := range tables {
			names = append(names, table.Name())
			system = system || table.System()
		}
		pre, err := s.CreateBackup(ctx, models.BackupTypePreUpdate, BackupOptions{
			Tables:            names,
			IncludeSystemData: system,
			IncludeMedia:      manifest.Metadata.IncludeMedia,
			Description:       fmt.Sprintf("Automatic backup before restoring %s", manifest.ID),
			Actor:             opts.Actor,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pre-restore backup: %w", err)
		}
		result.PreRestoreBackup = pre.ID
	}

	restoreMedia := manifest.Metadata.IncludeMedia && archive.HasUploads()
	tempUploads := ""
	if restoreMedia {
		dir, count, err := archive.ExtractUploads()
		tempUploads = dir
		if err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
		result.RestoredMedia = count
	}
	staged := false
	defer func() {
		if tempUploads != "" && !staged {
			os.RemoveAll(tempUploads)
		}
	}()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			count, err := table.Restore(tx, archive.Tables[table.Name()])
			if err != nil {
				return err
			}
			result.RestoredTables[table.Name()] = count
			result.RestoredRecords += count
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to restore backup: %w", err)
	}

	if restoreMedia {
		previous, err := stageUploads(s.uploadDir, tempUploads)
		if err != nil {
			return nil, err
		}
		staged = true
		if previous != "" {
			if err := os.RemoveAll(previous); err != nil {
				logger.Warn("Failed to remove previous uploads after restore", map[string]interface{}{"path": previous, "error": err.Error()})
			}
		}
	}

	result.RestoredAt = s.now()

	logger.Info("Backup restored", map[string]interface{}{
		"backup_id": manifest.ID,
		"records":   result.RestoredRecords,
		"media":     result.RestoredMedia,
	})

	return result, nil
}

// fetchPayload copies a stored payload into a temporary file and returns it
// with its size and sha256 checksum.
func (s *BackupService) fetchPayload(ctx context.Context, key string) (*os.File, int64, string, error) {
	reader, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, 0, "", fmt.Errorf("%w: payload is missing", ErrBackupNotRestorable)
		}
		return nil, 0, "", fmt.Errorf("failed to read backup payload: %w", err)
	}
	defer reader.Close()

	spool, err := os.CreateTemp("", "portfolio-restore-*.zip")
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to prepare temporary archive: %w", err)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(spool, hasher), reader)
	if err == nil {
		_, err = spool.Seek(0, io.SeekStart)
	}
	if err != nil {
		spool.Close()
		os.Remove(spool.Name())
		return nil, 0, "", fmt.Errorf("failed to read backup payload: %w", err)
	}

	return spool, written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// DeleteBackup removes the manifest and its payload. It cannot be undone.
func (s *BackupService) DeleteBackup(ctx context.Context, backupID string, actor models.Actor) error {
	err := s.deleteBackup(ctx, backupID)
	s.audit.Track(actor, "backup.delete", "backup", backupID, models.SeverityHigh, err, nil)
	if err == nil {
		_ = s.cache.InvalidateBackupStatistics()
	}
	return err
}

func (s *BackupService) deleteBackup(ctx context.Context, backupID string) error {
	manifest, err := s.repo.GetByID(backupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if manifest.StorageKey != "" {
		if err := s.store.Delete(ctx, manifest.StorageKey); err != nil {
			return fmt.Errorf("failed to delete backup payload: %w", err)
		}
	}

	if err := s.repo.Delete(manifest.ID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}
	return nil
}

func (s *BackupService) GetBackup(backupID string) (*models.BackupManifest, error) {
	manifest, err := s.repo.GetByID(backupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return manifest, nil
}

func (s *BackupService) ListBackups(offset, limit int, backupType models.BackupType) ([]models.BackupManifest, int64, error) {
	if backupType != "" && !backupType.Valid() {
		return nil, 0, ErrInvalidBackupType
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	backups, total, err := s.repo.List(offset, limit, backupType)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list backups: %w", err)
	}
	if backups == nil {
		backups = []models.BackupManifest{}
	}
	return backups, total, nil
}

func (s *BackupService) Statistics() (*models.BackupStatistics, error) {
	var cached models.BackupStatistics
	if err := s.cache.GetCachedBackupStatistics(&cached); err == nil {
		return &cached, nil
	}

	stats, err := s.repo.Statistics()
	if err != nil {
		return nil, fmt.Errorf("failed to compute backup statistics: %w", err)
	}

	if err := s.cache.CacheBackupStatistics(stats); err != nil {
		logger.Warn("Failed to cache backup statistics", map[string]interface{}{"error": err.Error()})
	}
	return stats, nil
}

// RecoveryPoints lists completed backups newest first. A point is restorable
// when its payload is still present in the store.
func (s *BackupService) RecoveryPoints(ctx context.Context) ([]models.RecoveryPoint, error) {
	backups, err := s.repo.ListCompleted()
	if err != nil {
		return nil, fmt.Errorf("failed to list recovery points: %w", err)
	}

	points := make([]models.RecoveryPoint, 0, len(backups))
	for _, backup := range backups {
		restorable := false
		if backup.StorageKey != "" {
			if _, err := s.store.Stat(ctx, backup.StorageKey); err == nil {
				restorable = true
			} else if !errors.Is(err, storage.ErrObjectNotFound) {
				logger.Warn("Failed to inspect backup payload", map[string]interface{}{
					"backup_id": backup.ID,
					"error":     err.Error(),
				})
			}
		}

		points = append(points, models.RecoveryPoint{
			ID:          backup.ID,
			Type:        backup.Type,
			CreatedAt:   backup.CreatedAt,
			Size:        backup.Size,
			RecordCount: backup.Metadata.RecordCount,
			Tables:      backup.Metadata.Tables,
			Restorable:  restorable,
		})
	}

	return points, nil
}

// Download opens the stored payload of a completed backup.
func (s *BackupService) Download(ctx context.Context, backupID string) (io.ReadCloser, *models.BackupManifest, string, error) {
	manifest, err := s.GetBackup(backupID)
	if err != nil {
		return nil, nil, "", err
	}
	if manifest.Status != models.BackupStatusCompleted || manifest.StorageKey == "" {
		return nil, nil, "", ErrBackupNotRestorable
	}

	reader, err := s.store.Get(ctx, manifest.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, "", fmt.Errorf("%w: payload is missing", ErrBackupNotRestorable)
		}
		return nil, nil, "", err
	}

	filename := fmt.Sprintf("backup-%s.zip", manifest.CreatedAt.Format("2006-01-02-150405"))
	return reader, manifest, filename, nil
}

func (s *BackupService) GetSchedule() (*models.BackupSchedule, error) {
	values, err := s.settings.GetByPrefix("backup.schedule.")
	if err != nil {
		return nil, fmt.Errorf("failed to load backup schedule: %w", err)
	}

	schedule := &models.BackupSchedule{
		Enabled:   s.defaults.Enabled,
		Cron:      s.defaults.Cron,
		Retention: s.defaults.Retention,
	}
	if value, ok := values[scheduleEnabledKey]; ok {
		schedule.Enabled = value == "true"
	}
	if value, ok := values[scheduleCronKey]; ok && strings.TrimSpace(value) != "" {
		schedule.Cron = value
	}
	if value, ok := values[scheduleRetentionKey]; ok {
		if retention, err := strconv.Atoi(value); err == nil {
			schedule.Retention = retention
		}
	}

	if schedule.Enabled {
		if parsed, err := ParseCronSchedule(schedule.Cron); err == nil {
			next := parsed.Next(s.now())
			schedule.NextRunAt = &next
		}
	}

	return schedule, nil
}

func (s *BackupService) UpdateSchedule(req models.BackupScheduleRequest, actor models.Actor) (*models.BackupSchedule, error) {
	schedule, err := s.updateSchedule(req)
	s.audit.Track(actor, "backup.schedule", "backup_schedule", "", models.SeverityMedium, err,
		models.JSONMap{"enabled": req.Enabled, "cron": req.Cron, "retention": req.Retention})
	return schedule, err
}

func (s *BackupService) updateSchedule(req models.BackupScheduleRequest) (*models.BackupSchedule, error) {
	if _, err := ParseCronSchedule(req.Cron); err != nil {
		return nil, err
	}
	if req.Retention < 0 {
		return nil, fmt.Errorf("%w: retention must not be negative", ErrInvalidSchedule)
	}

	err := s.settings.SetMany(map[string]string{
		scheduleEnabledKey:   strconv.FormatBool(req.Enabled),
		scheduleCronKey:      strings.TrimSpace(req.Cron),
		scheduleRetentionKey: strconv.Itoa(req.Retention),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save backup schedule: %w", err)
	}

	return s.GetSchedule()
}

// ApplyRetention keeps the newest keep scheduled backups and deletes the rest.
// A keep of zero disables retention.
func (s *BackupService) ApplyRetention(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	backups, err := s.repo.ListByTypeOldestFirst(models.BackupTypeScheduled, models.BackupStatusCompleted)
	if err != nil {
		return 0, err
	}

	excess := len(backups) - keep
	deleted := 0
	for i := 0; i < excess; i++ {
		if err := s.DeleteBackup(ctx, backups[i].ID, models.SystemActor()); err != nil {
			return deleted, err
		}
		deleted++
	}

	if deleted > 0 {
		logger.Info("Old scheduled backups removed", map[string]interface{}{"deleted": deleted, "kept": keep})
	}
	return deleted, nil
}

// RunScheduled produces a full scheduled backup and applies retention.
func (s *BackupService) RunScheduled(ctx context.Context) (*models.BackupManifest, error) {
	schedule, err := s.GetSchedule()
	if err != nil {
		return nil, err
	}

	manifest, err := s.CreateBackup(ctx, models.BackupTypeScheduled, BackupOptions{
		IncludeMedia:      true,
		IncludeSystemData: true,
		Description:       "Scheduled backup",
		Actor:             models.SystemActor(),
	})
	if err != nil {
		return manifest, err
	}

	if _, err := s.ApplyRetention(ctx, schedule.Retention); err != nil {
		logger.Error(err, "Failed to apply backup retention", nil)
	}
	return manifest, nil
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
