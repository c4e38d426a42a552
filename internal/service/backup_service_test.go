package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"portfolio-admin-backend/internal/models"
)

func seedSkills(t *testing.T, env *testEnv, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := env.skills.Create(&models.Skill{Name: name, Level: 50}, testActor()); err != nil {
			t.Fatalf("create skill %s: %v", name, err)
		}
	}
}

func skillBackup(t *testing.T, env *testEnv) *models.BackupManifest {
	t.Helper()
	backup, err := env.backups.CreateBackup(context.Background(), models.BackupTypeManual, BackupOptions{
		Tables: []string{"skills"},
		Actor:  testActor(),
	})
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	return backup
}

func TestBackupCreateAndRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedSkills(t, env, "Go", "SQL")

	backup := skillBackup(t, env)
	if backup.Status != models.BackupStatusCompleted {
		t.Fatalf("expected completed backup, got %s", backup.Status)
	}
	if len(backup.Checksum) != 64 || backup.Size == 0 {
		t.Fatalf("expected sha256 checksum and size, got %q / %d", backup.Checksum, backup.Size)
	}
	if backup.Metadata.RecordCount != 2 || backup.Metadata.TableCounts["skills"] != 2 {
		t.Fatalf("unexpected metadata %+v", backup.Metadata)
	}

	seedSkills(t, env, "Rust")
	if got := env.count(t, "skills"); got != 3 {
		t.Fatalf("expected 3 skills before restore, got %d", got)
	}

	result, err := env.backups.RestoreFromBackup(ctx, backup.ID, RestoreOptions{
		CreatePreRestoreBackup: true,
		ValidateIntegrity:      true,
		Actor:                  testActor(),
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if result.RestoredTables["skills"] != 2 || result.RestoredRecords != 2 || !result.IntegrityVerified {
		t.Fatalf("unexpected restore result %+v", result)
	}
	if got := env.count(t, "skills"); got != 2 {
		t.Fatalf("expected 2 skills after restore, got %d", got)
	}

	pre, err := env.backups.GetBackup(result.PreRestoreBackup)
	if err != nil {
		t.Fatalf("pre-restore backup missing: %v", err)
	}
	if pre.Type != models.BackupTypePreUpdate || pre.Metadata.RecordCount != 3 {
		t.Fatalf("unexpected pre-restore backup %+v", pre)
	}
}

func TestRestoreRefusesChecksumMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedSkills(t, env, "Go", "SQL")
	backup := skillBackup(t, env)
	seedSkills(t, env, "Rust")

	garbage := []byte("this is not the archive that was stored")
	if err := env.store.Put(ctx, backup.StorageKey, bytes.NewReader(garbage), int64(len(garbage))); err != nil {
		t.Fatalf("tamper payload: %v", err)
	}

	_, err := env.backups.RestoreFromBackup(ctx, backup.ID, RestoreOptions{
		CreatePreRestoreBackup: true,
		ValidateIntegrity:      true,
		Actor:                  testActor(),
	})
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}

	if got := env.count(t, "skills"); got != 3 {
		t.Fatalf("tables must be untouched after a refused restore, got %d skills", got)
	}
	backups, total, err := env.backups.ListBackups(0, 10, models.BackupTypePreUpdate)
	if err != nil {
		t.Fatalf("list backups: %v", err)
	}
	if total != 0 || len(backups) != 0 {
		t.Fatalf("no pre-restore backup should be taken for a refused restore, got %d", total)
	}

	events, _, err := env.audit.ListEvents(models.AuditFilter{Action: "backup.restore"})
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(events) != 1 || events[0].Success || events[0].Severity != models.SeverityCritical {
		t.Fatalf("expected one failed critical restore event, got %+v", events)
	}
}

func TestRestoreWithoutPayloadIsNotRestorable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedSkills(t, env, "Go")
	backup := skillBackup(t, env)

	if err := env.store.Delete(ctx, backup.StorageKey); err != nil {
		t.Fatalf("delete payload: %v", err)
	}

	points, err := env.backups.RecoveryPoints(ctx)
	if err != nil {
		t.Fatalf("recovery points: %v", err)
	}
	if len(points) != 1 || points[0].Restorable {
		t.Fatalf("expected a single non-restorable point, got %+v", points)
	}

	_, err = env.backups.RestoreFromBackup(ctx, backup.ID, RestoreOptions{ValidateIntegrity: true})
	if !errors.Is(err, ErrBackupNotRestorable) {
		t.Fatalf("expected ErrBackupNotRestorable, got %v", err)
	}

	if _, err := env.backups.RestoreFromBackup(ctx, "missing", RestoreOptions{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown backup, got %v", err)
	}
}

func TestCreateBackupRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.backups.CreateBackup(ctx, "weekly", BackupOptions{}); !errors.Is(err, ErrInvalidBackupType) {
		t.Fatalf("expected ErrInvalidBackupType, got %v", err)
	}

	var validation *ValidationError
	if _, err := env.backups.CreateBackup(ctx, models.BackupTypeManual, BackupOptions{Tables: []string{"users"}}); !errors.As(err, &validation) {
		t.Fatalf("expected a validation error for an unknown table, got %v", err)
	}
}

func TestApplyRetentionKeepsNewestScheduledBackups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedSkills(t, env, "Go")

	for i := 0; i < 3; i++ {
		if _, err := env.backups.CreateBackup(ctx, models.BackupTypeScheduled, BackupOptions{Tables: []string{"skills"}}); err != nil {
			t.Fatalf("scheduled backup %d: %v", i, err)
		}
	}
	manual := skillBackup(t, env)

	deleted, err := env.backups.ApplyRetention(ctx, 2)
	if err != nil {
		t.Fatalf("apply retention: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 backup deleted, got %d", deleted)
	}

	_, total, err := env.backups.ListBackups(0, 10, models.BackupTypeScheduled)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 scheduled backups left, got %d", total)
	}
	if _, err := env.backups.GetBackup(manual.ID); err != nil {
		t.Fatalf("manual backups are not subject to retention: %v", err)
	}
}

func TestBackupSchedulePersistsInSettings(t *testing.T) {
	env := newTestEnv(t)

	schedule, err := env.backups.GetSchedule()
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if schedule.Enabled || schedule.Cron != "0 3 * * *" || schedule.Retention != 7 {
		t.Fatalf("expected configured defaults, got %+v", schedule)
	}

	_, err = env.backups.UpdateSchedule(models.BackupScheduleRequest{Enabled: true, Cron: "every day"}, testActor())
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}

	schedule, err = env.backups.UpdateSchedule(models.BackupScheduleRequest{Enabled: true, Cron: "30 2 * * *", Retention: 3}, testActor())
	if err != nil {
		t.Fatalf("update schedule: %v", err)
	}
	if !schedule.Enabled || schedule.Cron != "30 2 * * *" || schedule.Retention != 3 || schedule.NextRunAt == nil {
		t.Fatalf("unexpected schedule %+v", schedule)
	}

	reloaded, err := env.backups.GetSchedule()
	if err != nil {
		t.Fatalf("reload schedule: %v", err)
	}
	if reloaded.Cron != "30 2 * * *" || reloaded.Retention != 3 {
		t.Fatalf("schedule was not persisted: %+v", reloaded)
	}
}
