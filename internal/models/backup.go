package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type BackupType string

const (
	BackupTypeManual    BackupType = "manual"
	BackupTypeScheduled BackupType = "scheduled"
	BackupTypePreUpdate BackupType = "pre-update"
)

func (t BackupType) Valid() bool {
	switch t {
	case BackupTypeManual, BackupTypeScheduled, BackupTypePreUpdate:
		return true
	}
	return false
}

type BackupStatus string

const (
	BackupStatusPending    BackupStatus = "pending"
	BackupStatusInProgress BackupStatus = "in_progress"
	BackupStatusCompleted  BackupStatus = "completed"
	BackupStatusFailed     BackupStatus = "failed"
)

type BackupMetadata struct {
	RecordCount       int            `json:"record_count"`
	Tables            []string       `json:"tables"`
	TableCounts       map[string]int `json:"table_counts,omitempty"`
	IncludeMedia      bool           `json:"include_media"`
	IncludeSystemData bool           `json:"include_system_data"`
	MediaFiles        int            `json:"media_files,omitempty"`
	Description       string         `json:"description,omitempty"`
	CreatedBy         string         `json:"created_by,omitempty"`
}

func (m BackupMetadata) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *BackupMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = BackupMetadata{}
		return nil
	}
	data, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan BackupMetadata")
	}
	if len(data) == 0 {
		*m = BackupMetadata{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// BackupManifest describes a stored snapshot. The payload itself lives in the
// backup store under StorageKey; Checksum is the sha256 of that payload.
type BackupManifest struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Type         BackupType     `gorm:"type:varchar(32);not null;index" json:"type"`
	Status       BackupStatus   `gorm:"type:varchar(32);not null;index" json:"status"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Size         int64          `json:"size"`
	Checksum     string         `gorm:"size:64" json:"checksum"`
	StorageKey   string         `json:"storage_key"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	Metadata     BackupMetadata `gorm:"type:jsonb" json:"metadata"`
}

type BackupStatistics struct {
	TotalBackups     int64            `json:"total_backups"`
	CompletedBackups int64            `json:"completed_backups"`
	FailedBackups    int64            `json:"failed_backups"`
	TotalSize        int64            `json:"total_size"`
	SuccessRate      float64          `json:"success_rate"`
	OldestBackup     *time.Time       `json:"oldest_backup,omitempty"`
	NewestBackup     *time.Time       `json:"newest_backup,omitempty"`
	ByType           map[string]int64 `json:"by_type"`
}

type RecoveryPoint struct {
	ID          string     `json:"id"`
	Type        BackupType `json:"type"`
	CreatedAt   time.Time  `json:"created_at"`
	Size        int64      `json:"size"`
	RecordCount int        `json:"record_count"`
	Tables      []string   `json:"tables"`
	Restorable  bool       `json:"restorable"`
}

type BackupSchedule struct {
	Enabled   bool       `json:"enabled"`
	Cron      string     `json:"cron"`
	Retention int        `json:"retention"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

type RestoreResult struct {
	BackupID          string         `json:"backup_id"`
	PreRestoreBackup  string         `json:"pre_restore_backup,omitempty"`
	RestoredTables    map[string]int `json:"restored_tables"`
	RestoredRecords   int            `json:"restored_records"`
	RestoredMedia     int            `json:"restored_media"`
	IntegrityVerified bool           `json:"integrity_verified"`
	RestoredAt        time.Time      `json:"restored_at"`
}
