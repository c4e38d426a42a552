package repository

import (
	"portfolio-admin-backend/internal/models"

	"gorm.io/gorm"
)

type BackupRepository interface {
	Create(backup *models.BackupManifest) error
	Update(backup *models.BackupManifest) error
	GetByID(id string) (*models.BackupManifest, error)
	List(offset, limit int, backupType models.BackupType) ([]models.BackupManifest, int64, error)
	ListCompleted() ([]models.BackupManifest, error)
	ListByTypeOldestFirst(backupType models.BackupType, status models.BackupStatus) ([]models.BackupManifest, error)
	Delete(id string) error
	Statistics() (*models.BackupStatistics, error)
}

type backupRepository struct {
	db *gorm.DB
}

func NewBackupRepository(db *gorm.DB) BackupRepository {
	return &backupRepository{db: db}
}

func (r *backupRepository) Create(backup *models.BackupManifest) error {
	return r.db.Create(backup).Error
}

func (r *backupRepository) Update(backup *models.BackupManifest) error {
	return r.db.Save(backup).Error
}

func (r *backupRepository) GetByID(id string) (*models.BackupManifest, error) {
	var backup models.BackupManifest
	if err := r.db.First(&backup, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &backup, nil
}

func (r *backupRepository) List(offset, limit int, backupType models.BackupType) ([]models.BackupManifest, int64, error) {
	var (
		backups []models.BackupManifest
		total   int64
	)

	query := r.db.Model(&models.BackupManifest{})
	if backupType != "" {
		query = query.Where("type = ?", backupType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at DESC")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&backups).Error
	return backups, total, err
}

func (r *backupRepository) ListCompleted() ([]models.BackupManifest, error) {
	var backups []models.BackupManifest
	err := r.db.Where("status = ?", models.BackupStatusCompleted).
		Order("created_at DESC").
		Find(&backups).Error
	return backups, err
}

func (r *backupRepository) ListByTypeOldestFirst(backupType models.BackupType, status models.BackupStatus) ([]models.BackupManifest, error) {
	var backups []models.BackupManifest
	err := r.db.Where("type = ? AND status = ?", backupType, status).
		Order("created_at ASC").
		Find(&backups).Error
	return backups, err
}

func (r *backupRepository) Delete(id string) error {
	result := r.db.Delete(&models.BackupManifest{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type backupTypeCount struct {
	Type  string
	Count int64
}

func (r *backupRepository) Statistics() (*models.BackupStatistics, error) {
	stats := &models.BackupStatistics{ByType: make(map[string]int64)}

	base := r.db.Model(&models.BackupManifest{})

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalBackups).Error; err != nil {
		return nil, err
	}
	if stats.TotalBackups == 0 {
		return stats, nil
	}

	if err := base.Session(&gorm.Session{}).Where("status = ?", models.BackupStatusCompleted).
		Count(&stats.CompletedBackups).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", models.BackupStatusFailed).
		Count(&stats.FailedBackups).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Select("COALESCE(SUM(size), 0)").
		Scan(&stats.TotalSize).Error; err != nil {
		return nil, err
	}

	var oldest, newest models.BackupManifest
	if err := r.db.Order("created_at ASC").First(&oldest).Error; err != nil {
		return nil, err
	}
	if err := r.db.Order("created_at DESC").First(&newest).Error; err != nil {
		return nil, err
	}
	stats.OldestBackup = &oldest.CreatedAt
	stats.NewestBackup = &newest.CreatedAt

	var byType []backupTypeCount
	if err := base.Session(&gorm.Session{}).Select("type, COUNT(*) AS count").
		Group("type").Scan(&byType).Error; err != nil {
		return nil, err
	}
	for _, entry := range byType {
		stats.ByType[entry.Type] = entry.Count
	}

	stats.SuccessRate = float64(stats.CompletedBackups) / float64(stats.TotalBackups) * 100

	return stats, nil
}
