package repository

import (
	"portfolio-admin-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository interface {
	Get(key string) (*models.Setting, error)
	GetByPrefix(prefix string) (map[string]string, error)
	Set(key, value string) error
	SetMany(values map[string]string) error
	Delete(key string) error
}

type settingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Get(key string) (*models.Setting, error) {
	var setting models.Setting
	err := r.db.First(&setting, "key = ?", key).Error
	return &setting, err
}

func (r *settingRepository) GetByPrefix(prefix string) (map[string]string, error) {
	var settings []models.Setting
	if err := r.db.Where("key LIKE ?", prefix+"%").Find(&settings).Error; err != nil {
		return nil, err
	}

	values := make(map[string]string, len(settings))
	for _, setting := range settings {
		values[setting.Key] = setting.Value
	}
	return values, nil
}

func (r *settingRepository) Set(key, value string) error {
	return upsertSetting(r.db, key, value)
}

func (r *settingRepository) SetMany(values map[string]string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			if err := upsertSetting(tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertSetting(db *gorm.DB, key, value string) error {
	setting := &models.Setting{Key: key, Value: value}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(setting).Error
}

func (r *settingRepository) Delete(key string) error {
	return r.db.Delete(&models.Setting{}, "key = ?", key).Error
}
