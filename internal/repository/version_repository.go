package repository

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"portfolio-admin-backend/internal/models"

	"gorm.io/gorm"
)

const maxVersionAttempts = 5

var ErrVersionConflict = errors.New("could not allocate a content version number")

type VersionRepository interface {
	WithTx(tx *gorm.DB) VersionRepository
	Append(version *models.ContentVersion) error
	List(contentType models.ContentType, contentID uint) ([]models.ContentVersion, error)
	Get(contentType models.ContentType, contentID uint, version int) (*models.ContentVersion, error)
	Latest(contentType models.ContentType, contentID uint) (*models.ContentVersion, error)
	CreatedSince(since time.Time) ([]time.Time, error)
	Count() (int64, error)
}

const versionLockStripes = 64

// contentLocks serializes version allocation per content item over a fixed
// set of mutexes, so memory stays bounded however many items are edited.
type contentLocks [versionLockStripes]sync.Mutex

func (l *contentLocks) stripe(contentType models.ContentType, contentID uint) *sync.Mutex {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s:%d", contentType, contentID)
	return &l[h.Sum32()%versionLockStripes]
}

func (l *contentLocks) lock(contentType models.ContentType, contentID uint) func() {
	m := l.stripe(contentType, contentID)
	m.Lock()
	return m.Unlock
}

type versionRepository struct {
	db    *gorm.DB
	locks *contentLocks
}

func NewVersionRepository(db *gorm.DB) VersionRepository {
	return &versionRepository{
		db:    db,
		locks: &contentLocks{},
	}
}

func (r *versionRepository) WithTx(tx *gorm.DB) VersionRepository {
	return &versionRepository{db: tx, locks: r.locks}
}

// Append stores version with Version set to the current maximum plus one.
// Numbers are allocated under a striped content lock; collisions with other
// processes surface as unique index violations and are retried.
func (r *versionRepository) Append(version *models.ContentVersion) error {
	unlock := r.locks.lock(version.ContentType, version.ContentID)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		err := r.db.Transaction(func(tx *gorm.DB) error {
			var current int
			if err := tx.Model(&models.ContentVersion{}).
				Where("content_type = ? AND content_id = ?", version.ContentType, version.ContentID).
				Select("COALESCE(MAX(version), 0)").
				Scan(&current).Error; err != nil {
				return err
			}

			version.ID = 0
			version.Version = current + 1
			return tx.Create(version).Error
		})
		if err == nil {
			return nil
		}
		if !isDuplicateKey(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrVersionConflict, lastErr)
}

func (r *versionRepository) List(contentType models.ContentType, contentID uint) ([]models.ContentVersion, error) {
	var versions []models.ContentVersion
	err := r.db.Where("content_type = ? AND content_id = ?", contentType, contentID).
		Order("version DESC").
		Find(&versions).Error
	return versions, err
}

func (r *versionRepository) Get(contentType models.ContentType, contentID uint, version int) (*models.ContentVersion, error) {
	var record models.ContentVersion
	err := r.db.Where("content_type = ? AND content_id = ? AND version = ?", contentType, contentID, version).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) Latest(contentType models.ContentType, contentID uint) (*models.ContentVersion, error) {
	var record models.ContentVersion
	err := r.db.Where("content_type = ? AND content_id = ?", contentType, contentID).
		Order("version DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *versionRepository) CreatedSince(since time.Time) ([]time.Time, error) {
	var stamps []time.Time
	err := r.db.Model(&models.ContentVersion{}).
		Where("created_at >= ?", since).
		Order("created_at").
		Pluck("created_at", &stamps).Error
	return stamps, err
}

func (r *versionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.ContentVersion{}).Count(&count).Error
	return count, err
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
