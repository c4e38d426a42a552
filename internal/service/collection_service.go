package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/pkg/cache"
	"portfolio-admin-backend/pkg/logger"
	"portfolio-admin-backend/pkg/utils"
	"portfolio-admin-backend/pkg/validator"

	"gorm.io/gorm"
)

// CollectionService implements admin CRUD for one content table. Slugs,
// HTML sanitising and version history apply when the model supports them.
type CollectionService[T any, P interface {
	*T
	models.Entity
}] struct {
	resource string
	db       *gorm.DB
	repo     repository.EntityRepository[T]
	versions *VersionService
	audit    *AuditService
	cache    *cache.Cache
}

func NewCollectionService[T any, P interface {
	*T
	models.Entity
}](resource string, db *gorm.DB, repo repository.EntityRepository[T], versions *VersionService, audit *AuditService, cacheService *cache.Cache) *CollectionService[T, P] {
	s := &CollectionService[T, P]{
		resource: resource,
		db:       db,
		repo:     repo,
		versions: versions,
		audit:    audit,
		cache:    cacheService,
	}

	if versionable, ok := any(P(new(T))).(models.Versionable); ok && versions != nil {
		versions.RegisterRestorer(versionable.VersionContentType(), s)
	}

	return s
}

func (s *CollectionService[T, P]) Resource() string {
	return s.resource
}

func (s *CollectionService[T, P]) List(offset, limit int) ([]T, int64, error) {
	items, total, err := s.repo.GetAll(offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list %s: %w", s.resource, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, total, nil
}

func (s *CollectionService[T, P]) Get(id uint) (*T, error) {
	item, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *CollectionService[T, P]) Create(item *T, actor models.Actor) (*T, error) {
	created, err := s.create(item, actor)
	s.audit.Track(actor, "create", s.resource, s.idOf(created), models.SeverityLow, err, nil)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return created, nil
}

func (s *CollectionService[T, P]) create(item *T, actor models.Actor) (*T, error) {
	setIdentity(item, 0, time.Time{})

	if sluggable, ok := any(P(item)).(models.Sluggable); ok {
		slug, err := s.assignSlug(sluggable)
		if err != nil {
			return nil, err
		}
		sluggable.SetSlug(slug)
	}

	if err := s.prepare(item); err != nil {
		return nil, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(item); err != nil {
			return err
		}
		return s.recordVersion(tx, item, nil, actor, nil, false)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", s.resource, err)
	}

	return item, nil
}

// Update replaces the stored record. The slug and creation time are kept.
func (s *CollectionService[T, P]) Update(id uint, item *T, actor models.Actor) (*T, error) {
	updated, err := s.update(id, item, actor)
	s.audit.Track(actor, "update", s.resource, strconv.FormatUint(uint64(id), 10), models.SeverityLow, err, nil)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return updated, nil
}

func (s *CollectionService[T, P]) update(id uint, item *T, actor models.Actor) (*T, error) {
	existing, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	_, before, err := Snapshot(existing)
	if err != nil {
		return nil, err
	}

	setIdentity(item, id, createdAt(existing))
	if sluggable, ok := any(P(item)).(models.Sluggable); ok {
		sluggable.SetSlug(any(P(existing)).(models.Sluggable).GetSlug())
	}

	if err := s.prepare(item); err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(item); err != nil {
			return err
		}
		return s.recordVersion(tx, item, before, actor, nil, false)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", s.resource, err)
	}

	return item, nil
}

func (s *CollectionService[T, P]) Delete(id uint, actor models.Actor) error {
	err := s.repo.Delete(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrNotFound
	}
	s.audit.Track(actor, "delete", s.resource, strconv.FormatUint(uint64(id), 10), models.SeverityMedium, err, nil)
	if err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// RestoreSnapshot overwrites record id with snapshot and appends a version
// that points back at fromVersion.
func (s *CollectionService[T, P]) RestoreSnapshot(id uint, snapshot []byte, fromVersion int, actor models.Actor) (interface{}, error) {
	restored, err := s.restoreSnapshot(id, snapshot, fromVersion, actor)
	s.audit.Track(actor, "restore_version", s.resource, strconv.FormatUint(uint64(id), 10), models.SeverityHigh, err,
		models.JSONMap{"version": fromVersion})
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return restored, nil
}

func (s *CollectionService[T, P]) restoreSnapshot(id uint, snapshot []byte, fromVersion int, actor models.Actor) (*T, error) {
	existing, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	_, before, err := Snapshot(existing)
	if err != nil {
		return nil, err
	}

	restored := new(T)
	if err := json.Unmarshal(snapshot, restored); err != nil {
		return nil, ErrCorruptVersion
	}
	setIdentity(restored, id, createdAt(existing))

	metadata := models.JSONMap{"restored_from": fromVersion}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(restored); err != nil {
			return err
		}
		return s.recordVersion(tx, restored, before, actor, metadata, true)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to restore %s: %w", s.resource, err)
	}

	return restored, nil
}

func (s *CollectionService[T, P]) assignSlug(item models.Sluggable) (string, error) {
	requested := strings.TrimSpace(item.GetSlug())

	if requested != "" {
		if !utils.ValidateSlug(requested) {
			return "", ErrInvalidSlug
		}
		existing, err := s.repo.SlugsWithPrefix(requested)
		if err != nil {
			return "", err
		}
		for _, slug := range existing {
			if slug == requested {
				return "", ErrSlugTaken
			}
		}
		return requested, nil
	}

	base := utils.GenerateSlug(strings.ReplaceAll(item.SlugSource(), "_", " "))
	if !utils.ValidateSlug(base) {
		return "", newValidationError(fmt.Sprintf(
			"title must produce a slug of %d to %d characters; supply a slug explicitly",
			utils.MinSlugLength, utils.MaxSlugLength,
		))
	}

	existing, err := s.repo.SlugsWithPrefix(base)
	if err != nil {
		return "", err
	}
	return utils.EnsureUniqueSlug(base, existing), nil
}

func (s *CollectionService[T, P]) prepare(item *T) error {
	if sanitizable, ok := any(P(item)).(models.Sanitizable); ok {
		sanitizable.SanitizeHTML(validator.SanitizeHTML)
	}
	if err := validator.Validate(item); err != nil {
		return newValidationError(err.Error())
	}
	return nil
}

func (s *CollectionService[T, P]) recordVersion(tx *gorm.DB, item *T, before map[string]interface{}, actor models.Actor, metadata models.JSONMap, force bool) error {
	if s.versions == nil {
		return nil
	}
	versionable, ok := any(P(item)).(models.Versionable)
	if !ok {
		return nil
	}
	_, err := s.versions.Record(tx, P(item).EntityID(), versionable, before, actor.Label(), metadata, force)
	return err
}

func (s *CollectionService[T, P]) invalidate() {
	if err := s.cache.InvalidateAnalytics(); err != nil {
		logger.Warn("Failed to invalidate analytics cache", map[string]interface{}{
			"resource": s.resource,
			"error":    err.Error(),
		})
	}
}

func (s *CollectionService[T, P]) idOf(item *T) string {
	if item == nil {
		return ""
	}
	return strconv.FormatUint(uint64(P(item).EntityID()), 10)
}

// setIdentity overwrites the ID and CreatedAt fields of a model struct and
// clears UpdatedAt.
func setIdentity(item interface{}, id uint, created time.Time) {
	value := reflect.ValueOf(item)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Struct {
		return
	}
	value = value.Elem()

	if field := value.FieldByName("ID"); field.IsValid() && field.CanSet() && field.Kind() == reflect.Uint {
		field.SetUint(uint64(id))
	}
	if field := value.FieldByName("CreatedAt"); field.IsValid() && field.CanSet() && field.Type() == reflect.TypeOf(time.Time{}) {
		field.Set(reflect.ValueOf(created))
	}
	if field := value.FieldByName("UpdatedAt"); field.IsValid() && field.CanSet() && field.Type() == reflect.TypeOf(time.Time{}) {
		field.Set(reflect.ValueOf(time.Time{}))
	}
}

func createdAt(item interface{}) time.Time {
	value := reflect.Indirect(reflect.ValueOf(item))
	if value.Kind() != reflect.Struct {
		return time.Time{}
	}
	if field := value.FieldByName("CreatedAt"); field.IsValid() {
		if stamp, ok := field.Interface().(time.Time); ok {
			return stamp
		}
	}
	return time.Time{}
}
