package service

import (
	"errors"
	"fmt"
	"strings"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/pkg/cache"
	"portfolio-admin-backend/pkg/validator"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SiteSectionService struct {
	db    *gorm.DB
	audit *AuditService
	cache *cache.Cache
}

func NewSiteSectionService(db *gorm.DB, audit *AuditService, cacheService *cache.Cache) *SiteSectionService {
	return &SiteSectionService{db: db, audit: audit, cache: cacheService}
}

// GetAll returns every stored section keyed by name.
func (s *SiteSectionService) GetAll() (map[string]models.SiteSection, error) {
	var sections []models.SiteSection
	if err := s.db.Order("key").Find(&sections).Error; err != nil {
		return nil, fmt.Errorf("failed to load site sections: %w", err)
	}

	result := make(map[string]models.SiteSection, len(sections))
	for _, section := range sections {
		result[section.Key] = section
	}
	return result, nil
}

func (s *SiteSectionService) Get(key string) (*models.SiteSection, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if !models.IsKnownSection(key) {
		return nil, ErrUnknownSection
	}

	var section models.SiteSection
	err := s.db.First(&section, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &section, nil
}

// Save creates or replaces the content of a section.
func (s *SiteSectionService) Save(req models.SiteSectionRequest, actor models.Actor) (*models.SiteSection, error) {
	section, err := s.save(req, actor)
	s.audit.Track(actor, "update", "site_section", strings.ToLower(strings.TrimSpace(req.Section)), models.SeverityLow, err, nil)
	if err != nil {
		return nil, err
	}
	_ = s.cache.InvalidateAnalytics()
	return section, nil
}

func (s *SiteSectionService) save(req models.SiteSectionRequest, actor models.Actor) (*models.SiteSection, error) {
	key := strings.ToLower(strings.TrimSpace(req.Section))
	if key == "" {
		return nil, ErrMissingRequiredFields
	}
	if len(req.Content) == 0 {
		return nil, ErrMissingContent
	}
	if !models.IsKnownSection(key) {
		return nil, ErrUnknownSection
	}

	section := &models.SiteSection{
		Key:       key,
		Content:   sanitizeContent(req.Content),
		UpdatedBy: actor.Label(),
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_by", "updated_at"}),
	}).Create(section).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save site section: %w", err)
	}

	return s.Get(key)
}

func sanitizeContent(content models.JSONMap) models.JSONMap {
	cleaned := make(models.JSONMap, len(content))
	for key, value := range content {
		cleaned[key] = sanitizeValue(value)
	}
	return cleaned
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return validator.SanitizeHTML(v)
	case map[string]interface{}:
		return map[string]interface{}(sanitizeContent(v))
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return value
	}
}
