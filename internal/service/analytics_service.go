package service

import (
	"fmt"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/pkg/cache"
	"portfolio-admin-backend/pkg/logger"

	"gorm.io/gorm"
)

type TableStats struct {
	Total     int64  `json:"total"`
	Published *int64 `json:"published,omitempty"`
	Recent    int64  `json:"recent"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type AnalyticsReport struct {
	WindowDays  int                      `json:"window_days"`
	GeneratedAt time.Time                `json:"generated_at"`
	Content     map[string]TableStats    `json:"content"`
	Versions    []DailyCount             `json:"versions"`
	Activity    []models.TimelinePoint   `json:"activity"`
	Audit       *models.AuditSummary     `json:"audit"`
	Backups     *models.BackupStatistics `json:"backups"`
}

// Tables with a published flag.
var publishableTables = map[string]bool{
	"projects":     true,
	"case_studies": true,
	"blog_posts":   true,
}

type AnalyticsService struct {
	db       *gorm.DB
	tables   *repository.TableRegistry
	versions repository.VersionRepository
	audit    *AuditService
	backups  *BackupService
	cache    *cache.Cache
	now      func() time.Time
}

func NewAnalyticsService(
	db *gorm.DB,
	tables *repository.TableRegistry,
	versions repository.VersionRepository,
	audit *AuditService,
	backups *BackupService,
	cacheService *cache.Cache,
) *AnalyticsService {
	return &AnalyticsService{
		db:       db,
		tables:   tables,
		versions: versions,
		audit:    audit,
		backups:  backups,
		cache:    cacheService,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Report returns dashboard figures for the last days days. Reports are cached
// per window for five minutes.
func (s *AnalyticsService) Report(days int) (*AnalyticsReport, error) {
	days = normalizeWindow(days)

	var cached AnalyticsReport
	if err := s.cache.GetCachedAnalytics(days, &cached); err == nil {
		return &cached, nil
	}

	report, err := s.build(days)
	if err != nil {
		return nil, err
	}

	if err := s.cache.CacheAnalytics(days, report); err != nil {
		logger.Warn("Failed to cache analytics", map[string]interface{}{"days": days, "error": err.Error()})
	}
	return report, nil
}

func (s *AnalyticsService) build(days int) (*AnalyticsReport, error) {
	now := s.now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	windowStart := startOfToday.AddDate(0, 0, -(days - 1))

	report := &AnalyticsReport{
		WindowDays:  days,
		GeneratedAt: now,
		Content:     make(map[string]TableStats),
	}

	for _, name := range s.tables.Names(false) {
		table, _ := s.tables.Get(name)
		total, err := table.Count(s.db)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", name, err)
		}
		stats := TableStats{Total: total}

		if err := s.db.Table(name).Where("created_at >= ?", windowStart).Count(&stats.Recent).Error; err != nil {
			return nil, fmt.Errorf("failed to count recent %s: %w", name, err)
		}

		if publishableTables[name] {
			var published int64
			if err := s.db.Table(name).Where("published = ?", true).Count(&published).Error; err != nil {
				return nil, fmt.Errorf("failed to count published %s: %w", name, err)
			}
			stats.Published = &published
		}

		report.Content[name] = stats
	}

	stamps, err := s.versions.CreatedSince(windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load version activity: %w", err)
	}
	perDay := make(map[string]int64, len(stamps))
	for _, stamp := range stamps {
		perDay[stamp.UTC().Format("2006-01-02")]++
	}
	report.Versions = make([]DailyCount, 0, days)
	for day := 0; day < days; day++ {
		key := windowStart.AddDate(0, 0, day).Format("2006-01-02")
		report.Versions = append(report.Versions, DailyCount{Date: key, Count: perDay[key]})
	}

	if s.audit != nil {
		if report.Activity, err = s.audit.Timeline(days); err != nil {
			return nil, err
		}
		if report.Audit, err = s.audit.Summarize(days); err != nil {
			return nil, err
		}
	}

	if s.backups != nil {
		if report.Backups, err = s.backups.Statistics(); err != nil {
			return nil, err
		}
	}

	return report, nil
}
