package repository

import (
	"strings"
	"time"

	"portfolio-admin-backend/internal/models"

	"gorm.io/gorm"
)

type AuditRepository interface {
	Create(event *models.AuditEvent) error
	CreateBatch(events []models.AuditEvent) error
	List(filter models.AuditFilter) ([]models.AuditEvent, int64, error)
	Search(query string, limit int) ([]models.AuditEvent, error)
	CountSince(since time.Time, conditions ...interface{}) (int64, error)
	TopActions(since time.Time, limit int) ([]models.CountEntry, error)
	TopUsers(since time.Time, limit int) ([]models.CountEntry, error)
	TimelineSince(since time.Time) ([]AuditTimelineRow, error)
}

// AuditTimelineRow is the projection used to bucket events per day.
type AuditTimelineRow struct {
	Timestamp time.Time
	Success   bool
	Severity  models.Severity
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(event *models.AuditEvent) error {
	return r.db.Create(event).Error
}

func (r *auditRepository) CreateBatch(events []models.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.CreateInBatches(events, 100).Error
}

func (r *auditRepository) applyFilter(query *gorm.DB, filter models.AuditFilter) *gorm.DB {
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Resource != "" {
		query = query.Where("resource = ?", filter.Resource)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.UserEmail != "" {
		query = query.Where("user_email = ?", filter.UserEmail)
	}
	if filter.Success != nil {
		query = query.Where("success = ?", *filter.Success)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.From != nil {
		query = query.Where("timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("timestamp <= ?", *filter.To)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		query = searchCondition(query, q)
	}
	return query
}

func searchCondition(query *gorm.DB, q string) *gorm.DB {
	pattern := "%" + strings.ToLower(q) + "%"
	return query.Where(
		"LOWER(action) LIKE ? OR LOWER(resource) LIKE ? OR LOWER(resource_id) LIKE ? OR LOWER(user_email) LIKE ? OR LOWER(error_message) LIKE ?",
		pattern, pattern, pattern, pattern, pattern,
	)
}

func (r *auditRepository) List(filter models.AuditFilter) ([]models.AuditEvent, int64, error) {
	var (
		events []models.AuditEvent
		total  int64
	)

	query := r.applyFilter(r.db.Model(&models.AuditEvent{}), filter)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("timestamp DESC")
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	err := query.Find(&events).Error
	return events, total, err
}

func (r *auditRepository) Search(q string, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	query := searchCondition(r.db.Model(&models.AuditEvent{}), q).Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}

// CountSince counts events at or after since; conditions are an optional
// Where clause and its arguments.
func (r *auditRepository) CountSince(since time.Time, conditions ...interface{}) (int64, error) {
	var count int64
	query := r.db.Model(&models.AuditEvent{}).Where("timestamp >= ?", since)
	if len(conditions) > 0 {
		query = query.Where(conditions[0], conditions[1:]...)
	}
	err := query.Count(&count).Error
	return count, err
}

func (r *auditRepository) topBy(column string, since time.Time, limit int) ([]models.CountEntry, error) {
	var entries []models.CountEntry
	err := r.db.Model(&models.AuditEvent{}).
		Select(column+" AS key, COUNT(*) AS count").
		Where("timestamp >= ? AND "+column+" <> ''", since).
		Group(column).
		Order("count DESC").
		Order(column).
		Limit(limit).
		Scan(&entries).Error
	return entries, err
}

func (r *auditRepository) TopActions(since time.Time, limit int) ([]models.CountEntry, error) {
	return r.topBy("action", since, limit)
}

func (r *auditRepository) TopUsers(since time.Time, limit int) ([]models.CountEntry, error) {
	return r.topBy("user_email", since, limit)
}

func (r *auditRepository) TimelineSince(since time.Time) ([]AuditTimelineRow, error) {
	var rows []AuditTimelineRow
	err := r.db.Model(&models.AuditEvent{}).
		Select("timestamp, success, severity").
		Where("timestamp >= ?", since).
		Order("timestamp").
		Scan(&rows).Error
	return rows, err
}
