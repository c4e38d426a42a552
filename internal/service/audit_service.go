package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/pkg/cache"
	"portfolio-admin-backend/pkg/logger"

	"github.com/google/uuid"
)

const (
	defaultAuditWindowDays = 30
	maxAuditWindowDays     = 365
	defaultAuditPageSize   = 50
	maxAuditPageSize       = 500
	maxAuditExportRows     = 10000
	auditTopEntries        = 5
)

type AuditService struct {
	repo     repository.AuditRepository
	recorder *AuditRecorder
	cache    *cache.Cache
	now      func() time.Time
}

// NewAuditService wires recorder so that cached summaries are dropped after
// every persisted write. Call it before the recorder is started.
func NewAuditService(repo repository.AuditRepository, recorder *AuditRecorder, cacheService *cache.Cache) *AuditService {
	s := &AuditService{
		repo:     repo,
		recorder: recorder,
		cache:    cacheService,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if recorder != nil {
		recorder.afterWrite = s.invalidateSummaries
	}
	return s
}

func (s *AuditService) invalidateSummaries() {
	if err := s.cache.InvalidateAuditSummaries(); err != nil {
		logger.Warn("Failed to invalidate audit summaries", map[string]interface{}{"error": err.Error()})
	}
}

// Record hands event to the recorder. It never fails the caller.
func (s *AuditService) Record(event models.AuditEvent) {
	if s == nil || s.recorder == nil {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if _, ok := models.ParseSeverity(string(event.Severity)); !ok {
		event.Severity = models.SeverityLow
	}

	s.recorder.Record(event)
}

// Track records the outcome of an action performed by actor. A non-nil err
// marks the event as failed.
func (s *AuditService) Track(actor models.Actor, action, resource, resourceID string, severity models.Severity, err error, metadata models.JSONMap) {
	event := models.AuditEvent{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		UserID:     actor.UserID,
		UserEmail:  actor.Email,
		IPAddress:  actor.IP,
		Success:    err == nil,
		Severity:   severity,
		Metadata:   metadata,
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	s.Record(event)
}

func normalizeWindow(days int) int {
	if days <= 0 {
		return defaultAuditWindowDays
	}
	if days > maxAuditWindowDays {
		return maxAuditWindowDays
	}
	return days
}

func (s *AuditService) ListEvents(filter models.AuditFilter) ([]models.AuditEvent, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditPageSize
	}
	if filter.Limit > maxAuditPageSize {
		filter.Limit = maxAuditPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	events, total, err := s.repo.List(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	return events, total, nil
}

func (s *AuditService) SearchEvents(query string, limit int) ([]models.AuditEvent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, newValidationError("search query is required")
	}
	if limit <= 0 || limit > maxAuditPageSize {
		limit = defaultAuditPageSize
	}

	events, err := s.repo.Search(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	return events, nil
}

// Summarize aggregates the last windowDays days of the log. FailureRate is a
// percentage rounded to two decimals.
func (s *AuditService) Summarize(windowDays int) (*models.AuditSummary, error) {
	windowDays = normalizeWindow(windowDays)

	var cached models.AuditSummary
	if err := s.cache.GetCachedAuditSummary(windowDays, &cached); err == nil {
		return &cached, nil
	}

	now := s.now()
	since := now.AddDate(0, 0, -windowDays)

	summary := &models.AuditSummary{WindowDays: windowDays}

	var err error
	if summary.TotalEvents, err = s.repo.CountSince(since); err != nil {
		return nil, err
	}
	if summary.RecentActivity, err = s.repo.CountSince(now.Add(-24 * time.Hour)); err != nil {
		return nil, err
	}
	if summary.FailedEvents, err = s.repo.CountSince(since, "success = ?", false); err != nil {
		return nil, err
	}
	if summary.CriticalEvents, err = s.repo.CountSince(since, "severity = ?", models.SeverityCritical); err != nil {
		return nil, err
	}
	if summary.TopActions, err = s.repo.TopActions(since, auditTopEntries); err != nil {
		return nil, err
	}
	if summary.TopUsers, err = s.repo.TopUsers(since, auditTopEntries); err != nil {
		return nil, err
	}

	if summary.TopActions == nil {
		summary.TopActions = []models.CountEntry{}
	}
	if summary.TopUsers == nil {
		summary.TopUsers = []models.CountEntry{}
	}
	if summary.TotalEvents > 0 {
		rate := float64(summary.FailedEvents) / float64(summary.TotalEvents) * 100
		summary.FailureRate = math.Round(rate*100) / 100
	}

	if err := s.cache.CacheAuditSummary(windowDays, summary); err != nil {
		logger.Warn("Failed to cache audit summary", map[string]interface{}{"error": err.Error()})
	}

	return summary, nil
}

// Timeline returns one point per day for the last windowDays days, oldest
// first, including days without events.
func (s *AuditService) Timeline(windowDays int) ([]models.TimelinePoint, error) {
	windowDays = normalizeWindow(windowDays)

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(windowDays - 1))

	rows, err := s.repo.TimelineSince(start)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit timeline: %w", err)
	}

	points := make([]models.TimelinePoint, windowDays)
	index := make(map[string]int, windowDays)
	for i := range points {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		points[i].Date = day
		index[day] = i
	}

	for _, row := range rows {
		i, ok := index[row.Timestamp.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		points[i].Events++
		if !row.Success {
			points[i].Failures++
		}
		if row.Severity == models.SeverityCritical {
			points[i].Critical++
		}
	}

	return points, nil
}

type AuditExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (s *AuditService) Export(format string, filter models.AuditFilter) (*AuditExport, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "json"
	}

	filter.Limit = maxAuditExportRows
	filter.Offset = 0
	events, _, err := s.repo.List(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to export audit events: %w", err)
	}
	if events == nil {
		events = []models.AuditEvent{}
	}

	stamp := s.now().Format("2006-01-02")

	switch format {
	case "json":
		data, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return nil, err
		}
		return &AuditExport{
			Filename:    fmt.Sprintf("audit-log-%s.json", stamp),
			ContentType: "application/json",
			Data:        data,
		}, nil
	case "csv":
		data, err := auditEventsCSV(events)
		if err != nil {
			return nil, err
		}
		return &AuditExport{
			Filename:    fmt.Sprintf("audit-log-%s.csv", stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func auditEventsCSV(events []models.AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"id", "timestamp", "action", "resource", "resource_id", "user_id",
		"user_email", "ip_address", "success", "severity", "error_message", "metadata",
	}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, event := range events {
		metadata := ""
		if len(event.Metadata) > 0 {
			encoded, err := json.Marshal(event.Metadata)
			if err != nil {
				return nil, err
			}
			metadata = string(encoded)
		}

		record := []string{
			event.ID,
			event.Timestamp.UTC().Format(time.RFC3339),
			event.Action,
			event.Resource,
			event.ResourceID,
			event.UserID,
			event.UserEmail,
			event.IPAddress,
			strconv.FormatBool(event.Success),
			string(event.Severity),
			event.ErrorMessage,
			metadata,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return buf.Bytes(), writer.Error()
}
