package models

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(value string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityCritical:
		return SeverityCritical, true
	}
	return "", false
}

// AuditEvent is append-only. Optional attributes are empty strings when absent.
type AuditEvent struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Action       string    `gorm:"size:128;not null;index" json:"action" validate:"required"`
	Resource     string    `gorm:"size:128;not null;index" json:"resource" validate:"required"`
	ResourceID   string    `gorm:"size:128" json:"resource_id,omitempty"`
	UserID       string    `gorm:"size:64;index" json:"user_id,omitempty"`
	UserEmail    string    `gorm:"size:255;index" json:"user_email,omitempty"`
	IPAddress    string    `gorm:"size:64" json:"ip_address,omitempty"`
	Timestamp    time.Time `gorm:"not null;index" json:"timestamp"`
	Success      bool      `gorm:"index" json:"success"`
	Severity     Severity  `gorm:"type:varchar(16);not null;index" json:"severity" validate:"required,oneof=low medium high critical"`
	Metadata     JSONMap   `gorm:"type:jsonb" json:"metadata,omitempty"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
}

func (e *AuditEvent) PrimaryKey() (string, interface{}) { return "id", e.ID }

type AuditFilter struct {
	Action    string
	Resource  string
	UserID    string
	UserEmail string
	Success   *bool
	Severity  Severity
	From      *time.Time
	To        *time.Time
	Query     string
	Limit     int
	Offset    int
}

type CountEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type AuditSummary struct {
	WindowDays     int          `json:"window_days"`
	TotalEvents    int64        `json:"total_events"`
	RecentActivity int64        `json:"recent_activity"`
	TopActions     []CountEntry `json:"top_actions"`
	TopUsers       []CountEntry `json:"top_users"`
	FailedEvents   int64        `json:"failed_events"`
	FailureRate    float64      `json:"failure_rate"`
	CriticalEvents int64        `json:"critical_events"`
}

type TimelinePoint struct {
	Date     string `json:"date"`
	Events   int64  `json:"events"`
	Failures int64  `json:"failures"`
	Critical int64  `json:"critical"`
}

// Actor identifies who performed an admin action.
type Actor struct {
	UserID string
	Email  string
	IP     string
}

func SystemActor() Actor {
	return Actor{UserID: "system"}
}

func (a Actor) Label() string {
	switch {
	case a.Email != "":
		return a.Email
	case a.UserID != "":
		return a.UserID
	default:
		return "system"
	}
}
