package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type ContentType string

const (
	ContentTypeBlog      ContentType = "blog"
	ContentTypeProject   ContentType = "project"
	ContentTypeCaseStudy ContentType = "case_study"
)

func ParseContentType(value string) (ContentType, bool) {
	switch ContentType(strings.ToLower(strings.TrimSpace(value))) {
	case ContentTypeBlog:
		return ContentTypeBlog, true
	case ContentTypeProject:
		return ContentTypeProject, true
	case ContentTypeCaseStudy:
		return ContentTypeCaseStudy, true
	}
	return "", false
}

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

type FieldChange struct {
	Field      string      `json:"field"`
	OldValue   interface{} `json:"old_value"`
	NewValue   interface{} `json:"new_value"`
	ChangeType ChangeType  `json:"change_type"`
}

type FieldChanges []FieldChange

func (c FieldChanges) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]FieldChange(c))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (c *FieldChanges) Scan(value interface{}) error {
	if value == nil {
		*c = FieldChanges{}
		return nil
	}
	data, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan FieldChanges")
	}
	if len(data) == 0 {
		*c = FieldChanges{}
		return nil
	}
	var decoded []FieldChange
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = decoded
	return nil
}

// ContentVersion is an immutable snapshot of a content row taken after a save.
// Version numbers are unique and increasing per (content_type, content_id).
type ContentVersion struct {
	ID          uint         `gorm:"primarykey" json:"id"`
	ContentType ContentType  `gorm:"type:varchar(32);not null;uniqueIndex:idx_content_versions_key,priority:1" json:"content_type" validate:"required,oneof=blog project case_study"`
	ContentID   uint         `gorm:"not null;uniqueIndex:idx_content_versions_key,priority:2" json:"content_id" validate:"required"`
	Version     int          `gorm:"not null;uniqueIndex:idx_content_versions_key,priority:3" json:"version" validate:"min=1"`
	Title       string       `json:"title"`
	Content     string       `gorm:"type:text" json:"content"`
	Metadata    JSONMap      `gorm:"type:jsonb" json:"metadata"`
	Changes     FieldChanges `gorm:"type:jsonb" json:"changes"`
	CreatedBy   string       `json:"created_by"`
	CreatedAt   time.Time    `gorm:"index" json:"created_at"`
	Checksum    string       `gorm:"size:64" json:"checksum"`
	Size        int          `json:"size"`
	Compressed  bool         `gorm:"default:false" json:"compressed"`
}

func (v *ContentVersion) PrimaryKey() (string, interface{}) { return "id", v.ID }

// VersionComparison is the diff between two stored versions of the same item.
type VersionComparison struct {
	ContentType ContentType  `json:"content_type"`
	ContentID   uint         `json:"content_id"`
	From        int          `json:"from"`
	To          int          `json:"to"`
	Changes     FieldChanges `json:"changes"`
}
