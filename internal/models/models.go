package models

import (
	"strings"
	"time"
)

// Entity is implemented by every table row that is addressed by a numeric ID.
type Entity interface {
	EntityID() uint
}

// Sluggable rows get a generated, unique slug on creation.
type Sluggable interface {
	SlugSource() string
	GetSlug() string
	SetSlug(slug string)
}

// Versionable rows keep a ContentVersion history.
type Versionable interface {
	VersionContentType() ContentType
	VersionTitle() string
}

// Sanitizable rows carry user supplied HTML.
type Sanitizable interface {
	SanitizeHTML(sanitize func(string) string)
}

// Keyed exposes the primary key column and value, used by export/import and restore.
type Keyed interface {
	PrimaryKey() (string, interface{})
}

type Project struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title        string     `gorm:"not null" json:"title" validate:"required,max=200"`
	Slug         string     `gorm:"uniqueIndex;not null" json:"slug" validate:"required,slug"`
	Summary      string     `json:"summary" validate:"max=500"`
	Content      string     `gorm:"type:text" json:"content"`
	Technologies StringList `gorm:"type:jsonb" json:"technologies"`
	ImageURL     string     `json:"image_url"`
	LiveURL      string     `json:"live_url" validate:"omitempty,url"`
	RepoURL      string     `json:"repo_url" validate:"omitempty,url"`
	Featured     bool       `gorm:"default:false" json:"featured"`
	Order        int        `gorm:"default:0" json:"order"`
	Published    bool       `gorm:"default:false" json:"published"`
}

type CaseStudy struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title     string  `gorm:"not null" json:"title" validate:"required,max=200"`
	Slug      string  `gorm:"uniqueIndex;not null" json:"slug" validate:"required,slug"`
	Client    string  `json:"client"`
	Summary   string  `json:"summary" validate:"max=500"`
	Content   string  `gorm:"type:text" json:"content"`
	Metadata  JSONMap `gorm:"type:jsonb" json:"metadata"`
	Published bool    `gorm:"default:false" json:"published"`
}

type BlogPost struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title       string     `gorm:"not null" json:"title" validate:"required,max=200"`
	Slug        string     `gorm:"uniqueIndex;not null" json:"slug" validate:"required,slug"`
	Excerpt     string     `json:"excerpt" validate:"max=500"`
	Content     string     `gorm:"type:text" json:"content"`
	Tags        StringList `gorm:"type:jsonb" json:"tags"`
	Published   bool       `gorm:"default:false" json:"published"`
	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`
}

type Experience struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Company     string     `gorm:"not null" json:"company" validate:"required"`
	Role        string     `gorm:"not null" json:"role" validate:"required"`
	Location    string     `json:"location"`
	Description string     `gorm:"type:text" json:"description"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Current     bool       `gorm:"default:false" json:"current"`
	Order       int        `gorm:"default:0" json:"order"`
}

type Skill struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `gorm:"not null" json:"name" validate:"required"`
	Category string `json:"category"`
	Level    int    `gorm:"default:0" json:"level" validate:"min=0,max=100"`
	Order    int    `gorm:"default:0" json:"order"`
}

type Tool struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `gorm:"not null" json:"name" validate:"required"`
	Category string `json:"category"`
	URL      string `json:"url" validate:"omitempty,url"`
	Icon     string `json:"icon"`
	Order    int    `gorm:"default:0" json:"order"`
}

// SiteSection holds the free-form content of a fixed page area (hero, about, ...).
type SiteSection struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key" validate:"required"`
	Content   JSONMap   `gorm:"type:jsonb" json:"content"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MediaAsset struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Filename     string `gorm:"uniqueIndex;not null" json:"filename" validate:"required"`
	OriginalName string `json:"original_name"`
	URL          string `gorm:"not null" json:"url" validate:"required"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	Alt          string `json:"alt" validate:"max=300,no_html"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey;size:191" json:"key" validate:"required"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Project) EntityID() uint                      { return p.ID }
func (p *Project) SlugSource() string                  { return p.Title }
func (p *Project) GetSlug() string                     { return p.Slug }
func (p *Project) SetSlug(slug string)                 { p.Slug = slug }
func (p *Project) VersionContentType() ContentType     { return ContentTypeProject }
func (p *Project) VersionTitle() string                { return p.Title }
func (p *Project) PrimaryKey() (string, interface{})   { return "id", p.ID }
func (p *Project) SanitizeHTML(fn func(string) string) { p.Content = fn(p.Content) }

func (c *CaseStudy) EntityID() uint                      { return c.ID }
func (c *CaseStudy) SlugSource() string                  { return c.Title }
func (c *CaseStudy) GetSlug() string                     { return c.Slug }
func (c *CaseStudy) SetSlug(slug string)                 { c.Slug = slug }
func (c *CaseStudy) VersionContentType() ContentType     { return ContentTypeCaseStudy }
func (c *CaseStudy) VersionTitle() string                { return c.Title }
func (c *CaseStudy) PrimaryKey() (string, interface{})   { return "id", c.ID }
func (c *CaseStudy) SanitizeHTML(fn func(string) string) { c.Content = fn(c.Content) }

func (b *BlogPost) EntityID() uint                      { return b.ID }
func (b *BlogPost) SlugSource() string                  { return b.Title }
func (b *BlogPost) GetSlug() string                     { return b.Slug }
func (b *BlogPost) SetSlug(slug string)                 { b.Slug = slug }
func (b *BlogPost) VersionContentType() ContentType     { return ContentTypeBlog }
func (b *BlogPost) VersionTitle() string                { return b.Title }
func (b *BlogPost) PrimaryKey() (string, interface{})   { return "id", b.ID }
func (b *BlogPost) SanitizeHTML(fn func(string) string) { b.Content = fn(b.Content) }

func (e *Experience) EntityID() uint                    { return e.ID }
func (e *Experience) PrimaryKey() (string, interface{}) { return "id", e.ID }
func (e *Experience) SanitizeHTML(fn func(string) string) {
	e.Description = fn(e.Description)
}

func (s *Skill) EntityID() uint                    { return s.ID }
func (s *Skill) PrimaryKey() (string, interface{}) { return "id", s.ID }

func (t *Tool) EntityID() uint                    { return t.ID }
func (t *Tool) PrimaryKey() (string, interface{}) { return "id", t.ID }

func (s *SiteSection) PrimaryKey() (string, interface{}) { return "key", s.Key }
func (m *MediaAsset) EntityID() uint                     { return m.ID }
func (m *MediaAsset) PrimaryKey() (string, interface{})  { return "id", m.ID }
func (s *Setting) PrimaryKey() (string, interface{})     { return "key", s.Key }

// SiteSectionKeys lists the sections the admin dashboard edits.
var SiteSectionKeys = []string{"hero", "about", "contact", "footer", "seo"}

func IsKnownSection(key string) bool {
	key = strings.TrimSpace(strings.ToLower(key))
	for _, known := range SiteSectionKeys {
		if known == key {
			return true
		}
	}
	return false
}
