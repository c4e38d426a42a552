package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"portfolio-admin-backend/internal/models"

	"gorm.io/gorm"
)

var ErrUnknownTable = errors.New("unknown table")

type RowOutcome int

const (
	RowCreated RowOutcome = iota
	RowUpdated
	RowSkipped
)

type ImportRowOptions struct {
	Overwrite bool
	Validate  func(interface{}) error
}

// Table moves the rows of one model in and out of the database as JSON.
type Table interface {
	Name() string
	System() bool
	AppendOnly() bool
	Count(db *gorm.DB) (int64, error)
	Dump(db *gorm.DB) (json.RawMessage, int, error)
	Records(db *gorm.DB) ([]string, [][]string, error)
	Restore(tx *gorm.DB, data json.RawMessage) (int, error)
	DecodeRows(data json.RawMessage) ([]json.RawMessage, error)
	ImportRow(tx *gorm.DB, raw json.RawMessage, opts ImportRowOptions) (RowOutcome, error)
	SyncSequence(tx *gorm.DB) error
}

type modelTable[T any, P interface {
	*T
	models.Keyed
}] struct {
	name       string
	system     bool
	appendOnly bool
}

func NewTable[T any, P interface {
	*T
	models.Keyed
}](name string, system bool) Table {
	return &modelTable[T, P]{name: name, system: system}
}

// NewAppendOnlyTable registers a system table whose stored rows are never
// rewritten by an import, even with overwrite enabled.
func NewAppendOnlyTable[T any, P interface {
	*T
	models.Keyed
}](name string) Table {
	return &modelTable[T, P]{name: name, system: true, appendOnly: true}
}

func (t *modelTable[T, P]) Name() string     { return t.name }
func (t *modelTable[T, P]) System() bool     { return t.system }
func (t *modelTable[T, P]) AppendOnly() bool { return t.appendOnly }

func (t *modelTable[T, P]) primaryKey() (string, bool) {
	column, value := P(new(T)).PrimaryKey()
	_, numeric := value.(uint)
	return column, numeric
}

func (t *modelTable[T, P]) Count(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(new(T)).Count(&count).Error
	return count, err
}

func (t *modelTable[T, P]) load(db *gorm.DB) ([]T, error) {
	column, _ := t.primaryKey()
	var rows []T
	if err := db.Order(column).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.name, err)
	}
	return rows, nil
}

func (t *modelTable[T, P]) Dump(db *gorm.DB) (json.RawMessage, int, error) {
	rows, err := t.load(db)
	if err != nil {
		return nil, 0, err
	}
	if rows == nil {
		rows = []T{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode %s: %w", t.name, err)
	}
	return data, len(rows), nil
}

// Records renders the table as CSV cells. Columns follow the JSON field
// names of the model; nested values are written as JSON.
func (t *modelTable[T, P]) Records(db *gorm.DB) ([]string, [][]string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, nil, err
	}

	header := make([]string, 0, len(stmt.Schema.Fields))
	for _, field := range stmt.Schema.Fields {
		if field.DBName == "" {
			continue
		}
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			name = field.DBName
		}
		header = append(header, name)
	}

	rows, err := t.load(db)
	if err != nil {
		return nil, nil, err
	}

	records := make([][]string, 0, len(rows))
	for i := range rows {
		encoded, err := json.Marshal(&rows[i])
		if err != nil {
			return nil, nil, err
		}
		var values map[string]interface{}
		if err := json.Unmarshal(encoded, &values); err != nil {
			return nil, nil, err
		}

		record := make([]string, len(header))
		for j, column := range header {
			record[j] = csvCell(values[column])
		}
		records = append(records, record)
	}

	return header, records, nil
}

func csvCell(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool, float64:
		return fmt.Sprint(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// Restore replaces every row of the table with the decoded snapshot.
func (t *modelTable[T, P]) Restore(tx *gorm.DB, data json.RawMessage) (int, error) {
	var rows []T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rows); err != nil {
			return 0, fmt.Errorf("failed to decode %s: %w", t.name, err)
		}
	}

	if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(new(T)).Error; err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", t.name, err)
	}

	if len(rows) > 0 {
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return 0, fmt.Errorf("failed to restore %s: %w", t.name, err)
		}
	}

	if err := t.SyncSequence(tx); err != nil {
		return 0, err
	}

	return len(rows), nil
}

func (t *modelTable[T, P]) DecodeRows(data json.RawMessage) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%s: expected an array of records: %w", t.name, err)
	}
	return rows, nil
}

func (t *modelTable[T, P]) ImportRow(tx *gorm.DB, raw json.RawMessage, opts ImportRowOptions) (RowOutcome, error) {
	var row T
	if err := json.Unmarshal(raw, &row); err != nil {
		return RowSkipped, fmt.Errorf("invalid record: %w", err)
	}

	if opts.Validate != nil {
		if err := opts.Validate(&row); err != nil {
			return RowSkipped, err
		}
	}

	column, value := P(&row).PrimaryKey()
	if isZeroKey(value) {
		if err := tx.Create(&row).Error; err != nil {
			return RowSkipped, err
		}
		return RowCreated, nil
	}

	var existing int64
	if err := tx.Model(new(T)).Where(map[string]interface{}{column: value}).Count(&existing).Error; err != nil {
		return RowSkipped, err
	}

	if existing > 0 {
		if !opts.Overwrite || t.appendOnly {
			return RowSkipped, nil
		}
		if err := tx.Save(&row).Error; err != nil {
			return RowSkipped, err
		}
		return RowUpdated, nil
	}

	if err := tx.Create(&row).Error; err != nil {
		return RowSkipped, err
	}
	return RowCreated, nil
}

// SyncSequence moves a postgres serial sequence past the highest stored id.
// Other dialects derive the next id from the table itself.
func (t *modelTable[T, P]) SyncSequence(tx *gorm.DB) error {
	column, numeric := t.primaryKey()
	if !numeric || tx.Dialector.Name() != "postgres" {
		return nil
	}

	query := fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence('%[1]s', '%[2]s'), COALESCE((SELECT MAX(%[2]s) FROM %[1]s), 0) + 1, false)",
		t.name, column,
	)
	if err := tx.Exec(query).Error; err != nil {
		return fmt.Errorf("failed to sync %s sequence: %w", t.name, err)
	}
	return nil
}

func isZeroKey(value interface{}) bool {
	switch v := value.(type) {
	case uint:
		return v == 0
	case string:
		return strings.TrimSpace(v) == ""
	case nil:
		return true
	}
	return false
}

// TableRegistry lists the tables that take part in exports and backups, in
// the order they are written.
type TableRegistry struct {
	tables []Table
	byName map[string]Table
}

func NewTableRegistry(tables ...Table) *TableRegistry {
	registry := &TableRegistry{byName: make(map[string]Table, len(tables))}
	for _, table := range tables {
		registry.tables = append(registry.tables, table)
		registry.byName[table.Name()] = table
	}
	return registry
}

// PortfolioTables is the registry of every table owned by the admin backend.
// Backup manifests are never part of a snapshot.
func PortfolioTables() *TableRegistry {
	return NewTableRegistry(
		NewTable[models.Project]("projects", false),
		NewTable[models.CaseStudy]("case_studies", false),
		NewTable[models.BlogPost]("blog_posts", false),
		NewTable[models.Experience]("experiences", false),
		NewTable[models.Skill]("skills", false),
		NewTable[models.Tool]("tools", false),
		NewTable[models.SiteSection]("site_sections", false),
		NewTable[models.MediaAsset]("media_assets", false),
		NewTable[models.Setting]("settings", true),
		NewAppendOnlyTable[models.ContentVersion]("content_versions"),
		NewAppendOnlyTable[models.AuditEvent]("audit_events"),
	)
}

func (r *TableRegistry) Get(name string) (Table, bool) {
	table, ok := r.byName[strings.TrimSpace(strings.ToLower(name))]
	return table, ok
}

func (r *TableRegistry) Names(includeSystem bool) []string {
	names := make([]string, 0, len(r.tables))
	for _, table := range r.tables {
		if table.System() && !includeSystem {
			continue
		}
		names = append(names, table.Name())
	}
	return names
}

// Resolve returns the requested tables in registry order. An empty selection
// means every content table, plus system tables when includeSystem is set.
func (r *TableRegistry) Resolve(names []string, includeSystem bool) ([]Table, error) {
	if len(names) == 0 {
		names = r.Names(includeSystem)
	}

	wanted := make(map[string]struct{}, len(names))
	var unknown []string
	for _, name := range names {
		table, ok := r.Get(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		wanted[table.Name()] = struct{}{}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, strings.Join(unknown, ", "))
	}

	selected := make([]Table, 0, len(wanted))
	for _, table := range r.tables {
		if _, ok := wanted[table.Name()]; ok {
			selected = append(selected, table)
		}
	}
	return selected, nil
}
