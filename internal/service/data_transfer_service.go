package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/pkg/cache"
	"portfolio-admin-backend/pkg/logger"
	"portfolio-admin-backend/pkg/validator"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

const DefaultMaxImportSize int64 = 100 << 20

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatZIP  = "zip"
)

var importRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "portfolio_admin",
	Subsystem: "import",
	Name:      "rows_total",
	Help:      "Rows processed by data imports by outcome.",
}, []string{"outcome"})

type ExportOptions struct {
	Tables            []string
	IncludeMedia      bool
	IncludeSystemData bool
	Compression       bool
	Format            string
	Actor             models.Actor
}

type ExportArtifact struct {
	Filename    string
	ContentType string
	Data        []byte
	Tables      []string
	Records     int
}

type ImportOptions struct {
	Overwrite    bool
	ValidateData bool
	CreateBackup bool
	SkipErrors   bool
	Actor        models.Actor
}

type ImportRowError struct {
	Table  string `json:"table"`
	Record int    `json:"record"`
	Error  string `json:"error"`
}

type ImportResult struct {
	Success  bool             `json:"success"`
	Imported int              `json:"imported"`
	Updated  int              `json:"updated"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowError `json:"errors"`
	Message  string           `json:"message"`
	Tables   map[string]int   `json:"tables"`
	BackupID string           `json:"backup_id,omitempty"`
}

// exportDocument is the JSON export format.
type exportDocument struct {
	SchemaVersion string                     `json:"schema_version"`
	Application   string                     `json:"application"`
	ExportedAt    time.Time                  `json:"exported_at"`
	Tables        map[string]json.RawMessage `json:"tables"`
	Counts        map[string]int             `json:"counts"`
}

type importBatch struct {
	table repository.Table
	rows  []json.RawMessage
}

type DataTransferService struct {
	db            *gorm.DB
	tables        *repository.TableRegistry
	backups       *BackupService
	uploadDir     string
	maxImportSize int64
	audit         *AuditService
	cache         *cache.Cache
	now           func() time.Time
}

func NewDataTransferService(
	db *gorm.DB,
	tables *repository.TableRegistry,
	backups *BackupService,
	uploadDir string,
	maxImportSize int64,
	audit *AuditService,
	cacheService *cache.Cache,
) *DataTransferService {
	if maxImportSize <= 0 {
		maxImportSize = DefaultMaxImportSize
	}
	return &DataTransferService{
		db:            db,
		tables:        tables,
		backups:       backups,
		uploadDir:     uploadDir,
		maxImportSize: maxImportSize,
		audit:         audit,
		cache:         cacheService,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *DataTransferService) MaxImportSize() int64 {
	return s.maxImportSize
}

// Export reads the selected tables in full and renders them as one artifact.
func (s *DataTransferService) Export(ctx context.Context, opts ExportOptions) (*ExportArtifact, error) {
	artifact, err := s.export(ctx, opts)
	metadata := models.JSONMap{"format": opts.Format, "compression": opts.Compression}
	if artifact != nil {
		metadata["tables"] = artifact.Tables
		metadata["records"] = artifact.Records
	}
	s.audit.Track(opts.Actor, "data.export", "data", "", models.SeverityLow, err, metadata)
	return artifact, err
}

func (s *DataTransferService) export(ctx context.Context, opts ExportOptions) (*ExportArtifact, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = FormatJSON
	}
	switch format {
	case FormatJSON, FormatCSV, FormatZIP:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
	}

	tables, err := s.tables.Resolve(opts.Tables, opts.IncludeSystemData)
	if err != nil {
		return nil, newValidationError(err.Error())
	}

	db := s.db.WithContext(ctx)
	stamp := s.now()
	base := fmt.Sprintf("portfolio-export-%s", stamp.Format("2006-01-02"))

	var artifact *ExportArtifact
	switch format {
	case FormatJSON:
		artifact, err = s.exportJSON(db, tables, stamp, base, opts.Compression)
	case FormatCSV:
		artifact, err = s.exportCSV(db, tables, stamp, base)
	case FormatZIP:
		artifact, err = s.exportArchive(db, tables, stamp, base, opts.IncludeMedia)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Data exported", map[string]interface{}{
		"format":   format,
		"filename": artifact.Filename,
		"tables":   artifact.Tables,
		"records":  artifact.Records,
		"bytes":    len(artifact.Data),
	})

	return artifact, nil
}

func (s *DataTransferService) exportJSON(db *gorm.DB, tables []repository.Table, stamp time.Time, base string, compress bool) (*ExportArtifact, error) {
	snapshot, err := snapshotTables(db, tables)
	if err != nil {
		return nil, err
	}

	document := exportDocument{
		SchemaVersion: backupSchemaVersion,
		Application:   backupApplication,
		ExportedAt:    stamp,
		Tables:        snapshot.Data,
		Counts:        snapshot.Counts,
	}
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}

	artifact := &ExportArtifact{
		Filename:    base + ".json",
		ContentType: "application/json",
		Data:        data,
		Tables:      snapshot.Tables,
		Records:     snapshot.RecordCount(),
	}

	if compress {
		var buf bytes.Buffer
		writer := gzip.NewWriter(&buf)
		writer.Name = artifact.Filename
		writer.ModTime = stamp
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("failed to compress export: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress export: %w", err)
		}
		artifact.Filename += ".gz"
		artifact.ContentType = "application/gzip"
		artifact.Data = buf.Bytes()
	}

	return artifact, nil
}

// exportCSV writes one CSV file, or a zip of CSV files when several tables
// are selected.
func (s *DataTransferService) exportCSV(db *gorm.DB, tables []repository.Table, stamp time.Time, base string) (*ExportArtifact, error) {
	artifact := &ExportArtifact{Tables: make([]string, 0, len(tables))}

	if len(tables) == 1 {
		data, count, err := tableCSV(db, tables[0])
		if err != nil {
			return nil, err
		}
		artifact.Filename = fmt.Sprintf("%s-%s.csv", base, tables[0].Name())
		artifact.ContentType = "text/csv"
		artifact.Data = data
		artifact.Tables = append(artifact.Tables, tables[0].Name())
		artifact.Records = count
		return artifact, nil
	}

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, table := range tables {
		data, count, err := tableCSV(db, table)
		if err != nil {
			writer.Close()
			return nil, err
		}
		header := &zip.FileHeader{Name: table.Name() + ".csv", Method: zip.Deflate}
		header.SetModTime(stamp)
		entry, err := writer.CreateHeader(header)
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("failed to create archive entry for %s: %w", table.Name(), err)
		}
		if _, err := entry.Write(data); err != nil {
			writer.Close()
			return nil, fmt.Errorf("failed to write %s to archive: %w", table.Name(), err)
		}
		artifact.Tables = append(artifact.Tables, table.Name())
		artifact.Records += count
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalise archive: %w", err)
	}

	artifact.Filename = base + "-csv.zip"
	artifact.ContentType = "application/zip"
	artifact.Data = buf.Bytes()
	return artifact, nil
}

func tableCSV(db *gorm.DB, table repository.Table) ([]byte, int, error) {
	header, records, err := table.Records(db)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", table.Name(), err)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(header); err != nil {
		return nil, 0, err
	}
	if err := writer.WriteAll(records); err != nil {
		return nil, 0, fmt.Errorf("failed to write %s as csv: %w", table.Name(), err)
	}
	return buf.Bytes(), len(records), nil
}

func (s *DataTransferService) exportArchive(db *gorm.DB, tables []repository.Table, stamp time.Time, base string, includeMedia bool) (*ExportArtifact, error) {
	snapshot, err := snapshotTables(db, tables)
	if err != nil {
		return nil, err
	}

	manifest := archiveManifest{Type: "export", GeneratedAt: stamp}
	if includeMedia {
		if manifest.Uploads, err = listUploads(s.uploadDir); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := writeArchive(&buf, manifest, snapshot, s.uploadDir); err != nil {
		return nil, err
	}

	return &ExportArtifact{
		Filename:    base + ".zip",
		ContentType: "application/zip",
		Data:        buf.Bytes(),
		Tables:      snapshot.Tables,
		Records:     snapshot.RecordCount(),
	}, nil
}

// Import loads an uploaded export. The whole file is parsed before anything
// is written; a parse or size failure returns an error and writes nothing.
// Without SkipErrors the import runs in one transaction and the first bad
// row rolls everything back.
func (s *DataTransferService) Import(ctx context.Context, filename string, r io.Reader, size int64, opts ImportOptions) (*ImportResult, error) {
	result, err := s.runImport(ctx, filename, r, size, opts)

	metadata := models.JSONMap{
		"filename":    filename,
		"overwrite":   opts.Overwrite,
		"skip_errors": opts.SkipErrors,
	}
	if result != nil {
		metadata["imported"] = result.Imported
		metadata["skipped"] = result.Skipped
		if err == nil && !result.Success {
			err = fmt.Errorf("%w: %s", ErrImportAborted, result.Message)
		}
	}
	s.audit.Track(opts.Actor, "data.import", "data", "", models.SeverityHigh, err, metadata)

	if result != nil && result.Imported > 0 {
		_ = s.cache.InvalidateAnalytics()
	}
	if result != nil {
		return result, nil
	}
	return nil, err
}

func (s *DataTransferService) runImport(ctx context.Context, filename string, r io.Reader, size int64, opts ImportOptions) (*ImportResult, error) {
	if size > s.maxImportSize {
		return nil, ErrImportTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	if int64(len(data)) > s.maxImportSize {
		return nil, ErrImportTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidImport)
	}

	batches, err := s.parseImport(filename, data)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Errors: []ImportRowError{},
		Tables: make(map[string]int, len(batches)),
	}

	if opts.CreateBackup && s.backups != nil {
		names := make([]string, 0, len(batches))
		system := false
		for _, batch := range batches {
			names = append(names, batch.table.Name())
			system = system || batch.table.System()
		}
		backup, err := s.backups.CreateBackup(ctx, models.BackupTypePreUpdate, BackupOptions{
			Tables:            names,
			IncludeSystemData: system,
			Description:       "Automatic backup before import",
			Actor:             opts.Actor,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pre-import backup: %w", err)
		}
		result.BackupID = backup.ID
	}

	rowOpts := repository.ImportRowOptions{Overwrite: opts.Overwrite}
	if opts.ValidateData {
		rowOpts.Validate = validator.Validate
	}

	db := s.db.WithContext(ctx)
	if opts.SkipErrors {
		s.importEachRow(db, batches, rowOpts, result)
	} else {
		s.importAtomically(db, batches, rowOpts, result)
	}

	for _, batch := range batches {
		if err := batch.table.SyncSequence(db); err != nil {
			logger.Warn("Failed to sync sequence after import", map[string]interface{}{
				"table": batch.table.Name(),
				"error": err.Error(),
			})
		}
	}

	logger.Info("Data import finished", map[string]interface{}{
		"filename": filename,
		"success":  result.Success,
		"imported": result.Imported,
		"updated":  result.Updated,
		"skipped":  result.Skipped,
		"errors":   len(result.Errors),
	})

	return result, nil
}

func (s *DataTransferService) importEachRow(db *gorm.DB, batches []importBatch, opts repository.ImportRowOptions, result *ImportResult) {
	for _, batch := range batches {
		name := batch.table.Name()
		for i, raw := range batch.rows {
			var outcome repository.RowOutcome
			err := db.Transaction(func(tx *gorm.DB) error {
				var rowErr error
				outcome, rowErr = batch.table.ImportRow(tx, raw, opts)
				return rowErr
			})
			if err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, ImportRowError{Table: name, Record: i + 1, Error: err.Error()})
				importRowsTotal.WithLabelValues("error").Inc()
				continue
			}
			result.count(name, outcome)
		}
	}

	result.Success = true
	result.Message = fmt.Sprintf("Imported %d records (%d overwritten), skipped %d", result.Imported, result.Updated, result.Skipped)
	if len(result.Errors) > 0 {
		result.Message += fmt.Sprintf(" (%d records failed)", len(result.Errors))
	}
}

func (s *DataTransferService) importAtomically(db *gorm.DB, batches []importBatch, opts repository.ImportRowOptions, result *ImportResult) {
	staged := &ImportResult{Errors: []ImportRowError{}, Tables: make(map[string]int)}

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, batch := range batches {
			name := batch.table.Name()
			for i, raw := range batch.rows {
				outcome, err := batch.table.ImportRow(tx, raw, opts)
				if err != nil {
					staged.Errors = append(staged.Errors, ImportRowError{Table: name, Record: i + 1, Error: err.Error()})
					return err
				}
				staged.count(name, outcome)
			}
		}
		return nil
	})

	if err != nil {
		importRowsTotal.WithLabelValues("rolled_back").Add(float64(staged.Imported))
		importRowsTotal.WithLabelValues("error").Inc()
		result.Success = false
		result.Errors = staged.Errors
		if len(staged.Errors) > 0 {
			first := staged.Errors[0]
			result.Message = fmt.Sprintf("Import aborted at %s record %d: %s; no records were written", first.Table, first.Record, first.Error)
		} else {
			result.Message = fmt.Sprintf("Import aborted: %v; no records were written", err)
		}
		return
	}

	result.Success = true
	result.Imported = staged.Imported
	result.Updated = staged.Updated
	result.Skipped = staged.Skipped
	result.Tables = staged.Tables
	result.Message = fmt.Sprintf("Imported %d records (%d overwritten), skipped %d", result.Imported, result.Updated, result.Skipped)
}

func (r *ImportResult) count(table string, outcome repository.RowOutcome) {
	switch outcome {
	case repository.RowCreated:
		r.Imported++
		r.Tables[table]++
		importRowsTotal.WithLabelValues("created").Inc()
	case repository.RowUpdated:
		r.Imported++
		r.Updated++
		r.Tables[table]++
		importRowsTotal.WithLabelValues("updated").Inc()
	default:
		r.Skipped++
		importRowsTotal.WithLabelValues("skipped").Inc()
	}
}

// parseImport decodes an export in JSON, gzipped JSON or zip archive form
// into per-table rows, in registry order.
func (s *DataTransferService) parseImport(filename string, data []byte) ([]importBatch, error) {
	var tables map[string]json.RawMessage

	switch validator.DetectFileType(data) {
	case "application/zip":
		archive, err := openArchive(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
		tables = archive.Tables
	case "application/gzip":
		decompressed, err := s.gunzip(data)
		if err != nil {
			return nil, err
		}
		if tables, err = decodeExportDocument(decompressed); err != nil {
			return nil, err
		}
	case "application/json":
		var err error
		if tables, err = decodeExportDocument(data); err != nil {
			return nil, err
		}
	default:
		ext := strings.ToLower(filepath.Ext(filename))
		if ext == ".csv" {
			return nil, fmt.Errorf("%w: csv files cannot be imported, use a json or zip export", ErrUnsupportedFormat)
		}
		return nil, fmt.Errorf("%w: expected json, json.gz or zip", ErrUnsupportedFormat)
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no tables found", ErrInvalidImport)
	}

	var unknown []string
	for name := range tables {
		if _, ok := s.tables.Get(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown tables %s", ErrInvalidImport, strings.Join(unknown, ", "))
	}

	batches := make([]importBatch, 0, len(tables))
	for _, name := range s.tables.Names(true) {
		raw, ok := tables[name]
		if !ok {
			continue
		}
		table, _ := s.tables.Get(name)
		rows, err := table.DecodeRows(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
		batches = append(batches, importBatch{table: table, rows: rows})
	}

	return batches, nil
}

func (s *DataTransferService) gunzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(io.LimitReader(reader, s.maxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if int64(len(decompressed)) > s.maxImportSize {
		return nil, ErrImportTooLarge
	}
	return decompressed, nil
}

func decodeExportDocument(data []byte) (map[string]json.RawMessage, error) {
	var document exportDocument
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if document.SchemaVersion != "" && document.SchemaVersion != backupSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %s", ErrInvalidImport, document.SchemaVersion)
	}
	return document.Tables, nil
}
