package service

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/internal/storage"
	"portfolio-admin-backend/pkg/cache"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	db        *gorm.DB
	tables    *repository.TableRegistry
	audit     *AuditService
	auditRepo repository.AuditRepository
	versions  *VersionService
	projects  *CollectionService[models.Project, *models.Project]
	skills    *CollectionService[models.Skill, *models.Skill]
	backups   *BackupService
	store     storage.BackupStore
	transfer  *DataTransferService
	uploadDir string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "portfolio.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.Project{},
		&models.CaseStudy{},
		&models.BlogPost{},
		&models.Experience{},
		&models.Skill{},
		&models.Tool{},
		&models.SiteSection{},
		&models.MediaAsset{},
		&models.Setting{},
		&models.ContentVersion{},
		&models.AuditEvent{},
		&models.BackupManifest{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return db
}

// newTestEnv wires the services against a fresh sqlite file and a local
// backup store. Audit events are written inline.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	uploadDir := filepath.Join(t.TempDir(), "uploads")

	store, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "backups"))
	if err != nil {
		t.Fatalf("failed to create backup store: %v", err)
	}

	noCache := cache.Disabled()
	tables := repository.PortfolioTables()
	auditRepo := repository.NewAuditRepository(db)
	audit := NewAuditService(auditRepo, NewAuditRecorder(auditRepo, 16, 4, 0), noCache)
	versions := NewVersionService(repository.NewVersionRepository(db), 0)

	backups := NewBackupService(
		db,
		repository.NewBackupRepository(db),
		repository.NewSettingRepository(db),
		tables,
		store,
		uploadDir,
		BackupScheduleDefaults{Cron: "0 3 * * *", Retention: 7},
		audit,
		noCache,
	)

	return &testEnv{
		db:        db,
		tables:    tables,
		audit:     audit,
		auditRepo: auditRepo,
		versions:  versions,
		projects: NewCollectionService[models.Project](
			"projects", db, repository.NewEntityRepository[models.Project](db, "order"), versions, audit, noCache),
		skills: NewCollectionService[models.Skill](
			"skills", db, repository.NewEntityRepository[models.Skill](db, "order"), versions, audit, noCache),
		backups:   backups,
		store:     store,
		transfer:  NewDataTransferService(db, tables, backups, uploadDir, 0, audit, noCache),
		uploadDir: uploadDir,
	}
}

func (e *testEnv) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	if err := e.db.Table(table).Count(&n).Error; err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

func testActor() models.Actor {
	return models.Actor{UserID: "42", Email: "admin@example.com", IP: "127.0.0.1"}
}

func createMultipartFile(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write file content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := req.ParseMultipartForm(int64(body.Len())); err != nil {
		t.Fatalf("failed to parse multipart form: %v", err)
	}

	files := req.MultipartForm.File["file"]
	if len(files) == 0 {
		t.Fatalf("expected multipart file to be available")
	}
	return files[0]
}
