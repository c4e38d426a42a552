package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/internal/service"
	"portfolio-admin-backend/internal/storage"
	"portfolio-admin-backend/pkg/cache"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	db      *gorm.DB
	store   storage.BackupStore
	backups *service.BackupService
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Message string          `json:"message"`
}

// newTestServer mounts the admin handlers on a bare router backed by a
// fresh sqlite database. Authentication is not part of these tests.
func newTestServer(t *testing.T, maxImportSize int64) *testServer {
	t.Helper()

	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "admin.db")+"?_busy_timeout=5000"), &gorm.Config{
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

	store, err := storage.NewLocalStore(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("failed to create backup store: %v", err)
	}

	uploadDir := filepath.Join(dir, "uploads")
	noCache := cache.Disabled()
	tables := repository.PortfolioTables()
	auditRepo := repository.NewAuditRepository(db)
	audit := service.NewAuditService(auditRepo, service.NewAuditRecorder(auditRepo, 16, 4, 0), noCache)
	versions := service.NewVersionService(repository.NewVersionRepository(db), 0)
	backups := service.NewBackupService(
		db,
		repository.NewBackupRepository(db),
		repository.NewSettingRepository(db),
		tables,
		store,
		uploadDir,
		service.BackupScheduleDefaults{Cron: "0 3 * * *", Retention: 7},
		audit,
		noCache,
	)
	transfer := service.NewDataTransferService(db, tables, backups, uploadDir, maxImportSize, audit, noCache)
	skills := service.NewCollectionService[models.Skill](
		"skills", db, repository.NewEntityRepository[models.Skill](db, "order"), versions, audit, noCache)
	projects := service.NewCollectionService[models.Project](
		"projects", db, repository.NewEntityRepository[models.Project](db, "order"), versions, audit, noCache)
	analytics := service.NewAnalyticsService(db, tables, repository.NewVersionRepository(db), audit, backups, noCache)

	sections := NewSiteSectionHandler(service.NewSiteSectionService(db, audit, noCache))
	backupHandler := NewBackupHandler(backups)
	dataHandler := NewDataHandler(transfer)
	auditHandler := NewAuditHandler(audit)
	versionHandler := NewVersionHandler(versions)

	router := gin.New()
	admin := router.Group("/api/admin")
	admin.GET("/content", sections.Get)
	admin.POST("/content", sections.Save)
	NewCollectionHandler(skills).Register(admin.Group("/skills"))
	NewCollectionHandler(projects).Register(admin.Group("/projects"))
	versionRoutes := admin.Group("/versions/:type/:id")
	versionRoutes.GET("", versionHandler.History)
	versionRoutes.GET("/compare", versionHandler.Compare)
	versionRoutes.GET("/:version", versionHandler.Get)
	versionRoutes.POST("/restore", versionHandler.Restore)
	admin.GET("/analytics", NewAnalyticsHandler(analytics).Report)
	admin.GET("/backup/system", backupHandler.Get)
	admin.POST("/backup/system", backupHandler.Post)
	admin.GET("/backup/system/:id/download", backupHandler.Download)
	admin.DELETE("/backup/system/:id", backupHandler.Delete)
	admin.GET("/data/export", dataHandler.Export)
	admin.POST("/data/import", dataHandler.Import)
	admin.GET("/audit", auditHandler.Get)

	return &testServer{router: router, db: db, store: store, backups: backups}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	if payload == nil {
		return s.do(t, method, path, nil, "")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return s.do(t, method, path, bytes.NewReader(data), "application/json")
}

func (s *testServer) upload(t *testing.T, path, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return s.do(t, http.MethodPost, path, body, writer.FormDataContentType())
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an envelope: %v\n%s", err, rec.Body.String())
	}
	return env
}

func expectFailure(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) envelope {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.Error == nil || env.Error.Code != code {
		t.Fatalf("expected error code %s, got %s", code, rec.Body.String())
	}
	return env
}
