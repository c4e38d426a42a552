package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"portfolio-admin-backend/internal/config"
	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/internal/repository"
	"portfolio-admin-backend/internal/service"
	"portfolio-admin-backend/internal/storage"
	"portfolio-admin-backend/pkg/cache"
	"portfolio-admin-backend/pkg/logger"
)

// Core holds the database, cache and services shared by the HTTP server and
// the operator CLI.
type Core struct {
	Config *config.Config

	DB    *gorm.DB
	Cache *cache.Cache
	Store storage.BackupStore

	Repositories RepositoryContainer
	Services     ServiceContainer

	recorder *service.AuditRecorder
}

type RepositoryContainer struct {
	Tables     *repository.TableRegistry
	Projects   repository.EntityRepository[models.Project]
	CaseStudy  repository.EntityRepository[models.CaseStudy]
	Blog       repository.EntityRepository[models.BlogPost]
	Experience repository.EntityRepository[models.Experience]
	Skills     repository.EntityRepository[models.Skill]
	Tools      repository.EntityRepository[models.Tool]
	Media      repository.EntityRepository[models.MediaAsset]
	Versions   repository.VersionRepository
	Backups    repository.BackupRepository
	Audit      repository.AuditRepository
	Settings   repository.SettingRepository
}

type ServiceContainer struct {
	Audit        *service.AuditService
	Versions     *service.VersionService
	Projects     *service.CollectionService[models.Project, *models.Project]
	CaseStudies  *service.CollectionService[models.CaseStudy, *models.CaseStudy]
	Blog         *service.CollectionService[models.BlogPost, *models.BlogPost]
	Experience   *service.CollectionService[models.Experience, *models.Experience]
	Skills       *service.CollectionService[models.Skill, *models.Skill]
	Tools        *service.CollectionService[models.Tool, *models.Tool]
	SiteSections *service.SiteSectionService
	Media        *service.MediaService
	Backups      *service.BackupService
	DataTransfer *service.DataTransferService
	Analytics    *service.AnalyticsService
}

// NewCore connects to the database, migrates it and builds every service.
func NewCore(cfg *config.Config) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	core := &Core{Config: cfg}

	if err := core.initDatabase(); err != nil {
		return nil, err
	}
	if err := core.runMigrations(); err != nil {
		return nil, err
	}
	if err := core.createIndexes(); err != nil {
		return nil, err
	}

	core.initCache()

	if err := core.initStorage(); err != nil {
		return nil, err
	}

	core.initRepositories()
	core.initServices()

	return core, nil
}

func (c *Core) initDatabase() error {
	logger.Info("Connecting to database", map[string]interface{}{"driver": c.Config.DBDriver})

	var dialector gorm.Dialector
	switch c.Config.DBDriver {
	case "sqlite":
		if dir := filepath.Dir(c.Config.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		dialector = sqlite.Open(c.Config.SQLitePath + "?_busy_timeout=5000&_foreign_keys=on")
	case "postgres", "":
		dialector = postgres.Open(c.Config.DatabaseURL)
	default:
		return fmt.Errorf("unsupported database driver %q", c.Config.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	c.DB = db
	return nil
}

func (c *Core) runMigrations() error {
	logger.Info("Running database migrations", nil)

	if err := c.DB.AutoMigrate(
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
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database migration completed", nil)
	return nil
}

func (c *Core) createIndexes() error {
	if c.DB.Dialector.Name() != "postgres" {
		return nil
	}

	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_projects_published ON projects(published) WHERE published = true",
		"CREATE INDEX IF NOT EXISTS idx_blog_posts_published ON blog_posts(published_at DESC) WHERE published = true",
		"CREATE INDEX IF NOT EXISTS idx_audit_events_metadata ON audit_events USING GIN (metadata)",
		"CREATE INDEX IF NOT EXISTS idx_backup_manifests_created_at ON backup_manifests(created_at DESC)",
	}

	for _, stmt := range statements {
		if err := c.DB.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (c *Core) initCache() {
	if !c.Config.EnableCache {
		c.Cache = cache.Disabled()
		return
	}

	cacheService, err := cache.NewCache(c.Config.RedisURL, true)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without cache", map[string]interface{}{"error": err.Error()})
		c.Cache = cache.Disabled()
		return
	}
	c.Cache = cacheService
}

func (c *Core) initStorage() error {
	if c.Config.BackupStorage == "minio" {
		store, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:  c.Config.MinIOEndpoint,
			AccessKey: c.Config.MinIOAccessKey,
			SecretKey: c.Config.MinIOSecretKey,
			UseSSL:    c.Config.MinIOUseSSL,
			Bucket:    c.Config.MinIOBucket,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize minio backup storage: %w", err)
		}
		c.Store = store
		return nil
	}

	store, err := storage.NewLocalStore(c.Config.BackupDir)
	if err != nil {
		return fmt.Errorf("failed to initialize local backup storage: %w", err)
	}
	c.Store = store
	return nil
}

func (c *Core) initRepositories() {
	c.Repositories = RepositoryContainer{
		Tables:     repository.PortfolioTables(),
		Projects:   repository.NewEntityRepository[models.Project](c.DB, "order"),
		CaseStudy:  repository.NewEntityRepository[models.CaseStudy](c.DB),
		Blog:       repository.NewEntityRepository[models.BlogPost](c.DB, "created_at"),
		Experience: repository.NewEntityRepository[models.Experience](c.DB, "order"),
		Skills:     repository.NewEntityRepository[models.Skill](c.DB, "order"),
		Tools:      repository.NewEntityRepository[models.Tool](c.DB, "order"),
		Media:      repository.NewEntityRepository[models.MediaAsset](c.DB),
		Versions:   repository.NewVersionRepository(c.DB),
		Backups:    repository.NewBackupRepository(c.DB),
		Audit:      repository.NewAuditRepository(c.DB),
		Settings:   repository.NewSettingRepository(c.DB),
	}
}

func (c *Core) initServices() {
	cfg := c.Config
	repos := c.Repositories

	c.recorder = service.NewAuditRecorder(repos.Audit, cfg.AuditQueueSize, cfg.AuditBatchSize, cfg.AuditFlushInterval)
	audit := service.NewAuditService(repos.Audit, c.recorder, c.Cache)
	versions := service.NewVersionService(repos.Versions, cfg.VersionCompressThreshold)

	backups := service.NewBackupService(
		c.DB,
		repos.Backups,
		repos.Settings,
		repos.Tables,
		c.Store,
		cfg.UploadDir,
		service.BackupScheduleDefaults{
			Enabled:   cfg.BackupScheduleEnabled,
			Cron:      cfg.BackupSchedule,
			Retention: cfg.BackupRetention,
		},
		audit,
		c.Cache,
	)

	c.Services = ServiceContainer{
		Audit:        audit,
		Versions:     versions,
		Projects:     service.NewCollectionService[models.Project]("projects", c.DB, repos.Projects, versions, audit, c.Cache),
		CaseStudies:  service.NewCollectionService[models.CaseStudy]("case_studies", c.DB, repos.CaseStudy, versions, audit, c.Cache),
		Blog:         service.NewCollectionService[models.BlogPost]("blog_posts", c.DB, repos.Blog, versions, audit, c.Cache),
		Experience:   service.NewCollectionService[models.Experience]("experiences", c.DB, repos.Experience, versions, audit, c.Cache),
		Skills:       service.NewCollectionService[models.Skill]("skills", c.DB, repos.Skills, versions, audit, c.Cache),
		Tools:        service.NewCollectionService[models.Tool]("tools", c.DB, repos.Tools, versions, audit, c.Cache),
		SiteSections: service.NewSiteSectionService(c.DB, audit, c.Cache),
		Media:        service.NewMediaService(cfg.UploadDir, cfg.MaxUploadSize, repos.Media, audit, c.Cache),
		Backups:      backups,
		DataTransfer: service.NewDataTransferService(c.DB, repos.Tables, backups, cfg.UploadDir, cfg.MaxImportSize, audit, c.Cache),
		Analytics:    service.NewAnalyticsService(c.DB, repos.Tables, repos.Versions, audit, backups, c.Cache),
	}
}

// StartAudit switches audit recording to the asynchronous queue.
func (c *Core) StartAudit() {
	c.recorder.Start()
}

// Close drains the audit queue and releases the cache and database.
func (c *Core) Close(ctx context.Context) error {
	var firstErr error

	if c.recorder != nil {
		if err := c.recorder.Shutdown(ctx); err != nil {
			logger.Error(err, "Failed to drain audit queue", nil)
			firstErr = err
		}
	}

	if err := c.Cache.Close(); err != nil {
		logger.Error(err, "Failed to close cache connection", nil)
	}

	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
