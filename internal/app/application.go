package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portfolio-admin-backend/internal/background"
	"portfolio-admin-backend/internal/config"
	"portfolio-admin-backend/internal/handlers"
	"portfolio-admin-backend/internal/middleware"
	"portfolio-admin-backend/internal/models"
	"portfolio-admin-backend/pkg/logger"
)

type Application struct {
	cfg  *config.Config
	core *Core

	handlers handlerContainer

	backupJobs  *background.JobRunner
	planner     *background.BackupPlanner
	rateLimiter *middleware.RateLimitManager

	router *gin.Engine
	server *http.Server
}

type handlerContainer struct {
	Projects     *handlers.CollectionHandler[models.Project, *models.Project]
	CaseStudies  *handlers.CollectionHandler[models.CaseStudy, *models.CaseStudy]
	Blog         *handlers.CollectionHandler[models.BlogPost, *models.BlogPost]
	Experience   *handlers.CollectionHandler[models.Experience, *models.Experience]
	Skills       *handlers.CollectionHandler[models.Skill, *models.Skill]
	Tools        *handlers.CollectionHandler[models.Tool, *models.Tool]
	SiteSections *handlers.SiteSectionHandler
	Versions     *handlers.VersionHandler
	Backup       *handlers.BackupHandler
	Data         *handlers.DataHandler
	Audit        *handlers.AuditHandler
	Media        *handlers.MediaHandler
	Analytics    *handlers.AnalyticsHandler
	Cache        *handlers.CacheHandler
	Health       *handlers.HealthHandler
}

func New(cfg *config.Config) (*Application, error) {
	core, err := NewCore(cfg)
	if err != nil {
		return nil, err
	}

	app := &Application{
		cfg:  cfg,
		core: core,
	}

	app.initBackground()
	app.initHandlers()
	app.initRouter()

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
		// imports and backup downloads can take a while
		WriteTimeout:   5 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	return app, nil
}

func (a *Application) initBackground() {
	a.core.StartAudit()

	a.backupJobs = background.NewJobRunner(background.JobRunnerConfig{Workers: 1, QueueSize: 4})
	a.backupJobs.Start(context.Background())

	a.planner = background.NewBackupPlanner(a.core.Services.Backups, a.backupJobs, background.PlannerConfig{})
	a.planner.Start(context.Background())

	a.rateLimiter = middleware.NewRateLimitManager(context.Background())
}

func (a *Application) initHandlers() {
	services := a.core.Services

	a.handlers = handlerContainer{
		Projects:     handlers.NewCollectionHandler(services.Projects),
		CaseStudies:  handlers.NewCollectionHandler(services.CaseStudies),
		Blog:         handlers.NewCollectionHandler(services.Blog),
		Experience:   handlers.NewCollectionHandler(services.Experience),
		Skills:       handlers.NewCollectionHandler(services.Skills),
		Tools:        handlers.NewCollectionHandler(services.Tools),
		SiteSections: handlers.NewSiteSectionHandler(services.SiteSections),
		Versions:     handlers.NewVersionHandler(services.Versions),
		Backup:       handlers.NewBackupHandler(services.Backups),
		Data:         handlers.NewDataHandler(services.DataTransfer),
		Audit:        handlers.NewAuditHandler(services.Audit),
		Media:        handlers.NewMediaHandler(services.Media),
		Analytics:    handlers.NewAnalyticsHandler(services.Analytics),
		Cache:        handlers.NewCacheHandler(a.core.Cache, services.Audit),
		Health:       handlers.NewHealthHandler(a.core.DB, a.core.Cache),
	}
}

func (a *Application) initRouter() {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(logger.GinLogger())
	router.Use(middleware.SecurityHeadersMiddleware())
	if a.cfg.EnableMetrics {
		router.Use(middleware.MetricsMiddleware())
	}
	router.Use(middleware.RateLimitMiddleware(a.rateLimiter, middleware.RateLimitConfig{
		Requests:      a.cfg.RateLimitRequests,
		WindowSeconds: a.cfg.RateLimitWindow,
		Burst:         a.cfg.RateLimitBurst,
	}))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID", "X-Backup-Checksum"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.handlers.Health.Check)
	if a.cfg.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	router.Static("/uploads", a.cfg.UploadDir)

	critical := func(operation string) gin.HandlerFunc {
		return middleware.CriticalOperationRateLimit(a.rateLimiter, operation, a.cfg.BackupRateLimit, a.cfg.BackupRateWindow)
	}

	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(a.cfg.JWTSecret))
	admin.Use(middleware.AdminMiddleware())
	{
		admin.GET("/content", a.handlers.SiteSections.Get)
		admin.POST("/content", a.handlers.SiteSections.Save)

		a.handlers.Projects.Register(admin.Group("/projects"))
		a.handlers.CaseStudies.Register(admin.Group("/case-studies"))
		a.handlers.Blog.Register(admin.Group("/blog"))
		a.handlers.Experience.Register(admin.Group("/experience"))
		a.handlers.Skills.Register(admin.Group("/skills"))
		a.handlers.Tools.Register(admin.Group("/tools"))

		versions := admin.Group("/versions/:type/:id")
		versions.GET("", a.handlers.Versions.History)
		versions.GET("/compare", a.handlers.Versions.Compare)
		versions.GET("/:version", a.handlers.Versions.Get)
		versions.POST("/restore", a.handlers.Versions.Restore)

		admin.GET("/analytics", a.handlers.Analytics.Report)

		backup := admin.Group("/backup/system")
		backup.GET("", a.handlers.Backup.Get)
		backup.POST("", critical("backup"), a.handlers.Backup.Post)
		backup.GET("/:id/download", critical("backup-download"), a.handlers.Backup.Download)
		backup.DELETE("/:id", a.handlers.Backup.Delete)

		admin.GET("/media", a.handlers.Media.List)
		admin.POST("/media", a.handlers.Media.Upload)
		admin.PUT("/media/:id", a.handlers.Media.Update)
		admin.DELETE("/media/:id", a.handlers.Media.Delete)

		admin.GET("/data/export", critical("export"), a.handlers.Data.Export)
		admin.POST("/data/import", critical("import"), a.handlers.Data.Import)

		admin.GET("/audit", a.handlers.Audit.Get)

		admin.DELETE("/cache", a.handlers.Cache.Flush)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, handlers.Envelope{
				Success: false,
				Error:   &handlers.APIError{Code: handlers.CodeNotFound, Message: "Route not found"},
			})
			return
		}
		c.Status(http.StatusNotFound)
	})

	a.router = router
}

func (a *Application) Run() error {
	logger.Info("Server starting", map[string]interface{}{
		"port":        a.cfg.Port,
		"environment": a.cfg.Environment,
		"database":    a.cfg.DBDriver,
		"storage":     a.core.Store.Kind(),
		"cache":       a.core.Cache.Enabled(),
	})

	return a.server.ListenAndServe()
}

// Shutdown stops accepting requests, then stops background work and finally
// closes the core resources.
func (a *Application) Shutdown(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown http server: %w", err)
		}
	}

	if a.planner != nil {
		if err := a.planner.Shutdown(ctx); err != nil {
			logger.Error(err, "Failed to stop backup planner", nil)
		}
	}

	if a.backupJobs != nil {
		if err := a.backupJobs.Shutdown(ctx); err != nil {
			logger.Error(err, "Failed to stop backup job runner", nil)
		}
	}

	if a.rateLimiter != nil {
		if err := a.rateLimiter.Shutdown(); err != nil {
			logger.Error(err, "Failed to stop rate limiter", nil)
		}
	}

	return a.core.Close(ctx)
}

func (a *Application) Router() *gin.Engine {
	return a.router
}
