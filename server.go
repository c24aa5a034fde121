package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
	"bitbucket.org/mmdatafocus/batchlink_backend/middlewares"
	"bitbucket.org/mmdatafocus/batchlink_backend/models"
	"bitbucket.org/mmdatafocus/batchlink_backend/reconcile"
	"bitbucket.org/mmdatafocus/batchlink_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// importService is swapped in once the database is reachable; until then
// every app endpoint answers 503.
type importService struct {
	importer *reconcile.Coordinator
	runs     runReader
	review   reviewReader
	archiver sourceArchiver
	settings config.ImportSettings
}

type serviceHolder struct {
	svc atomic.Pointer[importService]
}

func (h *serviceHolder) get() *importService { return h.svc.Load() }

func (h *serviceHolder) set(svc *importService) { h.svc.Store(svc) }

func newImportService(store *models.BatchStore, settings config.ImportSettings, logger *logrus.Logger) *importService {
	importer := reconcile.NewCoordinator(store, settings, logger)
	importer.SetNotifier(reconcile.NewNotifierFromEnv())
	svc := &importService{
		importer: importer,
		runs:     store,
		review:   store,
		settings: settings,
	}
	// keep the interface nil when archiving is off
	if archiver := utils.NewGCSArchiverFromEnv(); archiver != nil {
		svc.archiver = archiver
	}
	return svc
}

func newRouter(holder *serviceHolder, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(recoveryMiddleware(logger))
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if holder.get() == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service not ready"})
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production CORS_ALLOWED_ORIGINS is an explicit allow-list (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if config.IsProduction() {
		corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		if len(corsConfig.AllowOrigins) == 0 {
			// deny all until configured
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))

	r.POST("/batch-imports", batchImportHandler(holder))
	r.GET("/batch-imports/:id", importRunHandler(holder))
	r.GET("/batch-records/review", reviewExportHandler(holder))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	settings := config.GetImportSettings()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	holder := &serviceHolder{}
	r := newRouter(holder, logger)

	// Start listening before dependencies are up; the readiness gate answers 503 meanwhile.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	holder.set(newImportService(models.NewBatchStore(db), settings, logger))
	log.Printf("batch import service listening on :%s", port)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// recoveryMiddleware turns a panic anywhere in the chain into the generic JSON 500.
func recoveryMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		fields := logrus.Fields{"field": "recovery", "path": c.Request.URL.Path}
		if cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
			fields["correlation_id"] = cid
		}
		logger.WithFields(fields).Error(fmt.Sprintf("panic recovered: %v", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
