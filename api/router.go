// Package api contains all endpoints available
package api

import (
	"fmt"
	"time"

	"hostbin/file-api/config"
	"hostbin/file-api/db"
	"hostbin/file-api/internal/service"
	"hostbin/file-api/internal/store"
	"hostbin/file-api/pkg/middleware"
	"hostbin/file-api/pkg/storage"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

var cacheStore = persist.NewMemoryStore(time.Minute)

type API struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Store    *store.DB
	Paths    *storage.Paths
	Pipeline *service.Pipeline
	Files    *service.Files
}

func NewRouter() (*API, error) {
	a := &API{}

	conn, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}
	a.DB = conn
	a.Store = store.New(conn)

	makeLogger()

	paths, err := storage.New(viper.GetString("storage.root"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage, %w", err)
	}
	a.Paths = paths

	tiers := config.Tiers()
	a.Pipeline = service.NewPipeline(a.Store, paths, tiers)
	a.Files = service.NewFiles(a.Store, paths)

	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", "If-Modified-Since"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "ETag", "Last-Modified"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	a.Router.MaxMultipartMemory = 5 << 20

	auth := middleware.NewAuthMiddleware(conn)
	optionalAuth := middleware.NewOptionalAuthMiddleware(conn)
	uploadLimiter := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: 2,
		Burst:             5,
	})

	// The request body limit covers the most generous tier, plus some
	// slack for the multipart framing
	maxBody := tiers.Registered.MaxFileSize
	if maxBody != -1 && tiers.Unregistered.MaxFileSize > maxBody {
		maxBody = tiers.Unregistered.MaxFileSize
	}

	main := router.Group("/api")
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		main.HEAD("/heartbeat", a.Heartbeat)

		// GET /api/stats		-> Public service-wide upload stats
		main.GET("/stats", cacheFor(30), a.Stats)
	}

	files := main.Group("/files")
	{
		// GET /api/files/:fileID 	-> Serves a file's bytes with access control
		files.GET("/:fileID", optionalAuth, a.FileServe)

		// GET /api/files/:fileID/info	-> Returns a file's metadata to its owner
		files.GET("/:fileID/info", auth, a.FileFetch)

		// GET /api/files/bulk 		-> Returns a user's files in bulk
		files.GET("/bulk", auth, a.FileFetchBulk)

		// POST /api/files         	-> Uploads a batch of files
		if maxBody == -1 {
			files.POST("", auth, uploadLimiter, a.FileUpload)
		} else {
			files.POST("", auth, uploadLimiter, middleware.BodySizeLimiter(maxBody+(1<<20)), a.FileUpload)
		}

		// PATCH /api/files/:fileID	-> Edits a file's display name or visibility
		files.PATCH("/:fileID", auth, a.FileEdit)

		// DELETE /api/files/:fileID	-> Deletes a file owned by a user
		files.DELETE("/:fileID", auth, a.FileDelete)
	}

	return a, nil
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	var level zapcore.Level
	if err := level.Set(viper.GetString("app.log_level")); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

func cacheFor(sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(cacheStore, time.Second*time.Duration(sec))
}
