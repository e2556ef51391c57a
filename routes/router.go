package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Lakshima2000/paddyHealth-backend/config"
	"github.com/Lakshima2000/paddyHealth-backend/controllers"
	"github.com/Lakshima2000/paddyHealth-backend/middleware"
	"github.com/Lakshima2000/paddyHealth-backend/realtime"
	"github.com/Lakshima2000/paddyHealth-backend/utils"
)

// Deps are the long-lived components the HTTP layer talks to.
type Deps struct {
	DB        *gorm.DB
	Hub       *realtime.Hub
	Submitter controllers.JobSubmitter
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, deps Deps) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(utils.Ginzap(accessLogger(cfg), time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(utils.Logger, true))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))
	r.Use(middleware.Metrics())

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Hub != nil {
		r.GET("/ws", realtime.NewHandler(deps.Hub, cfg.AllowedOrigins).Serve)
	}

	authController := controllers.NewAuthController(deps.DB)
	predictionController := controllers.NewPredictionController(
		deps.DB,
		deps.Submitter,
		cfg.UploadFolder,
		int64(cfg.MaxUploadMB)<<20,
	)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", middleware.RateLimit(cfg.RateLimitPerMinute), authController.Register)
	authGroup.POST("/login", middleware.RateLimit(cfg.RateLimitPerMinute), authController.Login)
	authGroup.GET("/profile", middleware.AuthRequired(), authController.Profile)

	predictionGroup := api.Group("/predictions")
	predictionGroup.Use(middleware.AuthRequired())
	predictionGroup.POST("/predict", predictionController.Predict)
	predictionGroup.GET("/predictions", predictionController.ListPredictions)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	})

	return r
}

// accessLogger writes the request log to its own rolling file when one is configured.
func accessLogger(cfg config.AppConfig) *zap.Logger {
	if cfg.GinPath == "" {
		return utils.Logger
	}
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err != nil {
		utils.Sugar.Warnw("gin access log unavailable, using app logger", "path", cfg.GinPath, "error", err)
		return utils.Logger
	}
	return gl
}
