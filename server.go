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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/middlewares"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/mmdatafocus/compliance_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("compliance_backend")

// RateLimiter is a fixed-window limiter keyed by client IP.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		// redis down must not take the API with it
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(ctx, key, rl.window)
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}

func correlationId() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Writer.Header().Set("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	// production requires an explicit allowlist; an empty one denies all
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		cfg.AllowOrigins = utils.SplitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", "Idempotency-Key", "X-Correlation-Id")
	cfg.AddExposeHeaders("Content-Length", "X-Correlation-Id")
	if !cfg.AllowAllOrigins {
		cfg.AllowCredentials = true
	}
	return cfg
}

// newRouter wires middleware and routes. ready gates everything except /healthz so the
// port can open before the database is reachable.
func newRouter(a *api, ready func() bool, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(correlationId())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(func(c *gin.Context) {
		if !ready() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.Use(cors.New(corsConfig()))

	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDRESS")})
		limit := int64(config.IntFromEnv("RATE_LIMIT_MAX_REQUESTS", 600))
		window := time.Duration(config.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
		r.Use(NewRateLimiter(client, limit, window).RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1", middlewares.RequireIdentity())
	a.routes(v1)

	ops := r.Group("/internal/ops", middlewares.RequireIdentity(), middlewares.RequireRole("ADMIN"))
	a.opsRoutes(ops)

	r.NoRoute(customNotFoundHandler)
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

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// routes are registered now and served once a is filled in
	a := &api{}
	var ready atomic.Bool
	r := newRouter(a, ready.Load, logger)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	db := config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(sigCtx)
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// AutoMigrate DDL can block tables; production runs it as a separate job.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	deps := workflow.ServiceDeps{Notifier: workflow.NewOutboxNotifier(db)}
	if config.AttachmentBucket() != "" {
		deps.Attachments = workflow.NewGCSAttachmentVerifier()
	}
	*a = *newAPI(db, deps)
	ready.Store(true)

	// publishes committed notifications
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs only requests that recorded gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.WithFields(logrus.Fields{
				"path":   c.FullPath(),
				"status": c.Writer.Status(),
			}).Error(c.Errors.String())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "NotFound", "message": "route " + c.Request.Method + " " + c.Request.URL.Path + " not found"})
}
