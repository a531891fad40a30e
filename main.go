package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/corestack/corestack/handlers"
	"github.com/corestack/corestack/internal/accounts"
	"github.com/corestack/corestack/internal/archive"
	"github.com/corestack/corestack/internal/config"
	"github.com/corestack/corestack/internal/database"
	"github.com/corestack/corestack/internal/password"
	"github.com/corestack/corestack/internal/sessions"
	"github.com/corestack/corestack/internal/store"
	"github.com/corestack/corestack/internal/tokens"
	"github.com/corestack/corestack/pkg/logger"
	"github.com/corestack/corestack/pkg/metrics"
	"github.com/corestack/corestack/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging first (LOG_LEVEL: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v rate_limit=%v", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.RateLimit.Enabled)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple; production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+cfg.Auth.GateHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Global middlewares: logging + recovery
	r.Use(gin.Logger(), gin.Recovery())

	ctx := context.Background()

	// Connect to Redis early so sessions and the rate limiter can use it when configured
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Optional global rate limiter (per-account when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimit(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// MongoDB is required; retry with backoff to tolerate startup races
	const maxAttempts = 5
	backoff := time.Second
	var client *mongo.Client
	var errConn error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client, errConn = database.Connect(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if errConn == nil {
			break
		}
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
		if attempt < maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	if errConn != nil {
		logger.Fatalf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	db := client.Database(cfg.MongoDB.Database)
	repo := store.NewMongoRepository(db)
	if err := repo.EnsureUniqueIndex(ctx, cfg.Auth.AccountCollection, accounts.KeyField); err != nil {
		logger.Warnf("account key index: %v", err)
	}
	storeSvc := store.NewService(repo, cfg.MongoDB.Timeout)

	codec := tokens.NewCodec(cfg.Auth.Secret)
	accountsSvc := accounts.NewService(storeSvc, password.NewHasher(cfg.Auth.BcryptCost), codec, cfg.Auth.TokenTTL)

	// Prefer Redis-backed sessions; fall back to a Mongo collection
	var sessionsSvc *sessions.Service
	if redisClient != nil {
		sessionsSvc = sessions.NewService(sessions.NewRedisRepository(redisClient, "session:"), cfg.Auth.SessionTTL)
		logger.Infof("using Redis for session storage")
	} else {
		sessionsSvc = sessions.NewService(sessions.NewMongoRepository(db.Collection("sessions")), cfg.Auth.SessionTTL)
		logger.Infof("using MongoDB for session storage")
	}

	auth := &middleware.Authenticator{
		Tokens:     codec,
		Sessions:   sessionsSvc,
		Accounts:   accountsSvc,
		Collection: cfg.Auth.AccountCollection,
	}

	// every /service route sits behind the gate
	service := r.Group("/service", middleware.Protected(cfg.Auth.GateHeader, cfg.Auth.Secret))
	handlers.NewAuthHandler(cfg, accountsSvc, sessionsSvc, auth).Register(service)
	handlers.NewStorageHandler(storeSvc).Register(service)

	// archive routes only when an object store is configured
	archiveReady := false
	archCfg := archive.LoadConfig()
	if archCfg.Endpoint != "" {
		objects, err := archive.NewMinIOStorage(archCfg)
		if err != nil {
			logger.Warnf("archive disabled: %v", err)
		} else {
			handlers.NewArchiveHandler(archive.NewService(objects, storeSvc, "archive"), auth).Register(service)
			archiveReady = true
		}
	}

	handlers.RegisterSwagger(r)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when critical dependencies answer
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps["mongo"] = client.Ping(pingCtx, nil) == nil
		if !deps["mongo"] {
			ready = false
		}

		if cfg.Redis.Host != "" {
			deps["redis"] = redisClient != nil && redisClient.Ping(pingCtx).Err() == nil
			if !deps["redis"] {
				ready = false
			}
		}
		if archCfg.Endpoint != "" {
			deps["archive"] = archiveReady
		}

		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		c.JSON(status, gin.H{"status": state, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting corestack on %s (env=%s)", addr, cfg.Server.Environment)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
