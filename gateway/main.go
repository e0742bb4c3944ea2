package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/brickfolio/control-plane/shared/audit"
	"github.com/brickfolio/control-plane/shared/config"
	"github.com/brickfolio/control-plane/shared/events"
	"github.com/brickfolio/control-plane/shared/middleware"
	"github.com/brickfolio/control-plane/shared/sharding"
	"github.com/brickfolio/control-plane/shared/tenancy"
	"github.com/brickfolio/control-plane/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	// Redis backs the migration in-flight check
	if err := utils.InitRedis(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer utils.CloseRedis()

	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Resolver results ride the shared Redis cache; the control plane drops
	// entries on administrative transitions, the TTL covers everything else.
	lookup := tenancy.NewCachedLookup(tenancy.NewGormTenantLookup(db), 30*time.Second)
	resolver := tenancy.NewResolver(lookup, cfg)

	// The gateway never initiates migrations; the router is only here so
	// the middleware can hold traffic for tenants mid-migration.
	shardRouter := sharding.NewRouter(
		sharding.NewGormStore(db),
		audit.NewGormStore(db),
		sharding.NewHTTPMover(cfg.RelocationURL),
		utils.NewRedisLocker(utils.RedisClient),
		events.Nop{},
		cfg.Shards,
	)

	tenantMiddleware := middleware.NewTenantMiddleware(resolver, shardRouter, cfg.InternalSecret)

	rendererURL := os.Getenv("RENDERER_URL")
	if rendererURL == "" {
		rendererURL = "http://localhost:8080"
	}
	renderer := NewRendererClient(rendererURL)

	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		status := gin.H{"renderer": "healthy"}
		if err := renderer.HealthCheck(); err != nil {
			status["renderer"] = err.Error()
		}
		utils.OKResponse(c, "Gateway is healthy", status)
	})

	// Every other path is tenant traffic: resolve from the host, then
	// hand off to the renderer.
	router.Use(tenantMiddleware.ResolveTenant())
	router.NoRoute(renderer.ServeSite)

	// Start server
	port := os.Getenv("GATEWAY_PORT")
	if port == "" {
		port = "8000"
	}

	logrus.Infof("Gateway starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start gateway:", err)
	}
}
