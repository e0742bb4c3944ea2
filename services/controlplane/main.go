package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/brickfolio/control-plane/shared/audit"
	"github.com/brickfolio/control-plane/shared/config"
	"github.com/brickfolio/control-plane/shared/events"
	"github.com/brickfolio/control-plane/shared/identity"
	"github.com/brickfolio/control-plane/shared/models"
	"github.com/brickfolio/control-plane/shared/provisioning"
	"github.com/brickfolio/control-plane/shared/sharding"
	"github.com/brickfolio/control-plane/shared/sitedata"
	"github.com/brickfolio/control-plane/shared/subdomains"
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

	// Initialize Redis for locks and caching
	if err := utils.InitRedis(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer utils.CloseRedis()

	// Initialize database
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := db.AutoMigrate(
		&models.Tenant{},
		&models.Subdomain{},
		&models.AuditEntry{},
		&models.User{},
		&models.Agency{},
		&models.SiteLink{},
		&models.FieldKey{},
		&models.Property{},
	); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Identity directory for tenant owner accounts
	directory, err := identity.NewCognitoDirectory(cfg.AWSRegion, cfg.UserPoolID)
	if err != nil {
		log.Fatal("Failed to initialize identity directory:", err)
	}

	// Lifecycle events; Kafka is optional in development
	var publisher events.Publisher = events.Nop{}
	if cfg.KafkaBroker != "" {
		kafkaPub := events.NewKafkaPublisher(cfg.KafkaBroker)
		defer kafkaPub.Close()
		publisher = kafkaPub
	}

	locker := utils.NewRedisLocker(utils.RedisClient)
	auditLog := audit.NewGormStore(db)

	allocator := subdomains.NewAllocator(subdomains.NewGormStore(db), cfg.ReservationTTL)
	resolver := tenancy.NewResolver(tenancy.NewGormTenantLookup(db), cfg)
	repo := sitedata.NewRepo(db)

	engine := provisioning.NewEngine(
		provisioning.NewGormTenantStore(db),
		provisioning.DefaultSteps(repo, directory),
		locker,
		auditLog,
		allocator,
		publisher,
	)

	shardRouter := sharding.NewRouter(
		sharding.NewGormStore(db),
		auditLog,
		sharding.NewHTTPMover(cfg.RelocationURL),
		locker,
		publisher,
		cfg.Shards,
	)

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Control plane is healthy", nil)
	})

	// Signup: reserve a subdomain before committing to a tenant
	router.POST("/signup", handleSignup(allocator))

	// Resolution, used by the gateway and operator tooling
	router.GET("/resolve", handleResolve(resolver, cfg.InternalSecret))

	// Tenant lifecycle routes
	tenants := router.Group("/tenants")
	{
		tenants.POST("/", handleCreateTenant(db, allocator, shardRouter, engine))
		tenants.GET("/:id", handleGetTenant(db))

		tenants.POST("/:id/advance", handleAdvance(engine))
		tenants.GET("/:id/provisioning", handleProvisioningStatus(engine))
		tenants.POST("/:id/cancel", handleCancel(engine))

		tenants.POST("/:id/golive", adminTransitionHandler(engine.GoLive, "Tenant is live"))
		tenants.POST("/:id/suspend", adminTransitionHandler(engine.Suspend, "Tenant suspended"))
		tenants.POST("/:id/terminate", adminTransitionHandler(engine.Terminate, "Tenant terminated"))

		tenants.POST("/:id/migrate", handleMigrate(db, shardRouter))
		tenants.GET("/:id/audit", handleAuditLog(auditLog))
	}

	// Subdomain pool management
	subs := router.Group("/subdomains")
	{
		subs.POST("/reserve", handleReserveSubdomain(allocator))
		subs.POST("/allocate", handleAllocateSubdomain(allocator))
		subs.POST("/release", handleReleaseSubdomain(allocator))
		subs.GET("/:name", handleSubdomainStatus(allocator))
	}

	// Start server
	port := os.Getenv("CONTROL_PLANE_PORT")
	if port == "" {
		port = "8081"
	}

	logrus.Infof("Control plane starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start control plane:", err)
	}
}
