package main

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/brickfolio/control-plane/shared/audit"
	"github.com/brickfolio/control-plane/shared/config"
	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/events"
	"github.com/brickfolio/control-plane/shared/identity"
	"github.com/brickfolio/control-plane/shared/models"
	"github.com/brickfolio/control-plane/shared/provisioning"
	"github.com/brickfolio/control-plane/shared/sitedata"
	"github.com/brickfolio/control-plane/shared/subdomains"
	"github.com/brickfolio/control-plane/shared/utils"
)

// stuckThreshold is how long a tenant may sit in one pipeline state before
// the stats endpoint reports it as stuck.
const stuckThreshold = 30 * time.Minute

// Provisioner sweeps unfinished tenants forward and expires stale
// subdomain reservations.
type Provisioner struct {
	store     provisioning.TenantStore
	engine    *provisioning.Engine
	allocator *subdomains.Allocator
	interval  time.Duration

	sweeps   atomic.Int64
	advanced atomic.Int64
	failures atomic.Int64
}

// Run loops forever, one sweep per interval.
func (p *Provisioner) Run(ctx context.Context) {
	log.Println("Starting provisioner sweep loop...")

	for {
		p.sweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

// sweep expires stale reservations and advances every tenant that is mid
// pipeline. Failed tenants are left for an operator to resume.
func (p *Provisioner) sweep(ctx context.Context) {
	p.sweeps.Add(1)

	if released, err := p.allocator.ExpireSweep(ctx); err != nil {
		logrus.WithError(err).Error("Reservation expiry sweep failed")
	} else if released > 0 {
		logrus.WithField("released", released).Info("Expired stale subdomain reservations")
	}

	tenants, err := p.store.InStates(ctx, unfinishedStates())
	if err != nil {
		logrus.WithError(err).Error("Failed to list unfinished tenants")
		return
	}
	if len(tenants) == 0 {
		return
	}

	logrus.WithField("count", len(tenants)).Info("Advancing unfinished tenants")
	for _, t := range tenants {
		if _, err := p.engine.Advance(ctx, t.ID); err != nil {
			// Conflicts just mean another worker holds the tenant.
			if errs.IsConflict(err) {
				continue
			}
			p.failures.Add(1)
			logrus.WithError(err).WithFields(logrus.Fields{
				"tenant_id": t.ID,
				"state":     t.ProvisioningState,
			}).Warn("Advance failed during sweep")
			continue
		}
		p.advanced.Add(1)
	}
}

// unfinishedStates is every pipeline state short of ready.
func unfinishedStates() []models.ProvisioningState {
	var states []models.ProvisioningState
	for _, s := range models.PipelineStates {
		if s == models.StateReady {
			continue
		}
		states = append(states, s)
	}
	return states
}

// statsHandler reports sweep counters, per-state tenant counts and tenants
// stuck in one state past the threshold.
func (p *Provisioner) statsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Failed tenants are not swept, but they belong in the stats; an
		// operator reading /stats is usually hunting exactly those.
		states := make([]models.ProvisioningState, 0, len(models.PipelineStates)+1)
		states = append(states, models.PipelineStates...)
		states = append(states, models.StateFailed)
		tenants, err := p.store.InStates(c.Request.Context(), states)
		if err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}

		now := time.Now()
		byState := make(map[models.ProvisioningState]int)
		var stuck []gin.H
		for _, t := range tenants {
			byState[t.ProvisioningState]++
			if t.ProvisioningState != models.StateReady && t.TimeInState(now) > stuckThreshold {
				stuck = append(stuck, gin.H{
					"tenant_id":     t.ID,
					"state":         t.ProvisioningState,
					"time_in_state": t.TimeInState(now).String(),
				})
			}
		}

		utils.OKResponse(c, "Provisioner stats", gin.H{
			"sweeps":           p.sweeps.Load(),
			"tenants_advanced": p.advanced.Load(),
			"advance_failures": p.failures.Load(),
			"tenants_by_state": byState,
			"stuck_tenants":    stuck,
		})
	}
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	if err := utils.InitRedis(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer utils.CloseRedis()

	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	directory, err := identity.NewCognitoDirectory(cfg.AWSRegion, cfg.UserPoolID)
	if err != nil {
		log.Fatal("Failed to initialize identity directory:", err)
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.KafkaBroker != "" {
		kafkaPub := events.NewKafkaPublisher(cfg.KafkaBroker)
		defer kafkaPub.Close()
		publisher = kafkaPub
	}

	store := provisioning.NewGormTenantStore(db)
	allocator := subdomains.NewAllocator(subdomains.NewGormStore(db), cfg.ReservationTTL)
	engine := provisioning.NewEngine(
		store,
		provisioning.DefaultSteps(sitedata.NewRepo(db), directory),
		utils.NewRedisLocker(utils.RedisClient),
		audit.NewGormStore(db),
		allocator,
		publisher,
	)

	p := &Provisioner{
		store:     store,
		engine:    engine,
		allocator: allocator,
		interval:  cfg.SweepInterval,
	}

	go p.Run(context.Background())

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Provisioner is healthy", nil)
	})
	router.GET("/stats", p.statsHandler())

	port := os.Getenv("PROVISIONER_PORT")
	if port == "" {
		port = "8082"
	}

	logrus.Infof("Provisioner starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start provisioner:", err)
	}
}
