package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/brickfolio/control-plane/shared/audit"
	"github.com/brickfolio/control-plane/shared/errs"
	"github.com/brickfolio/control-plane/shared/middleware"
	"github.com/brickfolio/control-plane/shared/models"
	"github.com/brickfolio/control-plane/shared/provisioning"
	"github.com/brickfolio/control-plane/shared/sharding"
	"github.com/brickfolio/control-plane/shared/subdomains"
	"github.com/brickfolio/control-plane/shared/tenancy"
	"github.com/brickfolio/control-plane/shared/utils"
)

// SignupRequest reserves a subdomain for a prospective tenant.
type SignupRequest struct {
	Subdomain  string `json:"subdomain" binding:"required"`
	OwnerEmail string `json:"owner_email" binding:"required,email"`
	TTLMinutes int    `json:"ttl_minutes"`
}

// CreateTenantRequest finalizes signup: the name is allocated and the
// tenant enters the provisioning pipeline.
type CreateTenantRequest struct {
	Name       string `json:"name" binding:"required"`
	Subdomain  string `json:"subdomain" binding:"required"`
	OwnerEmail string `json:"owner_email" binding:"required,email"`
}

// ActorRequest carries the operator identity for audited actions.
type ActorRequest struct {
	Actor string `json:"actor" binding:"required"`
	Note  string `json:"note"`
}

// MigrateRequest asks for a shard migration.
type MigrateRequest struct {
	DestShard string `json:"dest_shard" binding:"required"`
	Actor     string `json:"actor" binding:"required"`
	Note      string `json:"note"`
}

// handleSignup reserves the requested subdomain for the signup identity.
func handleSignup(allocator *subdomains.Allocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		ttl := time.Duration(req.TTLMinutes) * time.Minute
		sub, err := allocator.Reserve(c.Request.Context(), req.Subdomain, req.OwnerEmail, ttl)
		if err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		utils.CreatedResponse(c, "Subdomain reserved", sub)
	}
}

// handleCreateTenant allocates the subdomain, creates the tenant in pending
// and kicks off asynchronous provisioning.
func handleCreateTenant(db *gorm.DB, allocator *subdomains.Allocator, router *sharding.Router, engine *provisioning.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		tenantID := uuid.New()
		if _, err := allocator.Allocate(c.Request.Context(), req.Subdomain, req.OwnerEmail, tenantID); err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}

		tenant := models.Tenant{
			ID:                tenantID,
			Name:              req.Name,
			Subdomain:         req.Subdomain,
			OwnerEmail:        req.OwnerEmail,
			Shard:             router.AssignInitial(tenantID),
			ProvisioningState: models.StatePending,
			LastStateChangeAt: time.Now(),
		}
		if err := db.Create(&tenant).Error; err != nil {
			// Undo the allocation so the name is not orphaned.
			if relErr := allocator.Release(c.Request.Context(), req.Subdomain); relErr != nil {
				logrus.WithError(relErr).WithField("subdomain", req.Subdomain).
					Error("Failed to release subdomain after tenant create failure")
			}
			utils.InternalServerErrorResponse(c, "Failed to create tenant")
			return
		}

		// Provisioning runs decoupled from the signup request; the
		// provisioner sweep is the backstop if this worker dies.
		go advanceToReady(engine, tenantID)

		utils.CreatedResponse(c, "Tenant created, provisioning started", tenant)
	}
}

// advanceToReady drives the pipeline until it stops making progress.
func advanceToReady(engine *provisioning.Engine, tenantID uuid.UUID) {
	ctx := context.Background()
	// One advance per step plus the final seal into ready.
	for i := 0; i <= len(models.StepOrder); i++ {
		t, err := engine.Advance(ctx, tenantID)
		if err != nil {
			logrus.WithError(err).WithField("tenant_id", tenantID).
				Warn("Background provisioning halted")
			return
		}
		if t.ProvisioningState == models.StateReady {
			return
		}
	}
}

// handleGetTenant returns a tenant by id (operator view).
func handleGetTenant(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		var tenant models.Tenant
		if err := db.Where("id = ?", id).First(&tenant).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				utils.NotFoundResponse(c, "Tenant not found")
			} else {
				utils.InternalServerErrorResponse(c, "Failed to fetch tenant")
			}
			return
		}
		utils.OKResponse(c, "Tenant retrieved successfully", tenant)
	}
}

// handleResolve resolves addressing info the way the gateway does. Used by
// the routing layer and operator tooling. The slug shortcut addresses any
// tenant directly, so it carries the same service-token gate as the slug
// header on the gateway.
func handleResolve(resolver *tenancy.Resolver, internalSecret string) gin.HandlerFunc {
	secret := []byte(internalSecret)
	return func(c *gin.Context) {
		host := c.Query("host")
		if host == "" {
			host = c.Request.Host
		}
		// An ungated slug is ignored, the same as the gateway's slug header.
		slug := c.Query("slug")
		if slug != "" && !middleware.VerifyInternalToken(secret, c.GetHeader(middleware.InternalTokenHeader)) {
			slug = ""
		}
		t, err := resolver.Resolve(c.Request.Context(), tenancy.RequestInfo{
			Host:       host,
			TenantSlug: slug,
		})
		if err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Tenant resolved", t)
	}
}

// handleAdvance executes the next pending provisioning step, or resumes a
// failed tenant at the step that failed.
func handleAdvance(engine *provisioning.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		tenant, err := engine.Advance(c.Request.Context(), id)
		if err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Provisioning advanced", tenant)
	}
}

// handleProvisioningStatus reports pipeline progress and time-in-state.
func handleProvisioningStatus(engine *provisioning.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		status, err := engine.Status(c.Request.Context(), id)
		if err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Provisioning status", status)
	}
}

// handleCancel aborts provisioning between steps.
func handleCancel(engine *provisioning.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		var req struct {
			Reason string `json:"reason"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.Reason == "" {
			req.Reason = "cancelled by operator"
		}
		if err := engine.Cancel(c.Request.Context(), id, req.Reason); err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Provisioning cancelled", nil)
	}
}

// adminTransitionHandler wraps go-live, suspend and terminate.
func adminTransitionHandler(fn func(ctx context.Context, id uuid.UUID, actor, note string) (*models.Tenant, error), message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		var req ActorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		tenant, err := fn(c.Request.Context(), id, req.Actor, req.Note)
		if err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		// The gateway caches resolver results; make it see the new state.
		tenancy.DropCached(c.Request.Context(), tenant)
		utils.OKResponse(c, message, tenant)
	}
}

// handleMigrate relocates the tenant to another shard.
func handleMigrate(db *gorm.DB, router *sharding.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		var req MigrateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		entry, err := router.Migrate(c.Request.Context(), id, req.DestShard, req.Actor, req.Note)
		if err != nil {
			// A failed relocation still produced an audit entry; surface it.
			utils.CodedErrorResponse(c, err)
			return
		}
		// Drop the gateway's cached copy so requests route to the new shard.
		var tenant models.Tenant
		if getErr := db.WithContext(c.Request.Context()).First(&tenant, "id = ?", id).Error; getErr == nil {
			tenancy.DropCached(c.Request.Context(), &tenant)
		}
		utils.OKResponse(c, "Tenant migrated", entry)
	}
}

// handleAuditLog returns a tenant's audit trail, optionally filtered by kind.
func handleAuditLog(auditLog audit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenantParam(c)
		if !ok {
			return
		}
		kind := models.AuditKind(c.Query("kind"))
		entries, err := auditLog.ForTenant(c.Request.Context(), id, kind)
		if err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Audit log", entries)
	}
}

// handleReserveSubdomain handles the bare reservation endpoint.
func handleReserveSubdomain(allocator *subdomains.Allocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name       string `json:"name" binding:"required"`
			Identity   string `json:"identity" binding:"required"`
			TTLMinutes int    `json:"ttl_minutes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		sub, err := allocator.Reserve(c.Request.Context(), req.Name, req.Identity, time.Duration(req.TTLMinutes)*time.Minute)
		if err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		utils.CreatedResponse(c, "Subdomain reserved", sub)
	}
}

// handleAllocateSubdomain finalizes a name for a tenant.
func handleAllocateSubdomain(allocator *subdomains.Allocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name     string `json:"name" binding:"required"`
			Identity string `json:"identity"`
			TenantID string `json:"tenant_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		tenantID, err := uuid.Parse(req.TenantID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid tenant id")
			return
		}
		sub, err := allocator.Allocate(c.Request.Context(), req.Name, req.Identity, tenantID)
		if err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Subdomain allocated", sub)
	}
}

// handleReleaseSubdomain returns a name to the pool.
func handleReleaseSubdomain(allocator *subdomains.Allocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if err := allocator.Release(c.Request.Context(), req.Name); err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Subdomain released", nil)
	}
}

// handleSubdomainStatus returns the state of one name.
func handleSubdomainStatus(allocator *subdomains.Allocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := allocator.Status(c.Request.Context(), c.Param("name"))
		if err != nil {
			utils.CodedErrorResponse(c, err)
			return
		}
		utils.OKResponse(c, "Subdomain status", sub)
	}
}

// tenantParam parses the :id route parameter.
func tenantParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.CodedErrorResponse(c, errs.Invalid("invalid tenant id"))
		return uuid.Nil, false
	}
	return id, true
}
