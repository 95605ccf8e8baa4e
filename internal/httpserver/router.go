package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"renobroker/internal/handler"
	"renobroker/pkg/rbac"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *handler.AuthHandler,
	projectHandler *handler.ProjectHandler,
	bidHandler *handler.BidHandler,
	matchHandler *handler.MatchHandler,
	escrowHandler *handler.EscrowHandler,
	feeHandler *handler.FeeHandler,
	settingsHandler *handler.SettingsHandler,
	notificationHandler *handler.NotificationHandler,
	jwtSecret string,
	db *pgxpool.Pool,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), MetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/auth/register", authHandler.Register)
	r.POST("/auth/login", authHandler.Login)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		// Projects, homeowner side
		auth.POST("/projects", RequirePermission(rbac.PermissionCreateProject), projectHandler.CreateDraft)
		auth.PUT("/projects/:id", RequirePermission(rbac.PermissionCreateProject), projectHandler.UpdateDraft)
		auth.DELETE("/projects/:id", RequirePermission(rbac.PermissionCreateProject), projectHandler.DeleteDraft)
		auth.POST("/projects/:id/submit", RequirePermission(rbac.PermissionSubmitProject), projectHandler.Submit)
		auth.POST("/projects/:id/close-bidding", RequirePermission(rbac.PermissionSubmitProject), projectHandler.CloseBidding)
		auth.POST("/projects/:id/reopen-bidding", RequirePermission(rbac.PermissionSubmitProject), projectHandler.ReopenBidding)
		auth.GET("/projects", projectHandler.ListByStatus)
		auth.GET("/projects/:id", projectHandler.Get)
		auth.GET("/my/projects", projectHandler.ListMine)

		// Bids, contractor side
		auth.POST("/projects/:id/bids", RequirePermission(rbac.PermissionCreateBid), bidHandler.Create)
		auth.GET("/projects/:id/bids", bidHandler.List)
		auth.GET("/projects/:id/bids/:bidID", bidHandler.Get)
		auth.POST("/projects/:id/bids/:bidID/withdraw", RequirePermission(rbac.PermissionCreateBid), bidHandler.Withdraw)

		// Matching and lifecycle, homeowner side
		auth.POST("/projects/:id/select-bid", RequirePermission(rbac.PermissionSelectBid), matchHandler.SelectBid)
		auth.POST("/projects/:id/start", RequirePermission(rbac.PermissionSelectBid), matchHandler.Start)
		auth.POST("/projects/:id/complete", RequirePermission(rbac.PermissionSelectBid), matchHandler.Complete)
		auth.POST("/projects/:id/cancel", RequirePermission(rbac.PermissionSelectBid), matchHandler.Cancel)

		// Escrow and milestones, participant side
		auth.GET("/projects/:id/escrow", escrowHandler.GetByProject)
		auth.GET("/escrows/:id", escrowHandler.Get)
		auth.POST("/escrows/:id/dispute", escrowHandler.Dispute)
		auth.GET("/escrows/:id/milestones", escrowHandler.ListMilestones)
		auth.POST("/milestones/:id/request", RequirePermission(rbac.PermissionRequestMilestone), escrowHandler.RequestMilestone)
		auth.POST("/milestones/:id/confirm", RequirePermission(rbac.PermissionReviewMilestone), escrowHandler.ConfirmMilestone)
		auth.POST("/milestones/:id/dispute", RequirePermission(rbac.PermissionReviewMilestone), escrowHandler.DisputeMilestone)

		// Own views
		auth.GET("/my/fees", feeHandler.ListMine)
		auth.GET("/my/notifications", notificationHandler.ListMine)
	}

	// Admin
	admin := r.Group("/admin")
	admin.Use(AuthMiddleware(jwtSecret))
	{
		admin.GET("/projects", RequirePermission(rbac.PermissionReviewProject), projectHandler.ListByStatus)
		admin.POST("/projects/:id/approve", RequirePermission(rbac.PermissionReviewProject), projectHandler.Approve)
		admin.POST("/projects/:id/reject", RequirePermission(rbac.PermissionReviewProject), projectHandler.Reject)

		admin.POST("/projects/:id/bids/:bidID/approve", RequirePermission(rbac.PermissionReviewBid), bidHandler.Approve)
		admin.POST("/projects/:id/bids/:bidID/reject", RequirePermission(rbac.PermissionReviewBid), bidHandler.Reject)

		admin.GET("/matches", RequirePermission(rbac.PermissionManageMatch), matchHandler.List)
		admin.GET("/matches/:id", RequirePermission(rbac.PermissionManageMatch), matchHandler.Get)
		admin.POST("/matches/:id/approve", RequirePermission(rbac.PermissionManageMatch), matchHandler.Approve)
		admin.POST("/matches/:id/reject", RequirePermission(rbac.PermissionManageMatch), matchHandler.Reject)
		admin.POST("/matches/:id/resume", RequirePermission(rbac.PermissionManageMatch), matchHandler.Resume)
		admin.POST("/matches/:id/cancel", RequirePermission(rbac.PermissionManageMatch), matchHandler.Cancel)

		admin.POST("/escrows/:id/confirm-deposit", RequirePermission(rbac.PermissionManageEscrow), escrowHandler.ConfirmDeposit)
		admin.POST("/escrows/:id/release", RequirePermission(rbac.PermissionManageEscrow), escrowHandler.Release)
		admin.POST("/escrows/:id/partial-release", RequirePermission(rbac.PermissionManageEscrow), escrowHandler.PartialRelease)
		admin.POST("/escrows/:id/refund", RequirePermission(rbac.PermissionManageEscrow), escrowHandler.Refund)
		admin.POST("/escrows/:id/resolve-dispute", RequirePermission(rbac.PermissionManageEscrow), escrowHandler.ResolveDispute)

		admin.GET("/projects/:id/fees", RequirePermission(rbac.PermissionManageFee), feeHandler.ListByProject)
		admin.POST("/fees/:id/paid", RequirePermission(rbac.PermissionManageFee), feeHandler.MarkPaid)
		admin.POST("/fees/:id/cancel", RequirePermission(rbac.PermissionManageFee), feeHandler.Cancel)

		admin.GET("/policy", RequirePermission(rbac.PermissionManageMatch), settingsHandler.GetPolicy)
		admin.PUT("/policy", RequirePermission(rbac.PermissionManageMatch), settingsHandler.UpdatePolicy)
		admin.DELETE("/policy", RequirePermission(rbac.PermissionManageMatch), settingsHandler.ResetPolicy)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
