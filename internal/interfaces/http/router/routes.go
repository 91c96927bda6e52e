package router

import (
	"net/http"

	"github.com/escrowhub/backend/internal/interfaces/http/handler"
	"github.com/escrowhub/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers groups the HTTP handlers mounted by Mount
type Handlers struct {
	Agreement *handler.AgreementHandler
	Escrow    *handler.EscrowHandler
	Webhook   *handler.StripeWebhookHandler
	System    *handler.SystemHandler
	// Outbox is mounted only when set, and only for Operators
	Outbox    *handler.OutboxHandler
	Operators []uuid.UUID
}

// AgreementRoutes builds the agreement domain group
func AgreementRoutes(h *handler.AgreementHandler, escrow *handler.EscrowHandler) *DomainGroup {
	g := NewDomainGroup("/agreements")
	g.POST("", h.Create)
	g.GET("", h.List)

	item := g.Group("/:id")
	item.GET("", h.Get)
	item.Handle(http.MethodPatch, "", h.UpdateDetails)
	item.POST("/parties", h.AddParty)
	item.POST("/parties/:partyId/accept", h.AcceptParty)
	item.POST("/parties/:partyId/payout-account", h.ConnectPartyPayoutAccount)
	item.POST("/milestones", h.AddMilestone)
	item.POST("/milestones/:milestoneId/complete", h.CompleteMilestone)
	item.POST("/activate", h.Activate)
	item.POST("/complete", h.Complete)
	item.POST("/cancel", h.Cancel)
	item.POST("/dispute", h.Dispute)
	item.GET("/outstanding", h.Outstanding)
	item.POST("/escrow", escrow.OpenAccount)
	item.POST("/milestones/:milestoneId/payout", escrow.TriggerMilestonePayout)
	return g
}

// EscrowRoutes builds the escrow account group
func EscrowRoutes(h *handler.EscrowHandler) *DomainGroup {
	g := NewDomainGroup("/escrow/:id")
	g.GET("", h.GetAccount)
	g.POST("/deposits", h.Deposit)
	g.POST("/connect", h.ConnectPayoutAccount)

	payouts := g.Group("/payouts")
	payouts.POST("", h.RequestPayout)
	payouts.POST("/:txId/approve", h.ApprovePayout)
	payouts.POST("/:txId/reject", h.RejectPayout)
	payouts.POST("/:txId/resolve", h.ResolveDispute)
	payouts.POST("/:txId/execute", h.ExecutePayout)
	return g
}

// OutboxRoutes builds the dead letter administration group
func OutboxRoutes(h *handler.OutboxHandler, operators []uuid.UUID) *DomainGroup {
	g := NewDomainGroup("/system/outbox").Use(middleware.RequireOperator(operators))
	g.GET("/dead", h.GetDeadLetterEntries)
	g.POST("/dead/retry-all", h.RetryAllDeadEntries)
	g.GET("/stats", h.GetStats)
	g.GET("/:id", h.GetEntry)
	g.POST("/:id/retry", h.RetryDeadEntry)
	return g
}

// Mount registers every route on the engine and returns the API route
// tables it mounted. Health, ping and provider webhooks stay outside the
// principal middleware.
func Mount(engine *gin.Engine, h Handlers, principal ...gin.HandlerFunc) []*DomainGroup {
	engine.GET("/health", h.System.Health)
	engine.GET(APIPrefix+"/ping", h.System.Ping)
	engine.POST(StripeWebhookPath, h.Webhook.HandleStripeWebhook)

	groups := []*DomainGroup{AgreementRoutes(h.Agreement, h.Escrow), EscrowRoutes(h.Escrow)}
	if h.Outbox != nil {
		groups = append(groups, OutboxRoutes(h.Outbox, h.Operators))
	}
	api := engine.Group(APIPrefix, principal...)
	for _, g := range groups {
		g.Mount(api)
	}
	return groups
}
