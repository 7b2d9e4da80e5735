package httpapi

import (
	"net/http"

	"reviewcamp/pkg/config"
	"reviewcamp/pkg/db/pagination"
	"reviewcamp/pkg/errutil"
	"reviewcamp/pkg/health"
	"reviewcamp/pkg/middleware"
	"reviewcamp/services/access"
	"reviewcamp/services/application"
	"reviewcamp/services/billing"
	"reviewcamp/services/campaign"
	"reviewcamp/services/ledger"
	"reviewcamp/services/payment"
	"reviewcamp/services/review"
	"reviewcamp/services/verification"
	"reviewcamp/services/withdrawal"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler, NewRouter),
)

type Handler struct {
	enforcer      *access.Enforcer
	campaigns     *campaign.Service
	applications  *application.Service
	verifications *verification.Service
	reviews       *review.Service
	ledger        *ledger.Service
	withdrawals   *withdrawal.Service
	payments      *payment.Service
	billing       *billing.Service
}

type Params struct {
	fx.In

	Enforcer      *access.Enforcer
	Campaigns     *campaign.Service
	Applications  *application.Service
	Verifications *verification.Service
	Reviews       *review.Service
	Ledger        *ledger.Service
	Withdrawals   *withdrawal.Service
	Payments      *payment.Service
	Billing       *billing.Service
}

func NewHandler(p Params) *Handler {
	return &Handler{
		enforcer:      p.Enforcer,
		campaigns:     p.Campaigns,
		applications:  p.Applications,
		verifications: p.Verifications,
		reviews:       p.Reviews,
		ledger:        p.Ledger,
		withdrawals:   p.Withdrawals,
		payments:      p.Payments,
		billing:       p.Billing,
	}
}

type RouterParams struct {
	fx.In

	Handler *Handler
	Health  health.HealthService `optional:"true"`
	Config  *config.Config       `optional:"true"`
}

func NewRouter(p RouterParams) *gin.Engine {
	if p.Config != nil && p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	if p.Health != nil {
		r.GET("/healthz", p.Health.Liveness)
		r.GET("/readyz", p.Health.Readiness)
	}

	h := p.Handler
	r.POST("/callbacks/payments", h.paymentCallback)

	api := r.Group("/api/v1", middleware.Actor())
	h.campaignRoutes(api.Group("/campaigns"))
	h.applicationRoutes(api.Group("/applications"))
	h.verificationRoutes(api.Group("/verifications"))
	h.reviewRoutes(api.Group("/reviews"))
	h.pointRoutes(api.Group("/points"))
	h.withdrawalRoutes(api.Group("/withdrawals"))
	h.paymentRoutes(api.Group("/payments"))
	api.POST("/billing/quote", h.quote)

	return r
}

// authorize checks the role policy for obj/act and returns the caller.
func (h *Handler) authorize(c *gin.Context, obj, act string) (access.Actor, bool) {
	actor := middleware.ActorFrom(c)
	if err := h.enforcer.Authorize(actor, obj, act); err != nil {
		_ = c.Error(err)
		return actor, false
	}
	return actor, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return false
	}
	return true
}

func bindPage(c *gin.Context) (pagination.Pagination, bool) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return page, false
	}
	return page, true
}

func respond(c *gin.Context, status int, body any, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(status, body)
}

func respondPage[T any](c *gin.Context, items []*T, info pagination.PageInfo, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	if items == nil {
		items = []*T{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": info})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}
