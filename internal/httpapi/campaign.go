package httpapi

import (
	"context"
	"net/http"

	"reviewcamp/services/access"
	"reviewcamp/services/application"
	"reviewcamp/services/campaign"
	"reviewcamp/services/review"

	"github.com/gin-gonic/gin"
)

func (h *Handler) campaignRoutes(g *gin.RouterGroup) {
	g.POST("", h.createCampaign)
	g.GET("", h.listCampaigns)
	g.GET("/:id", h.getCampaign)
	g.PUT("/:id", h.updateCampaign)
	g.POST("/:id/submit", h.campaignAction("submit", h.campaigns.Submit))
	g.POST("/:id/approve", h.campaignAction("approve", h.campaigns.Approve))
	g.POST("/:id/reject", h.campaignReasonAction("reject", h.campaigns.Reject))
	g.POST("/:id/close", h.campaignAction("close", h.campaigns.Close))
	g.POST("/:id/start-progress", h.campaignAction("start_progress", h.campaigns.StartProgress))
	g.POST("/:id/start-reviewing", h.campaignAction("start_reviewing", h.campaigns.StartReviewing))
	g.POST("/:id/complete", h.campaignAction("complete", h.campaigns.Complete))
	g.POST("/:id/cancel", h.campaignReasonAction("cancel", h.campaigns.Cancel))

	g.GET("/:id/quote", h.campaignQuote)
	g.GET("/:id/payments", h.campaignPayments)
	g.GET("/:id/applications", h.campaignApplications)
	g.POST("/:id/applications/select", h.bulkSelect)
	g.POST("/:id/applications/auto-select", h.autoSelect)
	g.GET("/:id/reviews", h.campaignReviews)
}

func (h *Handler) createCampaign(c *gin.Context) {
	actor, ok := h.authorize(c, "campaign", "create")
	if !ok {
		return
	}
	var in campaign.Input
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.campaigns.Create(c.Request.Context(), actor, in)
	respond(c, http.StatusCreated, out, err)
}

func (h *Handler) updateCampaign(c *gin.Context) {
	actor, ok := h.authorize(c, "campaign", "update")
	if !ok {
		return
	}
	var in campaign.Input
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.campaigns.Update(c.Request.Context(), actor, c.Param("id"), in)
	respond(c, http.StatusOK, out, err)
}

// listCampaigns scopes clients to their own campaigns and reviewers to the
// ones recruiting.
func (h *Handler) listCampaigns(c *gin.Context) {
	actor, ok := h.authorize(c, "campaign", "read")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	f := campaign.ListFilter{
		ClientID: c.Query("client_id"),
		Status:   campaign.Status(c.Query("status")),
	}
	switch actor.Role {
	case access.RoleClient:
		f.ClientID = actor.ID
	case access.RoleReviewer:
		f.ClientID = ""
		f.Status = campaign.StatusRecruiting
	}
	items, info, err := h.campaigns.List(c.Request.Context(), f, page)
	respondPage(c, items, info, err)
}

func (h *Handler) getCampaign(c *gin.Context) {
	actor, ok := h.authorize(c, "campaign", "read")
	if !ok {
		return
	}
	out, err := h.campaigns.Get(c.Request.Context(), c.Param("id"))
	if err == nil && actor.Role == access.RoleClient {
		err = actor.RequireOwner(out.ClientID, "campaign")
	}
	respond(c, http.StatusOK, out, err)
}

type campaignFunc func(ctx context.Context, actor access.Actor, id string) (*campaign.Campaign, error)

func (h *Handler) campaignAction(act string, fn campaignFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := h.authorize(c, "campaign", act)
		if !ok {
			return
		}
		out, err := fn(c.Request.Context(), actor, c.Param("id"))
		respond(c, http.StatusOK, out, err)
	}
}

type campaignReasonFunc func(ctx context.Context, actor access.Actor, id, reason string) (*campaign.Campaign, error)

func (h *Handler) campaignReasonAction(act string, fn campaignReasonFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := h.authorize(c, "campaign", act)
		if !ok {
			return
		}
		var req reasonRequest
		if !bindJSON(c, &req) {
			return
		}
		out, err := fn(c.Request.Context(), actor, c.Param("id"), req.Reason)
		respond(c, http.StatusOK, out, err)
	}
}

func (h *Handler) campaignQuote(c *gin.Context) {
	actor, ok := h.authorize(c, "billing", "quote")
	if !ok {
		return
	}
	out, err := h.payments.Quote(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) campaignPayments(c *gin.Context) {
	actor, ok := h.authorize(c, "payment", "read")
	if !ok {
		return
	}
	out, err := h.payments.ListByCampaign(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, gin.H{"data": out}, err)
}

// ownCampaign loads the campaign and requires the caller to own it.
func (h *Handler) ownCampaign(c *gin.Context, actor access.Actor) (*campaign.Campaign, bool) {
	cp, err := h.campaigns.Get(c.Request.Context(), c.Param("id"))
	if err == nil {
		err = actor.RequireOwner(cp.ClientID, "campaign")
	}
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	return cp, true
}

func (h *Handler) campaignApplications(c *gin.Context) {
	actor, ok := h.authorize(c, "application", "read")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	cp, ok := h.ownCampaign(c, actor)
	if !ok {
		return
	}
	items, info, err := h.applications.ListByCampaign(c.Request.Context(), cp.ID, application.Status(c.Query("status")), page)
	respondPage(c, items, info, err)
}

type selectRequest struct {
	ApplicationIDs []string `json:"application_ids"`
}

func (h *Handler) bulkSelect(c *gin.Context) {
	actor, ok := h.authorize(c, "application", "select")
	if !ok {
		return
	}
	var req selectRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.applications.BulkSelect(c.Request.Context(), actor, c.Param("id"), req.ApplicationIDs)
	respond(c, http.StatusOK, gin.H{"data": out}, err)
}

func (h *Handler) autoSelect(c *gin.Context) {
	actor, ok := h.authorize(c, "application", "select")
	if !ok {
		return
	}
	out, err := h.applications.AutoSelect(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, gin.H{"data": out}, err)
}

func (h *Handler) campaignReviews(c *gin.Context) {
	actor, ok := h.authorize(c, "review", "read")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	cp, ok := h.ownCampaign(c, actor)
	if !ok {
		return
	}
	items, info, err := h.reviews.ListByCampaign(c.Request.Context(), cp.ID, review.Status(c.Query("status")), page)
	respondPage(c, items, info, err)
}
