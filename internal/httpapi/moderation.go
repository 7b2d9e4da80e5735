package httpapi

import (
	"net/http"

	"reviewcamp/services/verification"

	"github.com/gin-gonic/gin"
)

func (h *Handler) verificationRoutes(g *gin.RouterGroup) {
	g.GET("", h.listVerifications)
	g.GET("/:id", h.getVerification)
	g.POST("/:id/approve", h.approveVerification)
	g.POST("/:id/reject", h.rejectVerification)
}

func (h *Handler) reviewRoutes(g *gin.RouterGroup) {
	g.GET("/:id", h.getReview)
	g.POST("/:id/approve", h.approveReview)
	g.POST("/:id/request-revision", h.requestRevision)
	g.POST("/:id/reject", h.rejectReview)
}

func (h *Handler) listVerifications(c *gin.Context) {
	if _, ok := h.authorize(c, "verification", "list"); !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	status := verification.Status(c.DefaultQuery("status", string(verification.StatusPending)))
	items, info, err := h.verifications.ListByStatus(c.Request.Context(), status, page)
	respondPage(c, items, info, err)
}

func (h *Handler) getVerification(c *gin.Context) {
	actor, ok := h.authorize(c, "verification", "read")
	if !ok {
		return
	}
	v, err := h.verifications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ownsSubmission(c, actor, v.ReviewerID, "verification") {
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) approveVerification(c *gin.Context) {
	actor, ok := h.authorize(c, "verification", "approve")
	if !ok {
		return
	}
	out, err := h.verifications.Approve(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) rejectVerification(c *gin.Context) {
	actor, ok := h.authorize(c, "verification", "reject")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.verifications.Reject(c.Request.Context(), actor, c.Param("id"), req.Reason)
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) getReview(c *gin.Context) {
	actor, ok := h.authorize(c, "review", "read")
	if !ok {
		return
	}
	r, err := h.reviews.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ownsSubmission(c, actor, r.ReviewerID, "review") {
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) approveReview(c *gin.Context) {
	actor, ok := h.authorize(c, "review", "approve")
	if !ok {
		return
	}
	out, err := h.reviews.Approve(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) requestRevision(c *gin.Context) {
	actor, ok := h.authorize(c, "review", "request_revision")
	if !ok {
		return
	}
	var req commentRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.reviews.RequestRevision(c.Request.Context(), actor, c.Param("id"), req.Comment)
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) rejectReview(c *gin.Context) {
	actor, ok := h.authorize(c, "review", "reject")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.reviews.Reject(c.Request.Context(), actor, c.Param("id"), req.Reason)
	respond(c, http.StatusOK, out, err)
}
