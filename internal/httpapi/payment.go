package httpapi

import (
	"io"
	"net/http"
	"strings"

	"reviewcamp/pkg/errutil"
	"reviewcamp/services/billing"
	"reviewcamp/services/payment"

	"github.com/gin-gonic/gin"
)

func (h *Handler) paymentRoutes(g *gin.RouterGroup) {
	g.POST("", h.createPayment)
	g.GET("/:id", h.getPayment)
	g.PUT("/:id/virtual-account", h.attachVirtualAccount)
	g.POST("/:id/confirm", h.confirmPayment)
	g.POST("/:id/cancel", h.cancelPayment)
	g.POST("/:id/refund", h.refundPayment)
}

func (h *Handler) createPayment(c *gin.Context) {
	actor, ok := h.authorize(c, "payment", "create")
	if !ok {
		return
	}
	var in payment.CreateInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.payments.Create(c.Request.Context(), actor, in)
	respond(c, http.StatusCreated, out, err)
}

func (h *Handler) getPayment(c *gin.Context) {
	actor, ok := h.authorize(c, "payment", "read")
	if !ok {
		return
	}
	out, err := h.payments.Get(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) attachVirtualAccount(c *gin.Context) {
	actor, ok := h.authorize(c, "payment", "virtual_account")
	if !ok {
		return
	}
	var va payment.VirtualAccount
	if !bindJSON(c, &va) {
		return
	}
	out, err := h.payments.AttachVirtualAccount(c.Request.Context(), actor, c.Param("id"), va)
	respond(c, http.StatusOK, out, err)
}

type confirmRequest struct {
	ExternalRef string `json:"external_ref"`
}

func (h *Handler) confirmPayment(c *gin.Context) {
	actor, ok := h.authorize(c, "payment", "confirm")
	if !ok {
		return
	}
	var req confirmRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	out, err := h.payments.Confirm(c.Request.Context(), actor, c.Param("id"), payment.SourceAdmin, req.ExternalRef)
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) cancelPayment(c *gin.Context) {
	actor, ok := h.authorize(c, "payment", "cancel")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.payments.Cancel(c.Request.Context(), actor, c.Param("id"), req.Reason)
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) refundPayment(c *gin.Context) {
	actor, ok := h.authorize(c, "payment", "refund")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.payments.Refund(c.Request.Context(), actor, c.Param("id"), req.Reason)
	respond(c, http.StatusOK, out, err)
}

// paymentCallback takes the compact JWS the provider posts as the raw body.
func (h *Handler) paymentCallback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		_ = c.Error(errutil.BadRequest("unreadable callback", err))
		return
	}
	out, err := h.payments.ConfirmCallback(c.Request.Context(), strings.TrimSpace(string(body)))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_id": out.ID, "status": out.Status})
}

func (h *Handler) quote(c *gin.Context) {
	if _, ok := h.authorize(c, "billing", "quote"); !ok {
		return
	}
	var in billing.Input
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.billing.Compare(in)
	respond(c, http.StatusOK, out, err)
}
