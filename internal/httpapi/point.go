package httpapi

import (
	"net/http"

	"reviewcamp/services/access"
	"reviewcamp/services/withdrawal"

	"github.com/gin-gonic/gin"
)

func (h *Handler) pointRoutes(g *gin.RouterGroup) {
	g.GET("/balance", h.balance)
	g.GET("/transactions", h.transactions)
	g.GET("/audit", h.audit)
	g.POST("/transactions/:id/cancel", h.cancelTransaction)
}

func (h *Handler) withdrawalRoutes(g *gin.RouterGroup) {
	g.POST("", h.createWithdrawal)
	g.GET("", h.listWithdrawals)
	g.GET("/reservation", h.reservation)
	g.GET("/:id", h.getWithdrawal)
	g.GET("/:id/account-number", h.withdrawalAccount)
	g.POST("/:id/approve", h.approveWithdrawal)
	g.POST("/:id/reject", h.rejectWithdrawal)
	g.POST("/:id/complete", h.completeWithdrawal)
}

// reviewerScope is the caller for reviewers and the reviewer_id query
// parameter for operators. Balance and history reject an empty scope, the
// withdrawal list treats it as every reviewer.
func reviewerScope(c *gin.Context, actor access.Actor) string {
	if actor.IsAdmin() {
		return c.Query("reviewer_id")
	}
	return actor.ID
}

func (h *Handler) balance(c *gin.Context) {
	actor, ok := h.authorize(c, "point", "read")
	if !ok {
		return
	}
	out, err := h.ledger.GetBalance(c.Request.Context(), reviewerScope(c, actor))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) transactions(c *gin.Context) {
	actor, ok := h.authorize(c, "point", "read")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	items, info, err := h.ledger.ListTransactions(c.Request.Context(), reviewerScope(c, actor), page)
	respondPage(c, items, info, err)
}

func (h *Handler) audit(c *gin.Context) {
	if _, ok := h.authorize(c, "point", "audit"); !ok {
		return
	}
	out, err := h.ledger.Audit(c.Request.Context(), c.Query("reviewer_id"))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) cancelTransaction(c *gin.Context) {
	if _, ok := h.authorize(c, "point", "cancel"); !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.ledger.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) createWithdrawal(c *gin.Context) {
	actor, ok := h.authorize(c, "withdrawal", "create")
	if !ok {
		return
	}
	var in withdrawal.CreateInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.withdrawals.Create(c.Request.Context(), actor, in)
	respond(c, http.StatusCreated, out, err)
}

func (h *Handler) listWithdrawals(c *gin.Context) {
	actor, ok := h.authorize(c, "withdrawal", "read")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	items, info, err := h.withdrawals.List(c.Request.Context(), reviewerScope(c, actor), withdrawal.Status(c.Query("status")), page)
	respondPage(c, items, info, err)
}

func (h *Handler) getWithdrawal(c *gin.Context) {
	actor, ok := h.authorize(c, "withdrawal", "read")
	if !ok {
		return
	}
	out, err := h.withdrawals.Get(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) withdrawalAccount(c *gin.Context) {
	actor, ok := h.authorize(c, "withdrawal", "reveal")
	if !ok {
		return
	}
	number, err := h.withdrawals.AccountNumber(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, gin.H{"account_number": number}, err)
}

func (h *Handler) reservation(c *gin.Context) {
	if _, ok := h.authorize(c, "withdrawal", "audit"); !ok {
		return
	}
	out, err := h.withdrawals.CheckReservation(c.Request.Context(), c.Query("reviewer_id"))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) approveWithdrawal(c *gin.Context) {
	actor, ok := h.authorize(c, "withdrawal", "approve")
	if !ok {
		return
	}
	out, err := h.withdrawals.Approve(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) rejectWithdrawal(c *gin.Context) {
	actor, ok := h.authorize(c, "withdrawal", "reject")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.withdrawals.Reject(c.Request.Context(), actor, c.Param("id"), req.Reason)
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) completeWithdrawal(c *gin.Context) {
	actor, ok := h.authorize(c, "withdrawal", "complete")
	if !ok {
		return
	}
	out, err := h.withdrawals.Complete(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, out, err)
}
