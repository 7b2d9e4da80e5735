package httpapi

import (
	"io"
	"mime/multipart"
	"net/http"

	"reviewcamp/pkg/errutil"
	"reviewcamp/services/access"
	"reviewcamp/services/application"
	"reviewcamp/services/evidence"
	"reviewcamp/services/review"
	"reviewcamp/services/verification"

	"github.com/gin-gonic/gin"
)

func (h *Handler) applicationRoutes(g *gin.RouterGroup) {
	g.POST("", h.apply)
	g.GET("", h.myApplications)
	g.GET("/:id", h.getApplication)
	g.POST("/:id/select", h.selectApplication)
	g.POST("/:id/reject", h.rejectApplication)
	g.POST("/:id/cancel", h.cancelApplication)
	g.POST("/:id/verification", h.submitVerification)
	g.POST("/:id/review", h.submitReview)
}

func (h *Handler) apply(c *gin.Context) {
	actor, ok := h.authorize(c, "application", "create")
	if !ok {
		return
	}
	var in application.ApplyInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := h.applications.Apply(c.Request.Context(), actor, in)
	respond(c, http.StatusCreated, out, err)
}

// myApplications lists the caller's applications. Operators may pass
// reviewer_id.
func (h *Handler) myApplications(c *gin.Context) {
	actor, ok := h.authorize(c, "application", "read")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	reviewerID := actor.ID
	if actor.IsAdmin() && c.Query("reviewer_id") != "" {
		reviewerID = c.Query("reviewer_id")
	}
	items, info, err := h.applications.ListByReviewer(c.Request.Context(), reviewerID, page)
	respondPage(c, items, info, err)
}

func (h *Handler) getApplication(c *gin.Context) {
	actor, ok := h.authorize(c, "application", "read")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	app, err := h.applications.Get(ctx, c.Param("id"))
	if err == nil {
		err = h.applications.Authorize(ctx, actor, app)
	}
	respond(c, http.StatusOK, app, err)
}

func (h *Handler) selectApplication(c *gin.Context) {
	actor, ok := h.authorize(c, "application", "select")
	if !ok {
		return
	}
	out, err := h.applications.Select(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) rejectApplication(c *gin.Context) {
	actor, ok := h.authorize(c, "application", "reject")
	if !ok {
		return
	}
	var req reasonRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.applications.Reject(c.Request.Context(), actor, c.Param("id"), req.Reason)
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) cancelApplication(c *gin.Context) {
	actor, ok := h.authorize(c, "application", "cancel")
	if !ok {
		return
	}
	out, err := h.applications.Cancel(c.Request.Context(), actor, c.Param("id"))
	respond(c, http.StatusOK, out, err)
}

func (h *Handler) submitVerification(c *gin.Context) {
	actor, ok := h.authorize(c, "verification", "submit")
	if !ok {
		return
	}
	form, files, ok := readEvidence(c)
	if !ok {
		return
	}
	out, err := h.verifications.Submit(c.Request.Context(), actor, c.Param("id"), verification.SubmitInput{
		OrderNumber: first(form.Value["order_number"]),
		Files:       files,
		URLs:        form.Value["urls"],
	})
	respond(c, http.StatusCreated, out, err)
}

func (h *Handler) submitReview(c *gin.Context) {
	actor, ok := h.authorize(c, "review", "submit")
	if !ok {
		return
	}
	form, files, ok := readEvidence(c)
	if !ok {
		return
	}
	out, err := h.reviews.Submit(c.Request.Context(), actor, c.Param("id"), review.SubmitInput{
		ReviewURL: first(form.Value["review_url"]),
		Files:     files,
		URLs:      form.Value["urls"],
	})
	respond(c, http.StatusCreated, out, err)
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// readEvidence parses a multipart body with text fields and "files" parts.
func readEvidence(c *gin.Context) (*multipart.Form, []evidence.File, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		_ = c.Error(errutil.BadRequest("expected a multipart form", err))
		return nil, nil, false
	}

	files := make([]evidence.File, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := readPart(fh)
		if err != nil {
			_ = c.Error(err)
			return form, nil, false
		}
		files = append(files, f)
	}
	return form, files, true
}

func readPart(fh *multipart.FileHeader) (evidence.File, error) {
	if fh.Size > evidence.MaxFileSize {
		return evidence.File{}, errutil.Validation("evidence file too large",
			errutil.WithDetails(errutil.Detail{Field: "files", Message: fh.Filename}))
	}
	r, err := fh.Open()
	if err != nil {
		return evidence.File{}, errutil.BadRequest("unreadable upload", err)
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, evidence.MaxFileSize+1))
	if err != nil {
		return evidence.File{}, errutil.BadRequest("unreadable upload", err)
	}
	return evidence.File{Name: fh.Filename, Data: data}, nil
}

// ownsSubmission lets operators and the submitting reviewer through.
func ownsSubmission(c *gin.Context, actor access.Actor, reviewerID, resource string) bool {
	if err := actor.RequireOwner(reviewerID, resource); err != nil {
		_ = c.Error(err)
		return false
	}
	return true
}
