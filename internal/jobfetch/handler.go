package jobfetch

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumate/internal/appstate"
	"resumate/internal/scoring"
	"resumate/internal/shared/server/respond"
)

// Handler fetches a posting into the active project.
type Handler struct {
	Fetcher *Fetcher
	State   *appstate.State
}

func NewHandler(f *Fetcher, st *appstate.State) *Handler {
	return &Handler{Fetcher: f, State: st}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs/fetch", h.fetch)
}

type fetchRequest struct {
	URL string `json:"url"`
}

func (h *Handler) fetch(c *gin.Context) {
	var req fetchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	// Without a body the url already stored for the project is fetched.
	target := req.URL
	if target == "" {
		target = h.State.Snapshot().JobURL
	}

	ctx := c.Request.Context()
	md, err := h.Fetcher.Fetch(ctx, target)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidURL):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.Is(err, ErrUpstreamStatus), errors.Is(err, ErrEmptyContent):
			respond.Error(c, http.StatusBadGateway, "fetch_failed", err.Error(), nil)
		default:
			respond.Error(c, http.StatusBadGateway, "fetch_failed", "failed to fetch job posting", nil)
		}
		return
	}

	if err := h.State.Update(ctx, func(v *appstate.Values) {
		v.JobURL = target
		v.JobDescription = md
	}); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store job description", nil)
		return
	}
	snap, err := scoring.Rescore(ctx, h.State)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to score", nil)
		return
	}
	respond.OK(c, gin.H{"jobUrl": target, "jobDescription": md, "score": snap})
}
