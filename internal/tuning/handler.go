package tuning

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumate/internal/llm"
	"resumate/internal/shared/server/respond"
)

// Handler exposes the tuner over HTTP. Progress is streamed as SSE.
type Handler struct {
	Tuner *Tuner
}

// NewHandler constructs a Handler.
func NewHandler(t *Tuner) *Handler {
	return &Handler{Tuner: t}
}

// RegisterRoutes attaches tuning routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/tune", h.tune)
	rg.GET("/tune", h.status)
	rg.DELETE("/tune", h.cancel)
}

func (h *Handler) tune(c *gin.Context) {
	var req Request
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	started := false
	onUpdate := func(content string) {
		if !started {
			started = true
			c.Header("Cache-Control", "no-cache")
			c.Header("X-Accel-Buffering", "no")
		}
		c.SSEvent("partial", gin.H{"content": content})
		c.Writer.Flush()
	}

	res, err := h.Tuner.Tune(c.Request.Context(), req, onUpdate)
	if err != nil && !started {
		switch {
		case errors.Is(err, ErrBusy):
			respond.Error(c, http.StatusConflict, "tuning_busy", err.Error(), nil)
		case errors.Is(err, llm.ErrMissingCredentials):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.Is(err, ErrUpstreamStatus):
			respond.Error(c, http.StatusBadGateway, "upstream_error", err.Error(), nil)
		case errors.Is(err, ErrEmptyOutput):
			respond.Error(c, http.StatusUnprocessableEntity, "empty_output", err.Error(), nil)
		case errors.Is(err, ErrCanceled):
			respond.Error(c, http.StatusRequestTimeout, "canceled", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "tuning failed", nil)
		}
		return
	}
	if err != nil {
		c.SSEvent("error", gin.H{"message": err.Error()})
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", res)
	c.Writer.Flush()
}

func (h *Handler) status(c *gin.Context) {
	respond.OK(c, gin.H{
		"running": h.Tuner.Running(),
		"phase":   h.Tuner.Phase().String(),
	})
}

func (h *Handler) cancel(c *gin.Context) {
	respond.OK(c, gin.H{"canceled": h.Tuner.Cancel()})
}
