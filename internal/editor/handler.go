// Package editor exposes the working state of the resume editor over HTTP:
// raw state, profile settings, scoring, the contact header and the preview
// markdown.
package editor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"resumate/internal/appstate"
	"resumate/internal/formatting"
	"resumate/internal/header"
	"resumate/internal/scoring"
	"resumate/internal/shared/server/respond"
)

// Fields that feed the score. A patch touching any of them triggers a rescore.
var scoreInputs = []string{"resumeMd", "jobDescription", "keywords"}

// Handler wires the editor endpoints to application state.
type Handler struct {
	State *appstate.State
}

// NewHandler constructs a Handler.
func NewHandler(st *appstate.State) *Handler {
	return &Handler{State: st}
}

// RegisterRoutes attaches editor routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/state", h.getState)
	rg.PUT("/state", h.putState)
	rg.GET("/settings", h.getSettings)
	rg.PUT("/settings", h.putSettings)
	rg.POST("/score", h.score)
	rg.POST("/header", h.rebuildHeader)
	rg.POST("/preview", h.preview)
}

func (h *Handler) getState(c *gin.Context) {
	respond.OK(c, h.State.Snapshot())
}

func (h *Handler) putState(c *gin.Context) {
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if !h.apply(c, patch) {
		return
	}
	respond.OK(c, h.State.Snapshot())
}

func (h *Handler) getSettings(c *gin.Context) {
	settings, err := h.State.Snapshot().Settings()
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read settings", nil)
		return
	}
	respond.OK(c, settings)
}

func (h *Handler) putSettings(c *gin.Context) {
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	for k := range patch {
		if !appstate.IsSetting(k) {
			respond.Error(c, http.StatusBadRequest, "validation_error", fmt.Sprintf("%s is not a setting", k), nil)
			return
		}
	}
	if !h.apply(c, patch) {
		return
	}
	settings, err := h.State.Snapshot().Settings()
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read settings", nil)
		return
	}
	respond.OK(c, settings)
}

// apply patches state and refreshes the values derived from the patched
// fields. It writes the error response itself and reports success.
func (h *Handler) apply(c *gin.Context, patch map[string]json.RawMessage) bool {
	ctx := c.Request.Context()
	if err := h.State.Patch(ctx, patch); err != nil {
		// Unknown keys and mistyped values both leave state untouched.
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return false
	}

	rescore, rebuild := false, false
	for k := range patch {
		if slices.Contains(scoreInputs, k) {
			rescore = true
		}
		if appstate.IsSetting(k) {
			rebuild = true
		}
	}
	if rescore {
		if _, err := scoring.Rescore(ctx, h.State); err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to score", nil)
			return false
		}
	}
	if rebuild {
		if _, err := header.Rebuild(ctx, h.State); err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build header", nil)
			return false
		}
	}
	return true
}

type scoreRequest struct {
	ResumeMd       *string `json:"resumeMd"`
	JobDescription *string `json:"jobDescription"`
}

func (h *Handler) score(c *gin.Context) {
	var req scoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	ctx := c.Request.Context()
	if req.ResumeMd != nil || req.JobDescription != nil {
		if err := h.State.Update(ctx, func(v *appstate.Values) {
			if req.ResumeMd != nil {
				v.ResumeMd = *req.ResumeMd
			}
			if req.JobDescription != nil {
				v.JobDescription = *req.JobDescription
			}
		}); err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store texts", nil)
			return
		}
	}
	snap, err := scoring.Rescore(ctx, h.State)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to score", nil)
		return
	}
	respond.OK(c, snap)
}

func (h *Handler) rebuildHeader(c *gin.Context) {
	out, err := header.Rebuild(c.Request.Context(), h.State)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to build header", nil)
		return
	}
	respond.OK(c, gin.H{"header": out})
}

type previewRequest struct {
	Markdown *string `json:"markdown"`
}

// preview returns the document as it is rendered: header, then the resume
// body with "left || right" lines turned into tables.
func (h *Handler) preview(c *gin.Context) {
	var req previewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	v := h.State.Snapshot()
	body := v.ResumeMd
	if req.Markdown != nil {
		body = *req.Markdown
	}
	head := header.Render(v)

	md := formatting.Tableify(body)
	if trimmed := strings.TrimRight(head, "\n"); trimmed != "" {
		md = trimmed + "\n\n" + md
	}
	out := gin.H{"markdown": md, "header": head, "cssTheme": v.CSSTheme}
	if v.EnableCustomCSS {
		out["customCSS"] = v.CustomCSS
	}
	respond.OK(c, out)
}
