package projects

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"resumate/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches project routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/projects", h.list)
	rg.POST("/projects/save", h.save)
	rg.POST("/projects/clear", h.clear)
	rg.POST("/projects/:id/load", h.load)
}

func (h *Handler) save(c *gin.Context) {
	result, err := h.Svc.Save(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, ErrNoName):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), gin.H{"saveState": int(result)})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save project", nil)
		}
		return
	}
	status := http.StatusOK
	if result == SaveCreated {
		status = http.StatusCreated
	}
	v := h.Svc.State.Snapshot()
	c.Set("projectId", v.ProjectID)
	respond.JSON(c, status, gin.H{
		"saveState": int(result),
		"projectId": v.ProjectID,
		"saveCount": v.SaveCount,
	})
}

func (h *Handler) list(c *gin.Context) {
	refs, err := h.Svc.ListNames(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list projects", nil)
		return
	}
	respond.OK(c, gin.H{"projects": refs})
}

func (h *Handler) load(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid project id", nil)
		return
	}
	c.Set("projectId", id)
	p, err := h.Svc.Load(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "project not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load project", nil)
		}
		return
	}
	respond.OK(c, p)
}

func (h *Handler) clear(c *gin.Context) {
	if err := h.Svc.Clear(c.Request.Context()); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to clear project", nil)
		return
	}
	respond.NoContent(c)
}
