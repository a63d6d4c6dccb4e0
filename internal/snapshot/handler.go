package snapshot

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumate/internal/shared/server/respond"
	"resumate/internal/shared/storage/object"
)

// maxImportBytes caps uploaded snapshot documents.
const maxImportBytes = 32 << 20

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches snapshot routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/snapshot/export", h.export)
	rg.POST("/snapshot/import", h.importSnapshot)
	rg.POST("/snapshot/reset", h.reset)
	rg.POST("/snapshot/backup", h.backup)
	rg.GET("/snapshot/backups", h.listBackups)
	rg.POST("/snapshot/restore", h.restore)
}

func (h *Handler) export(c *gin.Context) {
	data, err := h.Svc.ExportJSON(c.Request.Context(), true)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to export", nil)
		return
	}
	name := fmt.Sprintf("resumate-%s.json", h.Svc.now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/json", data)
}

func (h *Handler) importSnapshot(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes+1))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "failed to read body", nil)
		return
	}
	if len(data) > maxImportBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "too_large", "snapshot too large", nil)
		return
	}
	report, err := h.Svc.Import(c.Request.Context(), data)
	if err != nil {
		h.importError(c, err)
		return
	}
	respond.OK(c, report)
}

func (h *Handler) reset(c *gin.Context) {
	if err := h.Svc.Reset(c.Request.Context()); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to reset", nil)
		return
	}
	respond.NoContent(c)
}

type backupRequest struct {
	Label string `json:"label"`
}

func (h *Handler) backup(c *gin.Context) {
	var req backupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	key, err := h.Svc.Backup(c.Request.Context(), req.Label)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoBackupStore):
			respond.Error(c, http.StatusServiceUnavailable, "backups_disabled", err.Error(), nil)
		case errors.Is(err, ErrInvalidPayload):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to write backup", nil)
		}
		return
	}
	respond.Created(c, gin.H{"key": key})
}

func (h *Handler) listBackups(c *gin.Context) {
	keys, err := h.Svc.ListBackups(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrNoBackupStore) {
			respond.Error(c, http.StatusServiceUnavailable, "backups_disabled", err.Error(), nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list backups", nil)
		return
	}
	respond.OK(c, gin.H{"backups": keys})
}

type restoreRequest struct {
	Key string `json:"key" binding:"required"`
}

func (h *Handler) restore(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "key is required", nil)
		return
	}
	report, err := h.Svc.Restore(c.Request.Context(), req.Key)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoBackupStore):
			respond.Error(c, http.StatusServiceUnavailable, "backups_disabled", err.Error(), nil)
		case errors.Is(err, object.ErrInvalidKey):
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid backup key", nil)
		case errors.Is(err, object.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "backup not found", nil)
		default:
			h.importError(c, err)
		}
		return
	}
	respond.OK(c, report)
}

func (h *Handler) importError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrMissingNamespace):
		respond.Error(c, http.StatusBadRequest, "invalid_snapshot", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to import", nil)
	}
}
