package peersync

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"resumate/internal/shared/server/respond"
)

type Handler struct {
	Manager *Manager
}

func NewHandler(m *Manager) *Handler {
	return &Handler{Manager: m}
}

// RegisterRoutes attaches peer transfer routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/peer/send", h.send)
	rg.POST("/peer/receive", h.receive)
	rg.GET("/peer/status", h.status)
	rg.DELETE("/peer", h.close)
}

func (h *Handler) send(c *gin.Context) {
	st, err := h.Manager.StartSender(c.Request.Context())
	c.Set("peerCode", st.Code)
	if err != nil {
		respond.Error(c, http.StatusBadGateway, "peer_unavailable", "failed to start sender", st)
		return
	}
	respond.JSON(c, http.StatusAccepted, st)
}

type receiveRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) receive(c *gin.Context) {
	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "code is required", nil)
		return
	}
	c.Set("peerCode", req.Code)
	st, err := h.Manager.ConnectToSender(c.Request.Context(), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCode):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.Is(err, ErrPeerNotFound):
			respond.Error(c, http.StatusNotFound, "peer_not_found", "no sender is waiting on this code", st)
		default:
			respond.Error(c, http.StatusBadGateway, "peer_unavailable", "failed to connect", st)
		}
		return
	}
	respond.JSON(c, http.StatusAccepted, st)
}

func (h *Handler) status(c *gin.Context) {
	respond.OK(c, h.Manager.Status())
}

func (h *Handler) close(c *gin.Context) {
	_ = h.Manager.Close()
	respond.NoContent(c)
}
