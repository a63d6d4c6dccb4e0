package extract

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"resumate/internal/appstate"
	"resumate/internal/scoring"
	"resumate/internal/shared/server/respond"
	"resumate/internal/shared/telemetry"
)

const maxUploadSize = 10 << 20 // 10MB

// Handler converts uploaded resume files to text.
type Handler struct {
	State *appstate.State
}

// NewHandler constructs a Handler.
func NewHandler(st *appstate.State) *Handler {
	return &Handler{State: st}
}

// RegisterRoutes attaches extraction routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/resume/extract", h.extract)
}

func (h *Handler) extract(c *gin.Context) {
	if c.Request.ContentLength > maxUploadSize {
		respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds 10MB", nil)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "file exceeds 10MB", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	apply, _ := strconv.ParseBool(c.PostForm("apply"))

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	ctx := c.Request.Context()
	res, err := FromBytes(ctx, data, fileHeader.Header.Get("Content-Type"), fileHeader.Filename)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupported):
			respond.Error(c, http.StatusUnsupportedMediaType, "unsupported_file", err.Error(), nil)
		case errors.Is(err, ErrEmpty):
			respond.Error(c, http.StatusUnprocessableEntity, "empty_file", err.Error(), nil)
		default:
			telemetry.Warn("extract.failed", map[string]any{
				"file_name": fileHeader.Filename,
				"error":     err.Error(),
			})
			respond.Error(c, http.StatusUnprocessableEntity, "extract_failed", "could not read text from file", nil)
		}
		return
	}

	body := gin.H{"text": res.Text, "mimeType": res.MimeType, "fileName": fileHeader.Filename}
	if apply {
		if err := h.State.Update(ctx, func(v *appstate.Values) { v.ResumeMd = res.Text }); err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store resume", nil)
			return
		}
		snap, err := scoring.Rescore(ctx, h.State)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to score", nil)
			return
		}
		body["score"] = snap
	}
	respond.OK(c, body)
}
