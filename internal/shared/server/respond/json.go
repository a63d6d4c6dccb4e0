package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes payload with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Created answers 201, used when a project or backup is written for the first time.
func Created(c *gin.Context, payload any) {
	JSON(c, http.StatusCreated, payload)
}

// NoContent answers 204 for operations with nothing to report (reset, clear, close).
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
