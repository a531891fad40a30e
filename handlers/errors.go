package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corestack/corestack/internal/accounts"
	"github.com/corestack/corestack/internal/store"
	"github.com/corestack/corestack/pkg/logger"
)

// respondError maps service errors onto HTTP statuses. Unrecognized
// errors get a generic 500 body; the detail stays in the server log.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidQuery),
		errors.Is(err, store.ErrInvalidUpdate),
		errors.Is(err, store.ErrInvalidPipeline):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, accounts.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, accounts.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrConflict), errors.Is(err, accounts.ErrKeyTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		logger.Errorf("request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
