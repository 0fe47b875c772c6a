package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/access"
	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/storage"
)

// writeError maps domain errors to status codes and a {error, reason} body.
func writeError(c *gin.Context, err error) {
	var be *biometric.Error
	switch {
	case errors.Is(err, storage.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, biometric.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found", "reason": biometric.ReasonNotFound})
	case errors.Is(err, access.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Face recognition is not available"})
	case errors.Is(err, access.ErrScanAborted):
		slog.Warn("roster scan aborted", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Identification timed out, please try again", "reason": "scan_aborted"})
	case errors.As(err, &be):
		writeBiometricError(c, be)
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func writeBiometricError(c *gin.Context, be *biometric.Error) {
	status := http.StatusUnprocessableEntity
	switch be.Reason {
	case biometric.ReasonNoRoster:
		slog.Error("roster unavailable", "error", be)
		status = http.StatusServiceUnavailable
	case biometric.ReasonComparison:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": be.Detail, "reason": be.Reason})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
