package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raagalabs/swarasheet/backend/internal/collections"
	"github.com/raagalabs/swarasheet/backend/internal/songs"
	"github.com/raagalabs/swarasheet/backend/internal/users"
	"go.uber.org/zap"
)

// writeServiceError maps service-layer failures onto the HTTP taxonomy:
// validation 400, forbidden 403, not-found 404, conflict 409, everything
// else 500 with the service error code when one exists.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	var validationErr *songs.ValidationError
	var serviceErr *songs.ServiceError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": validationErr.Message, "field": validationErr.Field})
	case errors.Is(err, songs.ErrInvalidSongID),
		errors.Is(err, songs.ErrInvalidUserID),
		errors.Is(err, songs.ErrInvalidNotationType),
		errors.Is(err, users.ErrInvalidPhoneNumber),
		errors.Is(err, collections.ErrNameRequired),
		errors.Is(err, collections.ErrDescriptionRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": err.Error()})
	case errors.Is(err, users.ErrInvalidCode), errors.Is(err, users.ErrCodeExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_otp", "message": "Invalid OTP"})
	case errors.Is(err, songs.ErrNotOwner),
		errors.Is(err, collections.ErrNotOwner),
		errors.Is(err, users.ErrSignupDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Not authorized"})
	case errors.Is(err, songs.ErrSongNotFound),
		errors.Is(err, songs.ErrSectionNotFound),
		errors.Is(err, users.ErrUserNotFound),
		errors.Is(err, collections.ErrCollectionNotFound),
		errors.Is(err, collections.ErrSongNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, songs.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "version_conflict", "message": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		if errors.As(err, &serviceErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": serviceErr.Code()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
