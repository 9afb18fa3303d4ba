package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/raagalabs/swarasheet/backend/internal/users"
	"go.uber.org/zap"
)

type sendOTPPayload struct {
	PhoneNumber string `json:"phoneNumber"`
}

type verifyOTPPayload struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

type verifyOTPResponse struct {
	Token     string     `json:"token"`
	ExpiresIn int64      `json:"expiresIn"`
	User      users.User `json:"user"`
}

func (h *httpHandler) handleSendOTP(c *gin.Context) {
	var request sendOTPPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PhoneNumber) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Phone number is required"})
		return
	}

	if err := h.users.StartLogin(c.Request.Context(), request.PhoneNumber); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP sent successfully"})
}

func (h *httpHandler) handleVerifyOTP(c *gin.Context) {
	var request verifyOTPPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.PhoneNumber) == "" ||
		strings.TrimSpace(request.OTP) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Phone number and OTP are required"})
		return
	}

	user, err := h.users.VerifyLogin(c.Request.Context(), request.PhoneNumber, request.OTP)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.Issue(user.UserID, user.IsAdmin)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, verifyOTPResponse{
		Token:     token,
		ExpiresIn: expiresIn,
		User:      user,
	})
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), identity.UserID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
