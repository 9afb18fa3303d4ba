package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/raagalabs/swarasheet/backend/internal/collections"
)

func (h *httpHandler) handleCreateCollection(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var payload collections.Collection
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	created, err := h.collections.Create(c.Request.Context(), payload, identity.UserID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) handleListCollections(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	query := collections.ListQuery{
		Page:   page,
		Limit:  limit,
		Search: c.Query("search"),
	}
	if identity, ok := h.callerIdentity(c); ok {
		query.CallerID = identity.UserID
	}

	result, err := h.collections.List(c.Request.Context(), query)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleGetCollection(c *gin.Context) {
	collection, err := h.collections.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

func (h *httpHandler) handleUpdateCollection(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var payload collections.Collection
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	updated, err := h.collections.Update(c.Request.Context(), c.Param("id"), payload, identity.UserID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteCollection(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.collections.Delete(c.Request.Context(), c.Param("id"), identity.UserID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Collection removed"})
}

type addSongPayload struct {
	SongID string `json:"songId"`
}

func (h *httpHandler) handleAddSongToCollection(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var payload addSongPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.SongID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Song id is required"})
		return
	}
	updated, err := h.collections.AddSong(c.Request.Context(), c.Param("id"), payload.SongID, identity.UserID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleRemoveSongFromCollection(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	updated, err := h.collections.RemoveSong(c.Request.Context(), c.Param("id"), c.Param("songId"), identity.UserID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
