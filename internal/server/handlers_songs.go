package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/raagalabs/swarasheet/backend/internal/songs"
)

func (h *httpHandler) handleCreateSong(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var payload songs.Song
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	ownerID, err := songs.NewUserID(identity.UserID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	created, err := h.songs.Create(c.Request.Context(), payload, ownerID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) handleListSongs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	query := songs.ListQuery{
		Page:         page,
		Limit:        limit,
		Search:       c.Query("search"),
		NotationType: c.Query("notationType"),
	}
	if identity, ok := h.callerIdentity(c); ok {
		query.CallerID = identity.UserID
	}

	result, err := h.songs.List(c.Request.Context(), query)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleGetSong(c *gin.Context) {
	id, err := songs.NewSongID(c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	song, err := h.songs.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, song)
}

func (h *httpHandler) handleUpdateSong(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, err := songs.NewSongID(c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	var payload songs.Song
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	callerID, err := songs.NewUserID(identity.UserID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	updated, err := h.songs.UpdateWhole(c.Request.Context(), id, payload, callerID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type updateSectionPayload struct {
	Section songs.Section `json:"section"`
	Version int64         `json:"version"`
}

func (h *httpHandler) handleUpdateSection(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, err := songs.NewSongID(c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Section index must be a non-negative integer"})
		return
	}
	var payload updateSectionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	callerID, err := songs.NewUserID(identity.UserID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	updated, err := h.songs.UpdateSection(c.Request.Context(), id, index, payload.Section, callerID, payload.Version)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteSong(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, err := songs.NewSongID(c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	callerID, err := songs.NewUserID(identity.UserID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if err := h.songs.Delete(c.Request.Context(), id, callerID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Song removed"})
}

func (h *httpHandler) handleToggleFavorite(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, err := songs.NewSongID(c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	favorites, err := h.users.ToggleFavorite(c.Request.Context(), identity.UserID, id.String())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": favorites})
}
