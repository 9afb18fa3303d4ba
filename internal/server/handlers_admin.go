package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raagalabs/swarasheet/backend/internal/collections"
	"github.com/raagalabs/swarasheet/backend/internal/songs"
	"github.com/raagalabs/swarasheet/backend/internal/users"
	"go.uber.org/zap"
)

type adminStats struct {
	Users       int64 `json:"users"`
	Songs       int64 `json:"songs"`
	Collections int64 `json:"collections"`
	Favorites   int64 `json:"favorites"`
}

func (h *httpHandler) handleAdminStats(c *gin.Context) {
	var stats adminStats
	counts := []struct {
		model interface{}
		dest  *int64
	}{
		{&users.User{}, &stats.Users},
		{&songs.Record{}, &stats.Songs},
		{&collections.Record{}, &stats.Collections},
		{&users.Favorite{}, &stats.Favorites},
	}
	for _, count := range counts {
		if err := h.db.WithContext(c.Request.Context()).Model(count.model).Count(count.dest).Error; err != nil {
			h.logger.Error("admin stats query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
			return
		}
	}
	c.JSON(http.StatusOK, stats)
}
