package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telefile/telefile/internal/database"
	"github.com/telefile/telefile/internal/utils"
)

type StatsHandler struct {
	db *database.MongoDB
}

func NewStatsHandler(db *database.MongoDB) *StatsHandler {
	return &StatsHandler{db: db}
}

// Stats reports aggregate usage counters for dashboards and monitoring.
func (h *StatsHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.db.GetStats(ctx)
	if err != nil {
		utils.LogError(ctx, "Failed to collect stats", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to collect stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
