package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/superapp/partnerauth/internal/database"
	"github.com/superapp/partnerauth/pkg/logger"
)

const healthPingTimeout = 2 * time.Second

// Health reports readiness by pinging the database.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()

		status := http.StatusOK
		dbStatus := "up"
		if err := database.Ping(ctx, db); err != nil {
			logger.WithModule("health").Warn("database ping failed", zap.Error(err))
			status = http.StatusServiceUnavailable
			dbStatus = "down"
		}

		c.JSON(status, gin.H{
			"success":    status == http.StatusOK,
			"database":   dbStatus,
			"checked_at": time.Now().UTC(),
		})
	}
}
