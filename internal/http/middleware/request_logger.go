package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/approvhq/approv-backend/internal/logger"
)

// RequestLogger пишет строку на каждый завершённый запрос.
// Служебные маршруты пропускаются, чтобы не засорять вывод.
func RequestLogger() gin.HandlerFunc {
	log := logger.WithComponent("http")

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		})

		if c.Writer.Status() >= 500 {
			entry.Error("HTTP запрос")
			return
		}
		entry.Info("HTTP запрос")
	}
}
