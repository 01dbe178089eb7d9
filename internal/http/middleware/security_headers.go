package middleware

import "github.com/gin-gonic/gin"

// SecurityHeaders ставит защитные заголовки на каждый ответ.
// API отдаёт только JSON, поэтому запреты жёсткие.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
