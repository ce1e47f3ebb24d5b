package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Заголовки идентичности. Выпуск и проверка учётных данных — вне зоны
// ответственности сервиса: идентичность поставляет внешний слой,
// здесь она только извлекается и требуется.
const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
)

// Ключи контекста Gin
const (
	ContextUserID    = "userID"
	ContextSessionID = "sessionID"
)

// RequireIdentity создает middleware, требующее заголовки идентичности.
// user id идентифицирует игрока, session id — конкретное подключение
// (одно устройство); presence ключуется по session id.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		sessionID := c.GetHeader(HeaderSessionID)

		if userID == "" || sessionID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID and X-Session-ID headers are required"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextSessionID, sessionID)
		c.Next()
	}
}
