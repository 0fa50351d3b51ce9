package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/feichai0017/dataset-processor/pkg/logger"
)

const (
	UserIDHeader    = "X-User-ID"
	RequestIDHeader = "X-Request-ID"

	userIDKey    = "userID"
	requestIDKey = "requestID"
)

// RequestID propagates or assigns a request id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// Identity trusts the X-User-ID header set by the gateway. Requests that
// change state must carry it.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(UserIDHeader)
		if id == "" && !readOnly(c.Request.Method) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing " + UserIDHeader + " header",
				"message": "User identity is required",
			})
			return
		}
		if id != "" {
			c.Set(userIDKey, id)
			c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), id))
		}
		c.Next()
	}
}

// UserID returns the caller's id, if any.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func readOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}
