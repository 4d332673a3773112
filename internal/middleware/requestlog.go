package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

type RequestLogMiddleware struct {
	log *logger.Logger
}

func NewRequestLogMiddleware(log *logger.Logger) *RequestLogMiddleware {
	return &RequestLogMiddleware{log: log.With("middleware", "RequestLog")}
}

// Handler tags every request with an id and logs its outcome. The id is
// echoed back so clients can correlate against server logs.
func (m *RequestLogMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Set("request_id", requestID)

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		log := m.log.With(
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", elapsed.Milliseconds(),
		)
		if len(c.Errors) > 0 {
			log.Warn("Request finished with errors", "errors", c.Errors.String())
			return
		}
		if c.Writer.Status() >= 500 {
			log.Error("Request failed")
			return
		}
		log.Info("Request finished")
	}
}
