package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-uuid"
)

const requestIDHeader = "X-Request-Id"

func (srv *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			var err error
			reqID, err = uuid.GenerateUUID()
			if err != nil {
				srv.log.Warn().Err(err).Msg("failed to generate request id")
			}
			// forwarded to the worker along with the request
			c.Request.Header.Set(requestIDHeader, reqID)
		}
		c.Header(requestIDHeader, reqID)

		c.Next()

		srv.log.Info().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("handled request")
	}
}
