package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (srv *Server) die(c *gin.Context) {
	victims := srv.drainer.Drain(context.WithoutCancel(c.Request.Context()))
	srv.log.Warn().Msgf("drain requested, terminating %d workers", len(victims))
	c.Status(http.StatusOK)
}
