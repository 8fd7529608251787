package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/dispatch"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/forwarder"
)

// writeWorkerResponse relays a worker reply verbatim.
func (srv *Server) writeWorkerResponse(c *gin.Context, resp *forwarder.Response) {
	defer resp.Body.Close()

	header := c.Writer.Header()
	for name, values := range resp.Header {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	c.Status(resp.StatusCode)
	_, err := io.Copy(c.Writer, resp.Body)
	if err != nil {
		srv.log.Warn().Err(err).Msgf("failed to relay reply of %s to caller", resp.Worker)
	}
}

func (srv *Server) writeDispatchError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, dispatch.ErrForward) {
		status = http.StatusBadGateway
	}
	srv.log.Error().Err(err).Msgf("%s %s failed", c.Request.Method, c.Request.URL.Path)
	c.AbortWithStatus(status)
}
