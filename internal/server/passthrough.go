package server

import (
	"github.com/gin-gonic/gin"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/strategy"
)

func (srv *Server) passthroughAny(c *gin.Context) {
	srv.passthrough(c, strategy.Any, strategy.Request{})
}

func (srv *Server) passthroughPath(c *gin.Context) {
	srv.passthrough(c, strategy.Path, strategy.Request{
		PathTaskID: models.TaskID(c.Param("uuid")),
	})
}

func (srv *Server) passthrough(c *gin.Context, mode strategy.Mode, attrs strategy.Request) {
	resp, err := srv.dispatcher.Passthrough(c.Request.Context(), mode, attrs, c.Request)
	if err != nil {
		srv.writeDispatchError(c, err)
		return
	}
	srv.writeWorkerResponse(c, resp)
}
