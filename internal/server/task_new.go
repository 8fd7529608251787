package server

import "github.com/gin-gonic/gin"

func (srv *Server) createTask(c *gin.Context) {
	resp, err := srv.dispatcher.CreateTask(c.Request.Context(), c.Request)
	if err != nil {
		srv.writeDispatchError(c, err)
		return
	}
	srv.writeWorkerResponse(c, resp)
}
