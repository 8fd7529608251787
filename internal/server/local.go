package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (srv *Server) authInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"loginUrl":    "/auth/login",
		"message":     srv.dispatcher.Engine(),
		"registerUrl": nil,
	})
}

func (srv *Server) authLogin(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"token": "token"})
}

func (srv *Server) authRegister(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}

func (srv *Server) info(c *gin.Context) {
	c.JSON(http.StatusOK, srv.dispatcher.Info())
}

// listTasks answers from the registry: this service is the only client of its workers.
func (srv *Server) listTasks(c *gin.Context) {
	c.JSON(http.StatusOK, srv.dispatcher.ListTasks())
}
