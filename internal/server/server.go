package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/dispatch"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/forwarder"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/strategy"
)

type Dispatcher interface {
	Passthrough(ctx context.Context, mode strategy.Mode, attrs strategy.Request, req *http.Request) (*forwarder.Response, error)
	CreateTask(ctx context.Context, req *http.Request) (*forwarder.Response, error)
	RemoveTask(ctx context.Context, task models.TaskID, req *http.Request) (*forwarder.Response, error)
	Info() dispatch.InfoDto
	ListTasks() []dispatch.TaskDto
	Engine() string
}

type Drainer interface {
	Drain(ctx context.Context) []models.WorkerAddr
}

func NewServer(d Dispatcher, drainer Drainer, logger zerolog.Logger) *Server {
	srv := &Server{
		dispatcher: d,
		drainer:    drainer,
		log:        logger.With().Str("component", "server").Logger(),
	}
	engine := gin.New()
	engine.Use(srv.requestLogger(), gin.Recovery())
	srv.setupRoutes(engine)
	srv.engine = engine
	return srv
}

type Server struct {
	engine     *gin.Engine
	dispatcher Dispatcher
	drainer    Drainer
	log        zerolog.Logger
}

func (srv *Server) Handler() http.Handler {
	return srv.engine
}

func (srv *Server) setupRoutes(router *gin.Engine) {
	// answered locally
	router.GET("/auth/info", srv.authInfo)
	router.POST("/auth/login", srv.authLogin)
	router.POST("/auth/register", srv.authRegister)
	router.GET("/info", srv.info)
	router.GET("/task/list", srv.listTasks)

	router.GET("/options", srv.passthroughAny)

	router.POST("/task/new", srv.createTask)
	router.POST("/task/new/init", srv.createTask)
	router.POST("/task/new/upload/:uuid", srv.passthroughPath)
	router.POST("/task/new/commit/:uuid", srv.passthroughPath)

	router.GET("/task/:uuid/download/:asset", srv.passthroughPath)
	router.GET("/task/:uuid/info", srv.passthroughPath)
	router.GET("/task/:uuid/output", srv.passthroughPath)

	router.POST("/task/remove", srv.removeTask)
	router.POST("/task/cancel", srv.removeTask)
	router.POST("/task/restart", srv.restartTask)

	// operator only
	router.GET("/die", srv.die)
}
