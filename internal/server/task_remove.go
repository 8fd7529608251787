package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/strategy"
)

const maxTaskBodySize = 1 << 20

func (srv *Server) removeTask(c *gin.Context) {
	task, err := taskFromBody(c.Request)
	if err != nil {
		srv.log.Warn().Err(err).Msgf("%s: bad request body", c.Request.URL.Path)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	resp, err := srv.dispatcher.RemoveTask(c.Request.Context(), task, c.Request)
	if err != nil {
		srv.writeDispatchError(c, err)
		return
	}
	srv.writeWorkerResponse(c, resp)
}

func (srv *Server) restartTask(c *gin.Context) {
	task, err := taskFromBody(c.Request)
	if err != nil {
		srv.log.Warn().Err(err).Msgf("%s: bad request body", c.Request.URL.Path)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	srv.passthrough(c, strategy.Body, strategy.Request{BodyTaskID: task})
}

// taskFromBody reads the uuid field of a json or form encoded body and rewinds the body,
// so the worker receives it unchanged.
func taskFromBody(req *http.Request) (models.TaskID, error) {
	raw, err := io.ReadAll(io.LimitReader(req.Body, maxTaskBodySize+1))
	_ = req.Body.Close()
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if len(raw) > maxTaskBodySize {
		return "", fmt.Errorf("body is larger than %d bytes", maxTaskBodySize)
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))
	req.ContentLength = int64(len(raw))

	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		dto := struct {
			UUID string `json:"uuid"`
		}{}
		if len(raw) != 0 {
			err = json.Unmarshal(raw, &dto)
			if err != nil {
				return "", fmt.Errorf("failed to decode json body: %w", err)
			}
		}
		return models.TaskID(dto.UUID), nil
	default:
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return "", fmt.Errorf("failed to decode form body: %w", err)
		}
		return models.TaskID(values.Get("uuid")), nil
	}
}
