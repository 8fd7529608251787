package dispatch

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/forwarder"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/models"
	"github.com/Sh00ty/cloud-nlb/task-dispatcher/internal/registry"
)

// creation replies are small json documents
const maxCreateReplySize = 1 << 20

type bufferedBody struct {
	io.Reader
	io.Closer
}

type createdTaskDto struct {
	UUID string `json:"uuid"`
}

// register buffers the creation reply and records the task it declares. A reply that does not
// declare a task leaves the registry untouched: the caller still gets the reply verbatim, and
// the registry disagrees with the worker until the caller removes the task.
func (d *Dispatcher) register(resp *forwarder.Response) error {
	orig := resp.Body
	body, err := io.ReadAll(io.LimitReader(orig, maxCreateReplySize+1))
	if err != nil {
		return fmt.Errorf("%w: failed to read creation reply from %s: %w", ErrForward, resp.Worker, err)
	}
	resp.Body = bufferedBody{
		Reader: io.MultiReader(bytes.NewReader(body), orig),
		Closer: orig,
	}

	if resp.StatusCode/100 != 2 {
		d.log.Debug().Msgf("worker %s rejected task creation with status %d", resp.Worker, resp.StatusCode)
		return nil
	}
	if len(body) > maxCreateReplySize {
		d.skipRegistration(resp.Worker, "reply is too large")
		return nil
	}
	payload, err := decodeReply(resp.Header, body)
	if err != nil {
		d.skipRegistration(resp.Worker, err.Error())
		return nil
	}
	dto := createdTaskDto{}
	if err := json.Unmarshal(payload, &dto); err != nil || dto.UUID == "" {
		d.skipRegistration(resp.Worker, "reply has no task uuid")
		return nil
	}
	task := models.TaskID(dto.UUID)

	prev, err := d.reg.AssignTask(task, resp.Worker)
	if errors.Is(err, registry.ErrUnknownWorker) {
		d.skipRegistration(resp.Worker, fmt.Sprintf("worker left the pool before task %s was registered", task))
		return nil
	}
	if err != nil {
		d.skipRegistration(resp.Worker, err.Error())
		return nil
	}
	d.reclaims.Cancel(resp.Worker)
	if prev != "" {
		d.log.Warn().Msgf("task %s moved from %s to %s", task, prev, resp.Worker)
		d.armIfIdle(prev)
	}
	d.events.NotifyPoolEvent(models.NewPoolEvent(models.TaskRegistered, resp.Worker, task))
	d.metrics.Gauge(metrics.TaskCount, d.reg.TotalTasks())
	d.log.Info().Msgf("registered task %s on %s", task, resp.Worker)
	return nil
}

// decodeReply undoes the content encoding the worker applied for the caller. Only the
// registry sees the decoded bytes, the caller still gets the reply as the worker sent it.
func decodeReply(header http.Header, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip reply: %w", err)
		}
		defer zr.Close()
		payload, err := io.ReadAll(io.LimitReader(zr, maxCreateReplySize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress reply: %w", err)
		}
		if len(payload) > maxCreateReplySize {
			return nil, fmt.Errorf("decompressed reply is larger than %d bytes", maxCreateReplySize)
		}
		return payload, nil
	}
	return nil, fmt.Errorf("unsupported reply encoding %q", encoding)
}

func (d *Dispatcher) skipRegistration(worker models.WorkerAddr, reason string) {
	d.metrics.Increment(metrics.RegistrationSkip)
	d.log.Warn().Msgf("registration skipped for reply from %s: %s", worker, reason)
}
