package handlers

import (
	"bufio"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/docvault/docvault/cmd/docserver/service"
	"github.com/docvault/docvault/common/bootstrap"
)

// JobHandler exposes transcode job status and the progress callback the
// external encoder reports into
type JobHandler struct {
	components *bootstrap.Components
	scheduler  *service.Scheduler
}

// NewJobHandler creates a new job handler
func NewJobHandler(components *bootstrap.Components, scheduler *service.Scheduler) *JobHandler {
	return &JobHandler{
		components: components,
		scheduler:  scheduler,
	}
}

// GetJob returns a point-in-time snapshot of a job
// GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c echo.Context) error {
	job, ok := h.scheduler.Job(c.Param("id"))
	if !ok {
		return httpError(service.ErrNotFound)
	}
	return c.JSON(http.StatusOK, job.Status())
}

// IngestProgress consumes the encoder's streaming key=value progress
// report and forwards each tick to the scheduler
// POST /api/v1/jobs/:id/progress
func (h *JobHandler) IngestProgress(c echo.Context) error {
	jobID := c.Param("id")

	err := scanProgress(c.Request().Body, func(fields map[string]string) bool {
		if err := h.scheduler.IngestProgress(jobID, fields); err != nil {
			// The job may have finished and deregistered while the
			// encoder was still flushing; swallow the tail.
			h.components.Logger.Debug("progress for unknown job", "job_id", jobID)
			return false
		}
		return true
	})
	if err != nil {
		h.components.Logger.Warn("progress stream ended abnormally", "job_id", jobID, "error", err)
	}

	return c.NoContent(http.StatusNoContent)
}

// scanProgress reads an encoder progress report: key=value lines where
// each "progress" key closes one tick. flush is called per tick with the
// accumulated fields; returning false stops the scan, as does the
// terminal progress=end tick.
func scanProgress(r io.Reader, flush func(fields map[string]string) bool) error {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = value

		if key != "progress" {
			continue
		}
		if !flush(fields) || value == "end" {
			return scanner.Err()
		}
		fields = make(map[string]string)
	}

	return scanner.Err()
}
