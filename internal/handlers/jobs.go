package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-transcription/internal/queue"
)

// JobLookup reports job statuses.
type JobLookup interface {
	Get(id string) (queue.JobStatus, bool)
}

// JobsHandler serves GET /jobs/:id.
type JobsHandler struct {
	jobs JobLookup
}

func NewJobsHandler(jobs JobLookup) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

func (h *JobsHandler) Handle(c *fiber.Ctx) error {
	st, ok := h.jobs.Get(c.Params("id"))
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, "Job not found", "ERR_JOB_NOT_FOUND")
	}
	return c.JSON(st)
}
