package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/service"
)

type JobHandler struct {
	s  service.JobService
	ds service.DispatchService
	st service.StatsService
}

func NewJobHandler(s service.JobService, ds service.DispatchService, st service.StatsService) *JobHandler {
	return &JobHandler{s: s, ds: ds, st: st}
}

func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	page, err := h.s.List(c.Context(), models.JobFilter{
		Status:  models.JobStatus(c.Query("status")),
		Page:    c.QueryInt("page", 1),
		PerPage: c.QueryInt("per_page", 20),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"jobs": page.Jobs,
		"pagination": fiber.Map{
			"page":     page.Page,
			"pages":    page.Pages,
			"per_page": page.PerPage,
			"total":    page.Total,
		},
	})
}

func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	job, err := h.s.Get(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"job": job,
	})
}

func (h *JobHandler) RetryJob(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	job, err := h.s.Retry(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Job rescheduled",
		"job":     job,
	})
}

func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	job, err := h.s.Cancel(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Job cancelled",
		"job":     job,
	})
}

func (h *JobHandler) ProcessJobs(c *fiber.Ctx) error {
	result, err := h.ds.RunPass(c.Context())
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *JobHandler) JobStats(c *fiber.Ctx) error {
	stats, err := h.st.JobStats(c.Context())
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"stats": stats,
	})
}

func (h *JobHandler) Queue(c *fiber.Ctx) error {
	jobs, err := h.s.Queue(c.Context(), c.QueryInt("limit", service.DefaultQueueSize))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"queue": jobs,
	})
}
