package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/models"
)

func GetOperator(c *fiber.Ctx) string {
	operator, _ := c.Locals("operator").(string)
	return operator
}

func paramID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func invalidID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "invalid id",
	})
}

// respondError maps service errors onto status codes.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case models.IsValidation(err):
		status = fiber.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = fiber.StatusNotFound
	case models.IsConflict(err):
		status = fiber.StatusConflict
	}

	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		slog.Error(err.Error(), "path", c.Path(), "operator", GetOperator(c))
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}
