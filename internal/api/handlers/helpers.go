package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postdispatch/internal/service"
)

func GetUserID(c *fiber.Ctx) int64 {
	s, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(s, 10, 64)
	return userID
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNoTargetsSelected),
		errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrUnsupportedDesign),
		errors.Is(err, service.ErrDesignTooLarge),
		errors.Is(err, service.ErrUnsupportedPlatform):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrPostNotFound),
		errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrDesignNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrPostAlreadyPublished),
		errors.Is(err, service.ErrPostPublishing):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status == fiber.StatusInternalServerError {
		slog.Error("request failed", "event", "request_failed", "path", c.Path(), "error", err)
		return c.Status(status).JSON(fiber.Map{
			"error": "Something went wrong",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func idParam(c *fiber.Ctx) (int64, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return int64(id), true
}
