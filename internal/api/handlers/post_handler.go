package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postdispatch/internal/service"
	"github.com/maheshrc27/postdispatch/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	postID, err := h.s.Create(c.Context(), userID, &pc)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": postID,
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.QueryInt("id", 0)

	if postID != 0 {
		post, err := h.s.PostInfo(c.Context(), int64(postID), userID)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(post)
	}

	posts, err := h.s.List(c.Context(), userID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, ok := idParam(c)
	if !ok {
		return errorResponse(c, service.ErrPostNotFound)
	}

	var req transfer.PublishRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	report, err := h.s.PublishNow(c.Context(), userID, postID, req.AccountIDs)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, ok := idParam(c)
	if !ok {
		return errorResponse(c, service.ErrPostNotFound)
	}

	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	n, err := h.s.Schedule(c.Context(), userID, postID, req.AccountIDs, req.ScheduledAt)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(transfer.ScheduleResponse{
		PostID:      postID,
		Entries:     n,
		ScheduledAt: req.ScheduledAt,
	})
}

func (h *PostHandler) PostHistory(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, ok := idParam(c)
	if !ok {
		return errorResponse(c, service.ErrPostNotFound)
	}

	history, err := h.s.History(c.Context(), userID, postID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(history)
}
