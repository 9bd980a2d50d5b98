package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postdispatch/internal/service"
)

type DesignHandler struct {
	s service.DesignService
}

func NewDesignHandler(s service.DesignService) *DesignHandler {
	return &DesignHandler{s: s}
}

func (h *DesignHandler) UploadDesign(c *fiber.Ctx) error {
	userID := GetUserID(c)

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file provided",
		})
	}

	f, err := file.Open()
	if err != nil {
		return errorResponse(c, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return errorResponse(c, err)
	}

	clientID := c.QueryInt("client_id", 0)
	name := c.FormValue("name", file.Filename)

	design, err := h.s.Upload(c.Context(), userID, int64(clientID), name, data)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(design)
}
