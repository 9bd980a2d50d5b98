package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/models"
	"github.com/maheshrc27/postdispatch/internal/service"
)

type PlatformHandler struct {
	ps  service.PlatformService
	as  service.AccountService
	cfg config.Config
}

func NewPlatformHandler(ps service.PlatformService, as service.AccountService, cfg config.Config) *PlatformHandler {
	return &PlatformHandler{
		ps:  ps,
		as:  as,
		cfg: cfg,
	}
}

// AddSocialAccount redirects the signed-in user to the platform's consent
// screen.
func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	platform := models.Platform(c.Params("platform"))

	authURL, err := h.ps.AuthURL(c.Context(), platform, GetUserID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Redirect(authURL)
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	platform := models.Platform(c.Params("platform"))

	if _, err := h.ps.Callback(c.Context(), platform, c.Query("code"), c.Query("state")); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to connect account",
		})
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.as.ListActive(c.Context(), userID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := c.QueryInt("id", 0)

	if err := h.as.Deactivate(c.Context(), userID, int64(accountID)); err != nil {
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
