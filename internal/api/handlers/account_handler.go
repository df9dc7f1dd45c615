package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type AccountHandler struct {
	s  service.AccountService
	st service.StatsService
}

func NewAccountHandler(s service.AccountService, st service.StatsService) *AccountHandler {
	return &AccountHandler{s: s, st: st}
}

func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	var in transfer.AccountCreation
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	account, err := h.s.Register(c.Context(), &in)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"account": account,
	})
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.List(c.Context())
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"accounts": accounts,
	})
}

func (h *AccountHandler) UpdateAccount(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	var in transfer.AccountUpdate
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	account, err := h.s.Update(c.Context(), id, &in)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account": account,
	})
}

func (h *AccountHandler) DeleteAccount(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	if err := h.s.Delete(c.Context(), id); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Account removed successfully",
	})
}

func (h *AccountHandler) TestAccount(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	account, err := h.s.Probe(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"account": account,
	})
}

func (h *AccountHandler) AccountStats(c *fiber.Ctx) error {
	stats, err := h.st.AccountStats(c.Context())
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"stats": stats,
	})
}
