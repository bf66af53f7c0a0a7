package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"pacotes-bot/internal/packages"
)

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) create(c *fiber.Ctx) error {
	var req packages.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fmt.Errorf("%w: %v", packages.ErrInvalidRequest, err))
	}

	sub, err := s.svc.Create(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"pacote":  sub,
	})
}

func (s *Server) list(c *fiber.Ctx) error {
	subs := s.svc.ListActive(c.Query("group"))
	return c.JSON(fiber.Map{
		"total":   len(subs),
		"pacotes": subs,
	})
}

func (s *Server) stats(c *fiber.Ctx) error {
	return c.JSON(s.svc.Stats())
}

func (s *Server) history(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	entries := s.svc.History(limit)
	return c.JSON(fiber.Map{
		"total":     len(entries),
		"historico": entries,
	})
}

func (s *Server) validity(c *fiber.Ctx) error {
	phone := c.Params("phone")
	validity := s.svc.Validity(phone)
	if len(validity) == 0 {
		return writeError(c, fmt.Errorf("%w: no active package for %s", packages.ErrNotFound, phone))
	}
	return c.JSON(fiber.Map{
		"numero":  phone,
		"pacotes": validity,
	})
}

func (s *Server) cancel(c *fiber.Ctx) error {
	sub, err := s.svc.Cancel(c.Params("phone"), c.Params("reference"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"pacote":  sub,
	})
}

func (s *Server) tick(c *fiber.Ctx) error {
	result, ran := s.ticker.RunOnce(c.UserContext())
	if !ran {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "tick_in_progress",
			"message": "a renewal tick is already running",
		})
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"resultado": result,
	})
}
