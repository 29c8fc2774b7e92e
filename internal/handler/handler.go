package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/repository"
	"github.com/VoolFI71/zzz-sub000/internal/service"
)

type Handler struct {
	cfg          *config.Config
	repo         *repository.Repository
	userSvc      *service.UserService
	reservations *service.ReservationService
	inventory    *service.InventoryService
}

func New(
	cfg *config.Config,
	repo *repository.Repository,
	userSvc *service.UserService,
	reservations *service.ReservationService,
	inventory *service.InventoryService,
) *Handler {
	return &Handler{
		cfg:          cfg,
		repo:         repo,
		userSvc:      userSvc,
		reservations: reservations,
		inventory:    inventory,
	}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.repo.Ping(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "db unreachable",
		})
	}
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}
