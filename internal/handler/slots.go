package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/VoolFI71/zzz-sub000/internal/repository"
)

type giveConfigRequest struct {
	TgID   int64  `json:"tg_id"`
	Days   int    `json:"days"`
	Server string `json:"server"`
}

// GiveConfig assigns one free slot on the requested server to the user.
func (h *Handler) GiveConfig(c *fiber.Ctx) error {
	var req giveConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.TgID == 0 || req.Days <= 0 || req.Server == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tg_id, days and server are required"})
	}
	if _, ok := h.cfg.Region(req.Server); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown server"})
	}

	uid, err := h.reservations.Grant(c.Context(), req.Server, req.TgID, req.Days)
	if err != nil {
		if errors.Is(err, repository.ErrNoFreeSlots) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no free slots"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"uid": uid})
}

type extendConfigRequest struct {
	UID  string `json:"uid"`
	TgID int64  `json:"tg_id"`
	Days int    `json:"days"`
}

// ExtendConfig pushes an owned slot's expiry forward.
func (h *Handler) ExtendConfig(c *fiber.Ctx) error {
	var req extendConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.UID == "" || req.TgID == 0 || req.Days <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "uid, tg_id and days are required"})
	}

	expiresAt, err := h.reservations.Extend(c.Context(), req.UID, req.TgID, req.Days)
	if err != nil {
		if errors.Is(err, repository.ErrSlotNotFound) || errors.Is(err, repository.ErrSlotNotOwned) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "config not found"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"uid": req.UID, "expires_at": expiresAt})
}

// CheckAvailable reports free slots, per server or across all of them.
// Expired assignments are swept before counting.
func (h *Handler) CheckAvailable(c *fiber.Ctx) error {
	server := c.Query("server")

	var (
		free int
		err  error
	)
	if server != "" {
		if _, ok := h.cfg.Region(server); !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown server"})
		}
		free, err = h.inventory.Available(c.Context(), server)
	} else {
		free, err = h.inventory.AnyAvailable(c.Context())
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"available": free > 0, "free": free})
}

// UserCodes lists the user's active slots with their expiries.
func (h *Handler) UserCodes(c *fiber.Ctx) error {
	tgID, err := c.ParamsInt("tg_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid tg_id"})
	}

	slots, err := h.inventory.ActiveSlots(c.Context(), int64(tgID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	codes := make([]fiber.Map, 0, len(slots))
	for _, slot := range slots {
		codes = append(codes, fiber.Map{"uid": slot.UID, "expires_at": slot.ExpiresAt})
	}
	return c.JSON(fiber.Map{"codes": codes})
}

// SubKey returns (creating if needed) the user's subscription key.
func (h *Handler) SubKey(c *fiber.Ctx) error {
	tgID, err := c.ParamsInt("tg_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid tg_id"})
	}

	key, err := h.userSvc.SubscriptionKey(c.Context(), int64(tgID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"sub_key": key})
}

// AllConfigs dumps the whole pool for the operator.
func (h *Handler) AllConfigs(c *fiber.Ctx) error {
	slots, err := h.inventory.AllSlots(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	now := time.Now()
	configs := make([]fiber.Map, 0, len(slots))
	for _, slot := range slots {
		configs = append(configs, fiber.Map{
			"uid":        slot.UID,
			"server":     slot.Region,
			"status":     slot.Status(now),
			"owner":      slot.OwnerRef,
			"expires_at": slot.ExpiresAt,
			"is_owned":   slot.OwnerKind == "user",
		})
	}

	return c.JSON(fiber.Map{"configs": configs, "total_count": len(configs)})
}

type createConfigRequest struct {
	Server string   `json:"server"`
	UIDs   []string `json:"uids"`
}

// CreateConfig provisions fresh free slots for a server.
func (h *Handler) CreateConfig(c *fiber.Ctx) error {
	var req createConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Server == "" || len(req.UIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "server and uids are required"})
	}

	inserted, err := h.inventory.Provision(c.Context(), req.Server, req.UIDs)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"inserted": inserted})
}
