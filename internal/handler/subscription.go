package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/repository"
)

// Subscription serves the user's connection profile as plain text, one VLESS
// line per active slot, in stable (region, uid) order. Clients poll this URL,
// so the body must be deterministic for unchanged state.
func (h *Handler) Subscription(c *fiber.Ctx) error {
	subKey := c.Params("sub_key")

	tgID, err := h.userSvc.ResolveSubKey(c.Context(), subKey)
	if err != nil {
		if errors.Is(err, repository.ErrSubKeyNotFound) {
			return c.Status(fiber.StatusNotFound).SendString("subscription not found")
		}
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}

	slots, err := h.inventory.ActiveSlots(c.Context(), tgID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}
	if len(slots) == 0 {
		return c.Status(fiber.StatusNotFound).SendString("no active configurations")
	}

	var (
		lines     []string
		maxExpiry int64
	)
	for _, slot := range slots {
		region, ok := h.cfg.Region(slot.Region)
		if !ok {
			continue
		}
		lines = append(lines, vlessLink(slot.UID, region))
		if slot.ExpiresAt > maxExpiry {
			maxExpiry = slot.ExpiresAt
		}
	}

	c.Set("profile-title", "VPN")
	c.Set("profile-update-interval", strconv.Itoa(config.ProfileUpdateFreq))
	c.Set("subscription-userinfo", fmt.Sprintf("upload=0; download=0; total=0; expire=%d", maxExpiry))
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")

	return c.SendString(strings.Join(lines, "\n"))
}

// vlessLink renders the client connection URI for a slot on its region.
func vlessLink(uid string, region config.RegionConfig) string {
	return fmt.Sprintf(
		"vless://%s@%s:443?type=tcp&security=reality&fp=chrome&pbk=%s&sni=%s&sid=%s&spx=%%2F#%s",
		uid,
		region.Host,
		region.PublicKey,
		region.SNI,
		region.ShortID,
		region.Label,
	)
}
