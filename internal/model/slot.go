package model

import (
	"strconv"
	"time"
)

// Slot owner tags. A slot carries exactly one tag at a time.
const (
	OwnerFree     = ""
	OwnerUser     = "user"
	OwnerReserved = "resv"
)

type SlotStatus string

const (
	SlotStatusFree     SlotStatus = "free"
	SlotStatusAssigned SlotStatus = "assigned"
	SlotStatusReserved SlotStatus = "reserved"
	SlotStatusExpired  SlotStatus = "expired"
)

// Slot is a pre-provisioned client identity on an edge server. Ownership is
// tracked with an explicit (kind, ref) tag instead of in-band marker strings.
type Slot struct {
	UID           string `json:"uid" db:"uid"`
	Region        string `json:"region" db:"region"`
	ExpiresAt     int64  `json:"expires_at" db:"expires_at"` // unix seconds
	OwnerKind     string `json:"owner_kind" db:"owner_kind"`
	OwnerRef      string `json:"owner_ref" db:"owner_ref"`
	ReservedUntil int64  `json:"reserved_until" db:"reserved_until"`
}

// Status derives the slot state at the given instant. It is never stored.
func (s *Slot) Status(now time.Time) SlotStatus {
	switch s.OwnerKind {
	case OwnerUser:
		if s.ExpiresAt <= now.Unix() {
			return SlotStatusExpired
		}
		return SlotStatusAssigned
	case OwnerReserved:
		if s.ReservedUntil <= now.Unix() {
			return SlotStatusFree
		}
		return SlotStatusReserved
	default:
		return SlotStatusFree
	}
}

func (s *Slot) OwnedBy(tgID int64) bool {
	return s.OwnerKind == OwnerUser && s.OwnerRef == strconv.FormatInt(tgID, 10)
}

func (s *Slot) Active(now time.Time) bool {
	return s.OwnerKind == OwnerUser && s.ExpiresAt > now.Unix()
}
