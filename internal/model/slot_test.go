package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlotStatus(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		slot Slot
		want SlotStatus
	}{
		{"untagged", Slot{}, SlotStatusFree},
		{"assigned", Slot{OwnerKind: OwnerUser, OwnerRef: "100", ExpiresAt: now.Unix() + 60}, SlotStatusAssigned},
		{"lapsed assignment", Slot{OwnerKind: OwnerUser, OwnerRef: "100", ExpiresAt: now.Unix() - 60}, SlotStatusExpired},
		{"held reservation", Slot{OwnerKind: OwnerReserved, OwnerRef: "r1", ReservedUntil: now.Unix() + 30}, SlotStatusReserved},
		{"lapsed reservation", Slot{OwnerKind: OwnerReserved, OwnerRef: "r1", ReservedUntil: now.Unix() - 30}, SlotStatusFree},
		{"reservation lapsing this instant", Slot{OwnerKind: OwnerReserved, OwnerRef: "r1", ReservedUntil: now.Unix()}, SlotStatusFree},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.slot.Status(now))
		})
	}
}

func TestSlotOwnedBy(t *testing.T) {
	slot := Slot{OwnerKind: OwnerUser, OwnerRef: "100", ExpiresAt: time.Now().Unix() + 60}
	require.True(t, slot.OwnedBy(100))
	require.False(t, slot.OwnedBy(101))

	reserved := Slot{OwnerKind: OwnerReserved, OwnerRef: "100"}
	require.False(t, reserved.OwnedBy(100))
}

func TestSlotActive(t *testing.T) {
	now := time.Now()
	require.True(t, (&Slot{OwnerKind: OwnerUser, ExpiresAt: now.Unix() + 1}).Active(now))
	require.False(t, (&Slot{OwnerKind: OwnerUser, ExpiresAt: now.Unix()}).Active(now))
	require.False(t, (&Slot{ExpiresAt: now.Unix() + 60}).Active(now))
}
