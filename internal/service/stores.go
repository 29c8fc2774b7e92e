package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/VoolFI71/zzz-sub000/internal/model"
)

// Store interfaces list the repository methods each service consumes.
// *repository.Repository satisfies all of them; tests plug in fakes.

type SlotStore interface {
	ReserveOneFree(ctx context.Context, region, resvID string, until int64) (string, error)
	FinalizeReservation(ctx context.Context, uid, resvID string, tgID int64, expiresAt int64) error
	CancelReservation(ctx context.Context, uid, resvID string) error
	SlotByUID(ctx context.Context, uid string) (*model.Slot, error)
	SetSlotExpiry(ctx context.Context, uid string, tgID int64, expiresAt int64) error
	ActiveSlotsByOwner(ctx context.Context, tgID int64) ([]model.Slot, error)
	ResetExpiredSlots(ctx context.Context) ([]model.Slot, error)
	ReclaimLapsedReservations(ctx context.Context) (int64, error)
	FreeSlotCount(ctx context.Context, region string) (int, error)
	FreeSlotCounts(ctx context.Context) (map[string]int, error)
	ListSlots(ctx context.Context) ([]model.Slot, error)
	InsertSlots(ctx context.Context, region string, uids []string) (int, error)
}

type UserStore interface {
	GetUser(ctx context.Context, tgID int64) (*model.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	SetReferredBy(ctx context.Context, tgID int64, code string) error
	IncrementReferralCount(ctx context.Context, tgID int64) (int, error)
	AddBalanceDays(ctx context.Context, tgID int64, days int) error
	DeductBalanceDays(ctx context.Context, tgID int64, days int) error
	RecordUserPayment(ctx context.Context, tgID int64, paidAt int64) error
	SetTrialUsed(ctx context.Context, tgID int64) error
	SetEmail(ctx context.Context, tgID int64, email string) error
	GetOrCreateSubKey(ctx context.Context, tgID int64) (string, error)
	UserBySubKey(ctx context.Context, subKey string) (int64, error)
	CountUsers(ctx context.Context) (int64, error)
	AllUserIDs(ctx context.Context) ([]int64, error)
}

type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *model.Invoice) error
	InvoiceByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	MarkInvoice(ctx context.Context, id uuid.UUID, from, to model.InvoiceStatus) error
	SetInvoiceExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	SetInvoiceMessageID(ctx context.Context, id uuid.UUID, messageID int) error
	PendingInvoice(ctx context.Context, tgID int64, channel model.PaymentChannel) (*model.Invoice, error)
	PendingCardInvoices(ctx context.Context) ([]model.Invoice, error)
}

type TotalsStore interface {
	RecordPayment(ctx context.Context, channel model.PaymentChannel, amount int64) error
	PaymentTotals(ctx context.Context) (*model.PaymentTotals, error)
}

// Panel is the edge-server control surface (implemented by panel.Client).
type Panel interface {
	EnableClient(ctx context.Context, region, uid string, expiryMs int64) error
	DisableClient(ctx context.Context, region, uid string) error
	UpdateClientExpiry(ctx context.Context, region, uid string, expiryMs int64) error
}

// Notifier delivers chat messages (implemented by telegram.Bot).
type Notifier interface {
	SendMessage(chatID int64, text string) error
	EditMessage(chatID int64, messageID int, text string) error
	DeleteMessage(chatID int64, messageID int) error
}
