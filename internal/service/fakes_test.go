package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/VoolFI71/zzz-sub000/internal/model"
	"github.com/VoolFI71/zzz-sub000/internal/repository"
)

// In-memory stores mirroring the repository semantics, including sentinels.

type fakeSlots struct {
	slots       []*model.Slot
	finalizeErr error
	canceled    []string
}

func newFakeSlots(slots ...*model.Slot) *fakeSlots {
	return &fakeSlots{slots: slots}
}

func freeSlot(uid, region string) *model.Slot {
	return &model.Slot{UID: uid, Region: region}
}

func ownedSlot(uid, region string, tgID int64, expiresAt int64) *model.Slot {
	return &model.Slot{
		UID:       uid,
		Region:    region,
		ExpiresAt: expiresAt,
		OwnerKind: model.OwnerUser,
		OwnerRef:  strconv.FormatInt(tgID, 10),
	}
}

func (f *fakeSlots) find(uid string) *model.Slot {
	for _, s := range f.slots {
		if s.UID == uid {
			return s
		}
	}
	return nil
}

func (f *fakeSlots) ReserveOneFree(ctx context.Context, region, resvID string, until int64) (string, error) {
	now := time.Now()
	for _, s := range f.slots {
		if s.Region != region {
			continue
		}
		if status := s.Status(now); status != model.SlotStatusFree && status != model.SlotStatusExpired {
			continue
		}
		s.OwnerKind = model.OwnerReserved
		s.OwnerRef = resvID
		s.ReservedUntil = until
		s.ExpiresAt = 0
		return s.UID, nil
	}
	return "", repository.ErrNoFreeSlots
}

func (f *fakeSlots) FinalizeReservation(ctx context.Context, uid, resvID string, tgID int64, expiresAt int64) error {
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	s := f.find(uid)
	if s == nil || s.OwnerKind != model.OwnerReserved || s.OwnerRef != resvID || s.ReservedUntil <= time.Now().Unix() {
		return repository.ErrReservationLost
	}
	s.OwnerKind = model.OwnerUser
	s.OwnerRef = strconv.FormatInt(tgID, 10)
	s.ExpiresAt = expiresAt
	s.ReservedUntil = 0
	return nil
}

func (f *fakeSlots) CancelReservation(ctx context.Context, uid, resvID string) error {
	f.canceled = append(f.canceled, uid)
	s := f.find(uid)
	if s != nil && s.OwnerKind == model.OwnerReserved && s.OwnerRef == resvID {
		s.OwnerKind = model.OwnerFree
		s.OwnerRef = ""
		s.ReservedUntil = 0
	}
	return nil
}

func (f *fakeSlots) SlotByUID(ctx context.Context, uid string) (*model.Slot, error) {
	s := f.find(uid)
	if s == nil {
		return nil, repository.ErrSlotNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSlots) SetSlotExpiry(ctx context.Context, uid string, tgID int64, expiresAt int64) error {
	s := f.find(uid)
	if s == nil || !s.OwnedBy(tgID) {
		return repository.ErrSlotNotOwned
	}
	s.ExpiresAt = expiresAt
	return nil
}

func (f *fakeSlots) ActiveSlotsByOwner(ctx context.Context, tgID int64) ([]model.Slot, error) {
	now := time.Now()
	var out []model.Slot
	for _, s := range f.slots {
		if s.OwnedBy(tgID) && s.Active(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSlots) ResetExpiredSlots(ctx context.Context) ([]model.Slot, error) {
	now := time.Now()
	var freed []model.Slot
	for _, s := range f.slots {
		if s.Status(now) != model.SlotStatusExpired {
			continue
		}
		freed = append(freed, *s)
		s.OwnerKind = model.OwnerFree
		s.OwnerRef = ""
		s.ExpiresAt = 0
	}
	return freed, nil
}

func (f *fakeSlots) ReclaimLapsedReservations(ctx context.Context) (int64, error) {
	now := time.Now().Unix()
	var n int64
	for _, s := range f.slots {
		if s.OwnerKind == model.OwnerReserved && s.ReservedUntil <= now {
			s.OwnerKind = model.OwnerFree
			s.OwnerRef = ""
			s.ReservedUntil = 0
			n++
		}
	}
	return n, nil
}

func (f *fakeSlots) FreeSlotCount(ctx context.Context, region string) (int, error) {
	counts, _ := f.FreeSlotCounts(ctx)
	return counts[region], nil
}

func (f *fakeSlots) FreeSlotCounts(ctx context.Context) (map[string]int, error) {
	now := time.Now()
	counts := make(map[string]int)
	for _, s := range f.slots {
		if s.Status(now) == model.SlotStatusFree {
			counts[s.Region]++
		}
	}
	return counts, nil
}

func (f *fakeSlots) ListSlots(ctx context.Context) ([]model.Slot, error) {
	out := make([]model.Slot, 0, len(f.slots))
	for _, s := range f.slots {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeSlots) InsertSlots(ctx context.Context, region string, uids []string) (int, error) {
	inserted := 0
	for _, uid := range uids {
		if f.find(uid) != nil {
			continue
		}
		f.slots = append(f.slots, freeSlot(uid, region))
		inserted++
	}
	return inserted, nil
}

type fakeUsers struct {
	users   map[int64]*model.User
	subKeys map[int64]string
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{
		users:   make(map[int64]*model.User),
		subKeys: make(map[int64]string),
	}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetUser(ctx context.Context, tgID int64) (*model.User, error) {
	u, ok := f.users[tgID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUsers) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	for _, u := range f.users {
		if u.ReferralCode == code {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) CreateUser(ctx context.Context, user *model.User) error {
	for _, u := range f.users {
		if u.ReferralCode == user.ReferralCode {
			return repository.ErrReferralCodeTaken
		}
	}
	if _, ok := f.users[user.ID]; ok {
		return nil
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUsers) SetReferredBy(ctx context.Context, tgID int64, code string) error {
	u, ok := f.users[tgID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if u.ReferredBy != nil && *u.ReferredBy != "" {
		return repository.ErrAlreadyReferred
	}
	u.ReferredBy = &code
	return nil
}

func (f *fakeUsers) IncrementReferralCount(ctx context.Context, tgID int64) (int, error) {
	u, ok := f.users[tgID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	u.ReferralCount++
	return u.ReferralCount, nil
}

func (f *fakeUsers) AddBalanceDays(ctx context.Context, tgID int64, days int) error {
	u, ok := f.users[tgID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.BalanceDays += days
	return nil
}

func (f *fakeUsers) DeductBalanceDays(ctx context.Context, tgID int64, days int) error {
	u, ok := f.users[tgID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if u.BalanceDays < days {
		return repository.ErrInsufficientBalance
	}
	u.BalanceDays -= days
	return nil
}

func (f *fakeUsers) RecordUserPayment(ctx context.Context, tgID int64, paidAt int64) error {
	u, ok := f.users[tgID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PaidCount++
	u.LastPaymentAt = &paidAt
	return nil
}

func (f *fakeUsers) SetTrialUsed(ctx context.Context, tgID int64) error {
	u, ok := f.users[tgID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.TrialUsed = true
	return nil
}

func (f *fakeUsers) SetEmail(ctx context.Context, tgID int64, email string) error {
	u, ok := f.users[tgID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Email = &email
	return nil
}

func (f *fakeUsers) GetOrCreateSubKey(ctx context.Context, tgID int64) (string, error) {
	if key, ok := f.subKeys[tgID]; ok {
		return key, nil
	}
	key := uuid.New().String()
	f.subKeys[tgID] = key
	return key, nil
}

func (f *fakeUsers) UserBySubKey(ctx context.Context, subKey string) (int64, error) {
	for id, key := range f.subKeys {
		if key == subKey {
			return id, nil
		}
	}
	return 0, repository.ErrSubKeyNotFound
}

func (f *fakeUsers) CountUsers(ctx context.Context) (int64, error) {
	return int64(len(f.users)), nil
}

func (f *fakeUsers) AllUserIDs(ctx context.Context) ([]int64, error) {
	var out []int64
	for id := range f.users {
		out = append(out, id)
	}
	return out, nil
}

type fakeInvoices struct {
	invoices map[uuid.UUID]*model.Invoice
}

func newFakeInvoices() *fakeInvoices {
	return &fakeInvoices{invoices: make(map[uuid.UUID]*model.Invoice)}
}

func (f *fakeInvoices) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	copied := *inv
	copied.CreatedAt = time.Now()
	f.invoices[inv.ID] = &copied
	return nil
}

func (f *fakeInvoices) InvoiceByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, repository.ErrInvoiceNotFound
	}
	copied := *inv
	return &copied, nil
}

func (f *fakeInvoices) MarkInvoice(ctx context.Context, id uuid.UUID, from, to model.InvoiceStatus) error {
	inv, ok := f.invoices[id]
	if !ok || inv.Status != from {
		return repository.ErrInvoiceNotPending
	}
	inv.Status = to
	return nil
}

func (f *fakeInvoices) SetInvoiceExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	inv, ok := f.invoices[id]
	if !ok {
		return repository.ErrInvoiceNotFound
	}
	inv.ExternalID = &externalID
	return nil
}

func (f *fakeInvoices) SetInvoiceMessageID(ctx context.Context, id uuid.UUID, messageID int) error {
	inv, ok := f.invoices[id]
	if !ok {
		return repository.ErrInvoiceNotFound
	}
	inv.MessageID = messageID
	return nil
}

func (f *fakeInvoices) PendingInvoice(ctx context.Context, tgID int64, channel model.PaymentChannel) (*model.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.UserID == tgID && inv.Channel == channel && inv.Status == model.InvoiceStatusPending {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, repository.ErrInvoiceNotFound
}

func (f *fakeInvoices) PendingCardInvoices(ctx context.Context) ([]model.Invoice, error) {
	var out []model.Invoice
	for _, inv := range f.invoices {
		if inv.Channel == model.ChannelCard && inv.Status == model.InvoiceStatusPending {
			out = append(out, *inv)
		}
	}
	return out, nil
}

type fakeTotals struct {
	totals model.PaymentTotals
}

func (f *fakeTotals) RecordPayment(ctx context.Context, channel model.PaymentChannel, amount int64) error {
	switch channel {
	case model.ChannelCard:
		f.totals.TotalCard += amount
		f.totals.CountCard++
	case model.ChannelStars:
		f.totals.TotalCredits += amount
		f.totals.CountCredits++
	}
	return nil
}

func (f *fakeTotals) PaymentTotals(ctx context.Context) (*model.PaymentTotals, error) {
	copied := f.totals
	return &copied, nil
}

type panelCall struct {
	op     string
	region string
	uid    string
	expiry int64
}

type fakePanel struct {
	calls     []panelCall
	enableErr map[string]error // keyed by region
	updateErr error
}

func newFakePanel() *fakePanel {
	return &fakePanel{enableErr: make(map[string]error)}
}

func (f *fakePanel) EnableClient(ctx context.Context, region, uid string, expiryMs int64) error {
	if err := f.enableErr[region]; err != nil {
		return err
	}
	f.calls = append(f.calls, panelCall{op: "enable", region: region, uid: uid, expiry: expiryMs})
	return nil
}

func (f *fakePanel) DisableClient(ctx context.Context, region, uid string) error {
	f.calls = append(f.calls, panelCall{op: "disable", region: region, uid: uid})
	return nil
}

func (f *fakePanel) UpdateClientExpiry(ctx context.Context, region, uid string, expiryMs int64) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.calls = append(f.calls, panelCall{op: "update", region: region, uid: uid, expiry: expiryMs})
	return nil
}

func (f *fakePanel) ops() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, fmt.Sprintf("%s:%s", c.op, c.uid))
	}
	return out
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	sent    []sentMessage
	edited  []sentMessage
	deleted []int
}

func (f *fakeNotifier) SendMessage(chatID int64, text string) error {
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeNotifier) EditMessage(chatID int64, messageID int, text string) error {
	f.edited = append(f.edited, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeNotifier) DeleteMessage(chatID int64, messageID int) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}
