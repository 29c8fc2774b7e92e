package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/VoolFI71/zzz-sub000/internal/config"
	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/model"
	"github.com/VoolFI71/zzz-sub000/internal/repository"
)

var (
	ErrSelfReferral        = errors.New("Нельзя пригласить самого себя")
	ErrReferralAlreadyUsed = errors.New("Реферальный код уже применён")
	ErrReferralNotFound    = errors.New("Реферальный код не найден")
)

// ReferralService credits referrers with bonus days. Registration rewards are
// capped; the milestone bonus lands exactly once, at the cap.
type ReferralService struct {
	users    UserStore
	cfg      config.ReferralConfig
	log      *logger.Logger
	notifier Notifier
}

func NewReferralService(users UserStore, cfg config.ReferralConfig, log *logger.Logger) *ReferralService {
	return &ReferralService{
		users: users,
		cfg:   cfg,
		log:   log,
	}
}

func (s *ReferralService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// Bootstrap links a newly arrived user to the owner of the code and credits
// the registration reward. The referred-by write is first-wins, so a user can
// be linked at most once no matter how many codes they try.
func (s *ReferralService) Bootstrap(ctx context.Context, tgID int64, code string) error {
	user, err := s.users.GetUser(ctx, tgID)
	if err != nil {
		return err
	}
	if user.IsReferred() {
		return ErrReferralAlreadyUsed
	}
	if user.ReferralCode == code {
		return ErrSelfReferral
	}

	referrer, err := s.users.GetUserByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrReferralNotFound
		}
		return err
	}
	if referrer.ID == tgID {
		return ErrSelfReferral
	}

	if err := s.users.SetReferredBy(ctx, tgID, code); err != nil {
		if errors.Is(err, repository.ErrAlreadyReferred) {
			return ErrReferralAlreadyUsed
		}
		return err
	}

	count, err := s.users.IncrementReferralCount(ctx, referrer.ID)
	if err != nil {
		return err
	}

	reward := registrationReward(count, s.cfg.Cap, s.cfg.PerReferralDays, s.cfg.MilestoneDays)
	if reward == 0 {
		return nil
	}

	if err := s.users.AddBalanceDays(ctx, referrer.ID, reward); err != nil {
		return fmt.Errorf("credit referrer %d: %w", referrer.ID, err)
	}

	s.log.Infow("referral credited", "referrer", referrer.ID, "referred", tgID, "count", count, "days", reward)
	if s.notifier != nil {
		text := fmt.Sprintf("🎉 По вашей ссылке зарегистрировался новый пользователь!\nНа баланс начислено %d дн.", reward)
		_ = s.notifier.SendMessage(referrer.ID, text)
	}
	return nil
}

// PaidBonus credits the referrer when their referral pays for a tariff.
func (s *ReferralService) PaidBonus(ctx context.Context, payer *model.User, days int) error {
	if !payer.IsReferred() || s.cfg.PaidBonusDivisor <= 0 {
		return nil
	}
	bonus := days / s.cfg.PaidBonusDivisor
	if bonus <= 0 {
		return nil
	}

	referrer, err := s.users.GetUserByReferralCode(ctx, *payer.ReferredBy)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	if err := s.users.AddBalanceDays(ctx, referrer.ID, bonus); err != nil {
		return fmt.Errorf("credit paid bonus to %d: %w", referrer.ID, err)
	}

	s.log.Infow("paid referral bonus credited", "referrer", referrer.ID, "payer", payer.ID, "days", bonus)
	if s.notifier != nil {
		text := fmt.Sprintf("💸 Ваш реферал оплатил подписку!\nНа баланс начислено %d дн.", bonus)
		_ = s.notifier.SendMessage(referrer.ID, text)
	}
	return nil
}

// Link builds the personal invite link for the user.
func (s *ReferralService) Link(botUsername, code string) string {
	return "https://t.me/" + botUsername + "?start=ref_" + code
}

// registrationReward is the bonus for the n-th referral: a fixed amount up to
// the cap, plus the milestone exactly at the cap. Total over n referrals is
// per*min(n,cap) + milestone when the cap is reached.
func registrationReward(n, cap, per, milestone int) int {
	if n > cap {
		return 0
	}
	reward := per
	if n == cap {
		reward += milestone
	}
	return reward
}
