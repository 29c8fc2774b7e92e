package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"

	"github.com/VoolFI71/zzz-sub000/internal/logger"
	"github.com/VoolFI71/zzz-sub000/internal/model"
	"github.com/VoolFI71/zzz-sub000/internal/repository"
)

var ErrInvalidEmail = errors.New("Некорректный адрес почты")

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type UserService struct {
	users UserStore
	log   *logger.Logger
}

func NewUserService(users UserStore, log *logger.Logger) *UserService {
	return &UserService{users: users, log: log}
}

type TelegramUser struct {
	ID        int64
	Username  *string
	FirstName *string
}

// GetOrCreateUser registers the user on first contact, minting a unique
// numeric referral code. Returns whether the user was just created.
func (s *UserService) GetOrCreateUser(ctx context.Context, tu TelegramUser) (*model.User, bool, error) {
	user, err := s.users.GetUser(ctx, tu.ID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, false, err
	}

	for attempt := 0; attempt < 5; attempt++ {
		newUser := &model.User{
			ID:           tu.ID,
			Username:     tu.Username,
			FirstName:    tu.FirstName,
			ReferralCode: generateReferralCode(),
		}
		err = s.users.CreateUser(ctx, newUser)
		if err == nil {
			// re-read: a concurrent /start may have won the insert
			user, err = s.users.GetUser(ctx, tu.ID)
			if err != nil {
				return nil, false, err
			}
			return user, user.ReferralCode == newUser.ReferralCode, nil
		}
		if !errors.Is(err, repository.ErrReferralCodeTaken) {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("failed to mint referral code: %w", err)
}

func (s *UserService) GetUser(ctx context.Context, tgID int64) (*model.User, error) {
	return s.users.GetUser(ctx, tgID)
}

func (s *UserService) SetEmail(ctx context.Context, tgID int64, email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return s.users.SetEmail(ctx, tgID, email)
}

// SubscriptionKey returns the user's stable key for the subscription endpoint.
func (s *UserService) SubscriptionKey(ctx context.Context, tgID int64) (string, error) {
	return s.users.GetOrCreateSubKey(ctx, tgID)
}

// ResolveSubKey maps a subscription key back to its owner.
func (s *UserService) ResolveSubKey(ctx context.Context, subKey string) (int64, error) {
	return s.users.UserBySubKey(ctx, subKey)
}

func (s *UserService) CountUsers(ctx context.Context) (int64, error) {
	return s.users.CountUsers(ctx)
}

// AllIDs lists every registered chat id, for broadcasts.
func (s *UserService) AllIDs(ctx context.Context) ([]int64, error) {
	return s.users.AllUserIDs(ctx)
}

// generateReferralCode returns an 11-digit numeric code in [10^10, 2*10^10).
func generateReferralCode() string {
	const base = int64(10_000_000_000)
	return strconv.FormatInt(base+rand.Int63n(base), 10)
}
