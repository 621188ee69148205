// Package accounts owns user lookup and registration.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"voice-broker-go/internal/faults"
	"voice-broker-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = faults.New(faults.NotFound, "user_not_found", "user not found")
	ErrInvalidUser  = faults.New(faults.Validation, "invalid_user", "invalid user")
	ErrPhoneTaken   = faults.New(faults.Validation, "phone_taken", "phone number already registered")
)

// Store reads and creates users.
type Store struct {
	db           *gorm.DB
	startingCash decimal.Decimal
	demoCash     decimal.Decimal
	logger       *zap.Logger
}

// NewStore creates a user store. startingCash funds registered users; demoCash funds
// users created for unrecognized callers.
func NewStore(db *gorm.DB, startingCash, demoCash decimal.Decimal, logger *zap.Logger) *Store {
	return &Store{db: db, startingCash: startingCash, demoCash: demoCash, logger: logger.Named("accounts")}
}

// FindByID returns the user or an error wrapping ErrUserNotFound.
func (s *Store) FindByID(ctx context.Context, id string) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("empty user id: %w", ErrUserNotFound)
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user "+id)
	}
	return &user, nil
}

// FindByPhone looks a user up by E.164 phone number.
func (s *Store) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, fmt.Errorf("empty phone number: %w", ErrUserNotFound)
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "phone_number = ?", phone).Error; err != nil {
		return nil, notFound(err, "phone "+phone)
	}
	return &user, nil
}

// FindOrCreateByPhone returns the user registered under phone, creating a demo account
// for a number seen for the first time.
func (s *Store) FindOrCreateByPhone(ctx context.Context, phone string) (*models.User, bool, error) {
	user, err := s.FindByPhone(ctx, phone)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user = &models.User{
		ID:          uuid.NewString(),
		Name:        "Demo User",
		PhoneNumber: phone,
		CashBalance: s.demoCash,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, false, faults.Wrap(faults.Internal, "db_error", "failed to create demo user", err)
	}
	s.logger.Info("Created demo user for new caller", zap.String("user_id", user.ID), zap.String("phone", phone))
	return user, true, nil
}

// Register creates a user funded with the starting cash balance.
func (s *Store) Register(ctx context.Context, name, email, phone string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrInvalidUser)
	}
	if phone == "" {
		return nil, fmt.Errorf("phone number is required: %w", ErrInvalidUser)
	}

	if _, err := s.FindByPhone(ctx, phone); err == nil {
		return nil, fmt.Errorf("%s: %w", phone, ErrPhoneTaken)
	}

	user := &models.User{
		ID:          uuid.NewString(),
		Name:        name,
		Email:       strings.TrimSpace(email),
		PhoneNumber: phone,
		CashBalance: s.startingCash,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, faults.Wrap(faults.Internal, "db_error", "failed to register user", err)
	}
	s.logger.Info("Registered user", zap.String("user_id", user.ID))
	return user, nil
}

// UserUpdate carries the profile fields to change; nil leaves a field alone.
type UserUpdate struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
}

// Update changes profile fields and reports which columns were written. Balances are
// only ever moved by the ledger.
func (s *Store) Update(ctx context.Context, id string, u UserUpdate) (*models.User, []string, error) {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	changes := make(map[string]any)
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, nil, fmt.Errorf("name cannot be blank: %w", ErrInvalidUser)
		}
		changes["name"] = name
	}
	if u.Email != nil {
		changes["email"] = strings.TrimSpace(*u.Email)
	}
	if u.PhoneNumber != nil {
		phone := *u.PhoneNumber
		if phone == "" {
			return nil, nil, fmt.Errorf("phone number cannot be blank: %w", ErrInvalidUser)
		}
		if other, err := s.FindByPhone(ctx, phone); err == nil && other.ID != user.ID {
			return nil, nil, fmt.Errorf("%s: %w", phone, ErrPhoneTaken)
		}
		changes["phone_number"] = phone
	}
	if len(changes) == 0 {
		return user, nil, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(changes).Error; err != nil {
		return nil, nil, faults.Wrap(faults.Internal, "db_error", "failed to update user", err)
	}
	fields := make([]string, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	s.logger.Info("Updated user", zap.String("user_id", user.ID), zap.Strings("fields", fields))

	user, err = s.FindByID(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, fields, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrUserNotFound)
	}
	return faults.Wrap(faults.Internal, "db_error", "failed to load "+what, err)
}
