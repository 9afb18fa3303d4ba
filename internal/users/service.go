package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raagalabs/swarasheet/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultOTPTTL = 5 * time.Minute

var (
	// ErrInvalidPhoneNumber indicates a blank phone number.
	ErrInvalidPhoneNumber = errors.New("users: phone number required")
	// ErrInvalidCode indicates a missing, consumed, or mismatched login code.
	ErrInvalidCode = errors.New("users: invalid otp code")
	// ErrCodeExpired indicates a login code past its expiry.
	ErrCodeExpired = errors.New("users: otp code expired")
	// ErrSignupDisabled indicates a first-time phone number while
	// auto-provisioning is switched off.
	ErrSignupDisabled = errors.New("users: signup disabled")
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("users: user not found")
)

// IDProvider issues unique user identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  IDProvider
	Codes       auth.CodeSource
	Deliverer   auth.Deliverer
	OTPTTL      time.Duration
	AllowSignup bool
	Logger      *zap.Logger
}

// Service manages accounts, login challenges, and favorite songs.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	idProvider  IDProvider
	codes       auth.CodeSource
	deliverer   auth.Deliverer
	otpTTL      time.Duration
	allowSignup bool
	logger      *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	if cfg.Codes == nil {
		return nil, fmt.Errorf("users: code source required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	deliverer := cfg.Deliverer
	if deliverer == nil {
		deliverer = auth.NewLogDeliverer(cfg.Logger)
	}
	ttl := cfg.OTPTTL
	if ttl <= 0 {
		ttl = defaultOTPTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:          cfg.Database,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		codes:       cfg.Codes,
		deliverer:   deliverer,
		otpTTL:      ttl,
		allowSignup: cfg.AllowSignup,
		logger:      logger,
	}, nil
}

// StartLogin generates a login code for the phone number, stores the
// challenge, and hands the code to the deliverer. Any previous pending
// challenge for the number is replaced.
func (s *Service) StartLogin(ctx context.Context, phoneNumber string) error {
	phone := normalize(phoneNumber)
	if phone == "" {
		return ErrInvalidPhoneNumber
	}

	code, err := s.codes.Code()
	if err != nil {
		return fmt.Errorf("users: generate otp code: %w", err)
	}

	challenge := OTPChallenge{
		PhoneNumber: phone,
		Code:        code,
		ExpiresAt:   s.clock().UTC().Add(s.otpTTL),
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Save(&challenge).Error; err != nil {
		s.logger.Error("otp challenge save failed", zap.Error(err))
		return fmt.Errorf("users: store otp challenge: %w", err)
	}

	return s.deliverer.Deliver(ctx, phone, code)
}

// VerifyLogin checks the code against the pending challenge for the phone
// number, consuming the challenge on success. A previously-unseen number
// is auto-provisioned with a name derived from its last four digits when
// signup is allowed.
func (s *Service) VerifyLogin(ctx context.Context, phoneNumber, code string) (User, error) {
	phone := normalize(phoneNumber)
	if phone == "" {
		return User{}, ErrInvalidPhoneNumber
	}
	if normalize(code) == "" {
		return User{}, ErrInvalidCode
	}

	var user User
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var challenge OTPChallenge
		err := tx.Where("phone_number = ?", phone).Take(&challenge).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCode
		}
		if err != nil {
			return fmt.Errorf("users: load otp challenge: %w", err)
		}
		if s.clock().UTC().After(challenge.ExpiresAt) {
			_ = tx.Delete(&OTPChallenge{}, "phone_number = ?", phone).Error
			return ErrCodeExpired
		}
		if challenge.Code != normalize(code) {
			return ErrInvalidCode
		}
		if err := tx.Delete(&OTPChallenge{}, "phone_number = ?", phone).Error; err != nil {
			return fmt.Errorf("users: consume otp challenge: %w", err)
		}

		err = tx.Where("phone_number = ?", phone).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if !s.allowSignup {
				return ErrSignupDisabled
			}
			userID, idErr := s.idProvider.NewID()
			if idErr != nil {
				return fmt.Errorf("users: generate user id: %w", idErr)
			}
			user = User{
				UserID:      userID,
				Name:        displayNameFor(phone),
				PhoneNumber: phone,
				IsAdmin:     false,
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("users: provision user: %w", err)
			}
			s.logger.Info("user provisioned",
				zap.String("user_id", user.UserID),
				zap.String("phone_number", phone))
			return nil
		}
		if err != nil {
			return fmt.Errorf("users: load user: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return User{}, txErr
	}
	return user, nil
}

// GetByID loads one user record.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: load user: %w", err)
	}
	return user, nil
}

// ToggleFavorite flips the membership of songID in the user's favorite
// set and returns the updated set. Two sequential toggles restore the
// original set.
func (s *Service) ToggleFavorite(ctx context.Context, userID, songID string) ([]string, error) {
	if normalize(songID) == "" {
		return nil, fmt.Errorf("users: song id required")
	}

	var favorites []string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.Where("user_id = ?", userID).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("users: load user: %w", err)
		}

		var existing Favorite
		err = tx.Where("user_id = ? AND song_id = ?", userID, songID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			favorite := Favorite{UserID: userID, SongID: songID, CreatedAt: s.clock().UTC()}
			if err := tx.Create(&favorite).Error; err != nil {
				return fmt.Errorf("users: add favorite: %w", err)
			}
		case err != nil:
			return fmt.Errorf("users: load favorite: %w", err)
		default:
			if err := tx.Delete(&Favorite{}, "user_id = ? AND song_id = ?", userID, songID).Error; err != nil {
				return fmt.Errorf("users: remove favorite: %w", err)
			}
		}

		favorites, err = listFavorites(tx, userID)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}
	return favorites, nil
}

// ListFavorites returns the user's favorite song ids, oldest first.
func (s *Service) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	return listFavorites(s.db.WithContext(ctx), userID)
}

func listFavorites(tx *gorm.DB, userID string) ([]string, error) {
	var records []Favorite
	if err := tx.
		Where("user_id = ?", userID).
		Order("created_at ASC, song_id ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("users: list favorites: %w", err)
	}
	favorites := make([]string, 0, len(records))
	for _, record := range records {
		favorites = append(favorites, record.SongID)
	}
	return favorites, nil
}
