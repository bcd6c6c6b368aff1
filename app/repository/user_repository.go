package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ReceiptFox/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByAPIKeyHash resolves an active API key hash to its user and user settings.
func (r *userRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, *models.UserSettings, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, nil, gorm.ErrRecordNotFound
	}
	var settings models.UserSettings
	db := r.db.WithContext(ctx)
	query := db.Where("api_key_hash = ? AND api_key_hash <> '' AND api_key_revoked_at IS NULL", trimmed)
	if err := query.First(&settings).Error; err != nil {
		return nil, nil, err
	}
	var user models.User
	if err := db.First(&user, settings.UserID).Error; err != nil {
		return nil, nil, err
	}
	return &user, &settings, nil
}

// GetSettings returns the settings row, creating defaults on first access
func (r *userRepository) GetSettings(ctx context.Context, userID uint) (*models.UserSettings, error) {
	return models.GetOrCreateUserSettings(r.db.WithContext(ctx), userID)
}

func (r *userRepository) SaveSettings(ctx context.Context, settings *models.UserSettings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}

// TouchAPIKey records the last use of an API key without bumping updated_at
func (r *userRepository) TouchAPIKey(ctx context.Context, settingsID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.UserSettings{}).
		Where("id = ?", settingsID).
		UpdateColumn("api_key_last_used_at", at).Error
}

func (r *userRepository) IncrementUsage(ctx context.Context, userID uint, counter UsageCounter, n int) (*models.UserSettings, error) {
	if counter != UsageReceipts && counter != UsageExports {
		return nil, fmt.Errorf("unknown usage counter %q", counter)
	}

	var out models.UserSettings
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var us models.UserSettings
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&us).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			us = models.UserSettings{UserID: userID, Plan: "free", UsagePeriod: models.UsagePeriodFor(time.Now())}
			if err := tx.Create(&us).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		us.RollUsagePeriod(time.Now())
		switch counter {
		case UsageReceipts:
			us.ReceiptsUsed += n
		case UsageExports:
			us.ExportsUsed += n
		}

		err = tx.Model(&models.UserSettings{ID: us.ID}).Updates(map[string]interface{}{
			"usage_period":  us.UsagePeriod,
			"receipts_used": us.ReceiptsUsed,
			"exports_used":  us.ExportsUsed,
		}).Error
		if err != nil {
			return err
		}
		out = us
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
