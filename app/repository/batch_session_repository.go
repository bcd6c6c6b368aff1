package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ReceiptFox/app/models"
)

// batchSessionRepository implements the BatchSessionRepository interface
type batchSessionRepository struct {
	db *gorm.DB
}

// NewBatchSessionRepository creates a new batch session repository instance
func NewBatchSessionRepository(db *gorm.DB) BatchSessionRepository {
	return &batchSessionRepository{db: db}
}

func (r *batchSessionRepository) Create(ctx context.Context, session *models.BatchSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *batchSessionRepository) GetByID(ctx context.Context, id uint) (*models.BatchSession, error) {
	var s models.BatchSession
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translateSessionErr(err)
	}
	return &s, nil
}

func (r *batchSessionRepository) GetBySessionID(ctx context.Context, userID uint, sessionID string) (*models.BatchSession, error) {
	var s models.BatchSession
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&s).Error
	if err != nil {
		return nil, translateSessionErr(err)
	}
	return &s, nil
}

func (r *batchSessionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*models.BatchSession, error) {
	if paymentID == "" {
		return nil, ErrSessionNotFound
	}
	var s models.BatchSession
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&s).Error; err != nil {
		return nil, translateSessionErr(err)
	}
	return &s, nil
}

func (r *batchSessionRepository) ListByUser(ctx context.Context, userID uint, offset, limit int) ([]models.BatchSession, error) {
	var sessions []models.BatchSession
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func (r *batchSessionRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.BatchSession, error) {
	var sessions []models.BatchSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.BatchStatusProcessing, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// UpdateLocked serializes concurrent writers of one session. A second caller for the same row
// blocks on the row lock until the first transaction commits, then reads the committed files.
func (r *batchSessionRepository) UpdateLocked(ctx context.Context, id uint, fn func(session *models.BatchSession) (bool, error)) (*models.BatchSession, error) {
	var out models.BatchSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.BatchSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error; err != nil {
			return translateSessionErr(err)
		}

		changed, err := fn(&s)
		if err != nil {
			return err
		}
		if changed {
			err := tx.Model(&models.BatchSession{ID: s.ID}).Updates(map[string]interface{}{
				"files":  s.Files,
				"status": s.Status,
			}).Error
			if err != nil {
				return err
			}
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *batchSessionRepository) SetPaymentID(ctx context.Context, id uint, paymentID string) error {
	res := r.db.WithContext(ctx).Model(&models.BatchSession{}).
		Where("id = ?", id).
		Update("payment_id", paymentID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// MarkPaid records the payment once; repeated webhooks keep the first paid_at
func (r *batchSessionRepository) MarkPaid(ctx context.Context, id uint, paymentID string, paidAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.BatchSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error; err != nil {
			return translateSessionErr(err)
		}
		if s.PaidAt != nil {
			return nil
		}
		return tx.Model(&models.BatchSession{ID: s.ID}).Updates(map[string]interface{}{
			"payment_id": paymentID,
			"paid_at":    paidAt,
		}).Error
	})
}

func translateSessionErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	return err
}
