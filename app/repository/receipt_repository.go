package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ReceiptFox/app/models"
)

type receiptRepository struct {
	db *gorm.DB
}

// NewReceiptRepository creates a new receipt repository instance
func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) Create(ctx context.Context, receipt *models.Receipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}

func (r *receiptRepository) GetByID(ctx context.Context, id uint) (*models.Receipt, error) {
	var receipt models.Receipt
	if err := r.db.WithContext(ctx).First(&receipt, id).Error; err != nil {
		return nil, translateReceiptErr(err)
	}
	return &receipt, nil
}

func (r *receiptRepository) GetByIDForUser(ctx context.Context, userID, id uint) (*models.Receipt, error) {
	var receipt models.Receipt
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&receipt).Error
	if err != nil {
		return nil, translateReceiptErr(err)
	}
	return &receipt, nil
}

// Update saves the receipt by primary key
func (r *receiptRepository) Update(ctx context.Context, receipt *models.Receipt) error {
	if receipt.ID == 0 {
		return ErrReceiptNotFound
	}
	return r.db.WithContext(ctx).Save(receipt).Error
}

// ListCompletedByUser returns completed receipts, optionally bounded by receipt date (inclusive)
func (r *receiptRepository) ListCompletedByUser(ctx context.Context, userID uint, from, to *time.Time) ([]models.Receipt, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.ReceiptStatusCompleted)
	if from != nil {
		q = q.Where("receipt_date >= ?", from.Format("2006-01-02"))
	}
	if to != nil {
		q = q.Where("receipt_date <= ?", to.Format("2006-01-02"))
	}

	var receipts []models.Receipt
	err := q.Order("receipt_date DESC, id DESC").Find(&receipts).Error
	return receipts, err
}

func translateReceiptErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrReceiptNotFound
	}
	return err
}
