package models

import (
	"strings"
	"time"
)

type ReceiptStatus string

const (
	ReceiptStatusPending   ReceiptStatus = "pending"
	ReceiptStatusCompleted ReceiptStatus = "completed"
)

const (
	FlagExtractionFailed = "extraction_failed"
	FlagFromCache        = "from_cache"
	FlagLowConfidence    = "low_confidence"
)

// LowConfidenceThreshold marks extractions that should be reviewed by the user
const LowConfidenceThreshold = 0.5

// Receipt is a single-file extraction owned by one user
type Receipt struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	UserID      uint          `gorm:"index;not null" json:"-"`
	Status      ReceiptStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Merchant    string        `gorm:"type:varchar(255)" json:"merchant"`
	Amount      string        `gorm:"type:varchar(32)" json:"amount"`
	Category    string        `gorm:"type:varchar(100)" json:"category"`
	ReceiptDate string        `gorm:"type:varchar(10)" json:"date"`
	Currency    string        `gorm:"type:varchar(3)" json:"currency"`
	Confidence  float64       `json:"confidence"`
	DateSource  string        `gorm:"type:varchar(20)" json:"dateSource"`
	Flags       string        `gorm:"type:varchar(255);default:''" json:"-"`
	FileURL     string        `gorm:"type:text" json:"fileUrl"`
	FileName    string        `gorm:"type:varchar(255)" json:"fileName"`
	Note        string        `gorm:"type:text" json:"note"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

// NewPendingReceipt returns a placeholder receipt awaiting extraction
func NewPendingReceipt(userID uint, ref FileRef) *Receipt {
	return &Receipt{
		UserID:      userID,
		Status:      ReceiptStatusPending,
		Merchant:    "Processing...",
		Amount:      "0.00",
		Category:    "Other",
		ReceiptDate: time.Now().UTC().Format("2006-01-02"),
		Currency:    "USD",
		FileURL:     strings.TrimSpace(ref.URL),
		FileName:    strings.TrimSpace(ref.Name),
	}
}

// Complete copies extracted data into the receipt and marks it completed
func (r *Receipt) Complete(data ExtractedData) {
	r.Status = ReceiptStatusCompleted
	r.Merchant = data.MerchantName
	r.Amount = data.Amount
	r.Category = data.Category
	r.ReceiptDate = data.ReceiptDate
	r.Currency = data.Currency
	r.Confidence = data.Confidence
	r.DateSource = data.DateSource
	if r.Note == "" {
		r.Note = data.Notes
	}
	if data.Confidence < LowConfidenceThreshold {
		r.AddFlag(FlagLowConfidence)
	}
}

// FlagList returns the flags as a slice
func (r *Receipt) FlagList() []string {
	out := []string{}
	for _, f := range strings.Split(r.Flags, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func (r *Receipt) HasFlag(flag string) bool {
	for _, f := range r.FlagList() {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag appends a flag once
func (r *Receipt) AddFlag(flag string) {
	flag = strings.TrimSpace(flag)
	if flag == "" || r.HasFlag(flag) {
		return
	}
	r.Flags = strings.Join(append(r.FlagList(), flag), ",")
}
