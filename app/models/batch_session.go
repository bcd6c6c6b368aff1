package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BatchStatus is the aggregate state of a batch session
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// IsTerminal reports whether no further transition can happen
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// FileStatus is the per-file state inside a batch. Pending is the only non-terminal state.
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"
	FileStatusCompleted FileStatus = "completed"
	FileStatusFailed    FileStatus = "failed"
)

func (s FileStatus) IsTerminal() bool {
	return s == FileStatusCompleted || s == FileStatusFailed
}

// MaxBatchFiles caps the number of files per batch submission
const MaxBatchFiles = 10

var (
	ErrFileIndexOutOfRange = errors.New("file index out of range")
	ErrEmptyOutcome        = errors.New("file outcome is empty")
)

// FileRef is a client-supplied reference to an uploaded receipt file
type FileRef struct {
	URL  string `json:"url" validate:"required,http_url,max=2048"`
	Name string `json:"name" validate:"required,max=255"`
}

// ExtractedData is the structured result of a receipt extraction
type ExtractedData struct {
	MerchantName string  `json:"merchant_name" validate:"required,max=255"`
	Amount       string  `json:"amount" validate:"required,numeric,max=32"`
	Category     string  `json:"category" validate:"required,max=100"`
	ReceiptDate  string  `json:"receipt_date" validate:"required,datetime=2006-01-02"`
	Currency     string  `json:"currency" validate:"required,len=3,uppercase"`
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
	DateSource   string  `json:"date_source,omitempty" validate:"omitempty,oneof=receipt upload filename"`
	Notes        string  `json:"extraction_notes,omitempty" validate:"max=2000"`
}

var extractedDataValidator = validator.New()

// Validate checks the payload shape before it is allowed into a session or receipt
func (d ExtractedData) Validate() error {
	return extractedDataValidator.Struct(d)
}

// FileRecord is one entry of a batch. Its position in BatchSession.Files is its identity.
type FileRecord struct {
	ID            string         `json:"id"`
	URL           string         `json:"url"`
	Name          string         `json:"name"`
	Status        FileStatus     `json:"status"`
	ExtractedData *ExtractedData `json:"extractedData,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// FileOutcome is the terminal result for one file. Build it with CompletedOutcome or FailedOutcome.
type FileOutcome struct {
	status FileStatus
	data   *ExtractedData
	reason string
}

// CompletedOutcome validates data and wraps it as a successful outcome
func CompletedOutcome(data ExtractedData) (FileOutcome, error) {
	if err := data.Validate(); err != nil {
		return FileOutcome{}, fmt.Errorf("invalid extracted data: %w", err)
	}
	d := data
	return FileOutcome{status: FileStatusCompleted, data: &d}, nil
}

// FailedOutcome wraps an extraction failure reason
func FailedOutcome(reason string) FileOutcome {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "extraction failed"
	}
	return FileOutcome{status: FileStatusFailed, reason: reason}
}

func (o FileOutcome) Status() FileStatus { return o.status }

// Data returns a copy of the extracted data for completed outcomes, nil otherwise
func (o FileOutcome) Data() *ExtractedData {
	if o.data == nil {
		return nil
	}
	d := *o.data
	return &d
}

func (o FileOutcome) Reason() string { return o.reason }

// BatchSession is the durable record of one multi-file submission
type BatchSession struct {
	ID        uint                            `gorm:"primaryKey" json:"id"`
	SessionID string                          `gorm:"type:varchar(36);uniqueIndex;not null" json:"sessionId"`
	UserID    uint                            `gorm:"index;not null" json:"-"`
	Status    BatchStatus                     `gorm:"type:varchar(20);default:'processing';index" json:"status"`
	Files     datatypes.JSONSlice[FileRecord] `gorm:"type:json" json:"files"`
	PaymentID string                          `gorm:"type:varchar(255);default:''" json:"paymentId"`
	PaidAt    *time.Time                      `json:"paidAt"`
	CreatedAt time.Time                       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time                       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// NewBatchSession builds a processing session with one pending record per reference
func NewBatchSession(userID uint, refs []FileRef) *BatchSession {
	files := make([]FileRecord, len(refs))
	for i, ref := range refs {
		files[i] = FileRecord{
			ID:     fmt.Sprintf("file-%d", i),
			URL:    strings.TrimSpace(ref.URL),
			Name:   strings.TrimSpace(ref.Name),
			Status: FileStatusPending,
		}
	}
	return &BatchSession{
		SessionID: uuid.New().String(),
		UserID:    userID,
		Status:    BatchStatusProcessing,
		Files:     files,
	}
}

// ApplyOutcome overwrites the record at index with the outcome and recomputes the aggregate status.
// It is the only mutation path for Files. Once the session is terminal it returns false and changes nothing.
func (s *BatchSession) ApplyOutcome(index int, outcome FileOutcome) (bool, error) {
	if index < 0 || index >= len(s.Files) {
		return false, fmt.Errorf("%w: %d (files=%d)", ErrFileIndexOutOfRange, index, len(s.Files))
	}
	if !outcome.status.IsTerminal() {
		return false, ErrEmptyOutcome
	}
	if s.Status.IsTerminal() {
		return false, nil
	}

	rec := s.Files[index]
	rec.Status = outcome.status
	switch outcome.status {
	case FileStatusCompleted:
		rec.ExtractedData = outcome.Data()
		rec.Error = ""
	case FileStatusFailed:
		rec.ExtractedData = nil
		rec.Error = outcome.reason
	}
	s.Files[index] = rec
	s.Status = DeriveStatus(s.Files)
	return true, nil
}

// DeriveStatus computes the aggregate status from the per-file states
func DeriveStatus(files []FileRecord) BatchStatus {
	hasFailures := false
	for _, f := range files {
		if !f.Status.IsTerminal() {
			return BatchStatusProcessing
		}
		if f.Status == FileStatusFailed {
			hasFailures = true
		}
	}
	if hasFailures {
		return BatchStatusFailed
	}
	return BatchStatusCompleted
}

// IsPaid reports whether a one-time payment has been recorded
func (s *BatchSession) IsPaid() bool {
	return s.PaidAt != nil
}

// CompletedFiles returns the records that carry extracted data, in submission order
func (s *BatchSession) CompletedFiles() []FileRecord {
	out := make([]FileRecord, 0, len(s.Files))
	for _, f := range s.Files {
		if f.Status == FileStatusCompleted && f.ExtractedData != nil {
			out = append(out, f)
		}
	}
	return out
}

// CountByStatus returns how many files are in the given state
func (s *BatchSession) CountByStatus(status FileStatus) int {
	n := 0
	for _, f := range s.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}
