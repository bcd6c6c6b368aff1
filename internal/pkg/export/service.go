package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReceiptFox/app/models"
	"github.com/ManuelReschke/ReceiptFox/app/repository"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/entitlements"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

var ErrPDFDisabled = errors.New("pdf export is disabled")

// ParseFormat defaults to CSV
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", apperr.Validation("unsupported export format", "format: must be one of csv, xlsx, pdf")
}

// File is a rendered export
type File struct {
	Name        string
	ContentType string
	Body        []byte
	Rows        int
}

// SessionReader loads an owned batch session
type SessionReader interface {
	GetBySessionID(ctx context.Context, userID uint, sessionID string) (*models.BatchSession, error)
}

// ReceiptLister lists completed receipts of a user
type ReceiptLister interface {
	ListCompletedByUser(ctx context.Context, userID uint, from, to *time.Time) ([]models.Receipt, error)
}

// Quota is the export quota collaborator
type Quota interface {
	CheckExport(ctx context.Context, userID uint) error
	RecordExport(ctx context.Context, userID uint) error
	Plan(ctx context.Context, userID uint) (entitlements.Plan, error)
}

// Filter bounds a per-user export by receipt date
type Filter struct {
	From *time.Time
	To   *time.Time
}

type Service struct {
	sessions SessionReader
	receipts ReceiptLister
	quota    Quota
	now      func() time.Time
}

func NewService(sessions SessionReader, receipts ReceiptLister, quota Quota) *Service {
	return &Service{sessions: sessions, receipts: receipts, quota: quota, now: time.Now}
}

// ExportBatch exports a paid, terminal batch owned by userID
func (s *Service) ExportBatch(ctx context.Context, userID uint, sessionID string, format Format) (*File, error) {
	session, err := s.sessions.GetBySessionID(ctx, userID, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, apperr.NotFound("batch session not found")
	}
	if err != nil {
		return nil, apperr.Downstream("failed to load batch session", err)
	}
	if !session.IsPaid() {
		return nil, apperr.PaymentRequired("batch export requires payment")
	}
	if !session.Status.IsTerminal() {
		return nil, apperr.Validation("batch is still processing")
	}

	file, err := render(RowsFromBatch(session), format, "receipts-batch-"+session.SessionID)
	if err != nil {
		return nil, err
	}
	log.Infof("[Export] Batch %s exported as %s (%d rows)", session.SessionID, format, file.Rows)
	return file, nil
}

// ExportReceipts exports the caller's completed receipts and counts one export against the plan
func (s *Service) ExportReceipts(ctx context.Context, userID uint, format Format, filter Filter) (*File, error) {
	if format == FormatXLSX {
		plan, err := s.quota.Plan(ctx, userID)
		if err != nil {
			return nil, err
		}
		if _, xlsx := entitlements.AllowedExportFormats(plan); !xlsx {
			return nil, apperr.PaymentRequired("xlsx export requires a premium plan")
		}
	}
	if err := s.quota.CheckExport(ctx, userID); err != nil {
		return nil, err
	}

	receipts, err := s.receipts.ListCompletedByUser(ctx, userID, filter.From, filter.To)
	if err != nil {
		return nil, apperr.Downstream("failed to load receipts", err)
	}

	file, err := render(RowsFromReceipts(receipts), format, "receipts-"+s.now().UTC().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	if err := s.quota.RecordExport(ctx, userID); err != nil {
		log.Errorf("[Export] Failed to record export for user %d: %v", userID, err)
	}
	return file, nil
}

func render(rows []Row, format Format, baseName string) (*File, error) {
	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		if err := WriteCSV(&buf, rows); err != nil {
			return nil, apperr.Downstream("failed to render csv", err)
		}
		return &File{Name: baseName + ".csv", ContentType: "text/csv", Body: buf.Bytes(), Rows: len(rows)}, nil
	case FormatXLSX:
		buf, err := WriteXLSX(rows)
		if err != nil {
			return nil, apperr.Downstream("failed to render xlsx", err)
		}
		return &File{
			Name:        baseName + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Body:        buf.Bytes(),
			Rows:        len(rows),
		}, nil
	case FormatPDF:
		return nil, apperr.New(apperr.KindNotImplemented, "pdf export is not available", ErrPDFDisabled)
	}
	return nil, apperr.Validation(fmt.Sprintf("unsupported export format %q", format))
}
