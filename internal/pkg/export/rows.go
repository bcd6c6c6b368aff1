package export

import (
	"strconv"
	"time"

	"github.com/ManuelReschke/ReceiptFox/app/models"
)

// Columns is the fixed column order of every export
var Columns = []string{"id", "date", "merchant", "category", "amount", "currency", "note", "file_url", "created_at"}

// Row is one exported receipt
type Row struct {
	ID        string
	Date      string
	Merchant  string
	Category  string
	Amount    string
	Currency  string
	Note      string
	FileURL   string
	CreatedAt time.Time
}

// Values returns the row in column order
func (r Row) Values() []string {
	return []string{
		r.ID,
		r.Date,
		r.Merchant,
		r.Category,
		r.Amount,
		r.Currency,
		r.Note,
		r.FileURL,
		r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// RowsFromBatch keeps only completed files that carry data, in submission order
func RowsFromBatch(s *models.BatchSession) []Row {
	files := s.CompletedFiles()
	rows := make([]Row, 0, len(files))
	for _, f := range files {
		d := f.ExtractedData
		rows = append(rows, Row{
			ID:        f.ID,
			Date:      d.ReceiptDate,
			Merchant:  d.MerchantName,
			Category:  d.Category,
			Amount:    d.Amount,
			Currency:  d.Currency,
			Note:      d.Notes,
			FileURL:   f.URL,
			CreatedAt: s.CreatedAt,
		})
	}
	return rows
}

// RowsFromReceipts converts completed receipts; pending ones are skipped
func RowsFromReceipts(receipts []models.Receipt) []Row {
	rows := make([]Row, 0, len(receipts))
	for _, r := range receipts {
		if r.Status != models.ReceiptStatusCompleted {
			continue
		}
		rows = append(rows, Row{
			ID:        strconv.FormatUint(uint64(r.ID), 10),
			Date:      r.ReceiptDate,
			Merchant:  r.Merchant,
			Category:  r.Category,
			Amount:    r.Amount,
			Currency:  r.Currency,
			Note:      r.Note,
			FileURL:   r.FileURL,
			CreatedAt: r.CreatedAt,
		})
	}
	return rows
}
