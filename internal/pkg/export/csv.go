package export

import (
	"bufio"
	"io"
	"strings"
)

// WriteCSV writes the header and rows. Every field is quoted and embedded quotes are doubled.
func WriteCSV(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	if err := writeRecord(bw, Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writeRecord(bw, r.Values()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quote(f)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
