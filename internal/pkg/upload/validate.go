package upload

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

var allowedExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".pdf":  "application/pdf",
}

var allowedMime = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

var (
	ErrUnsupportedExtension = errors.New("only JPG, JPEG, PNG, GIF, WEBP, HEIC and PDF receipts are supported")
	ErrScriptableContent    = errors.New("HTML, XML and SVG content is not allowed")
	ErrUnsupportedContent   = errors.New("file content does not match a supported receipt type")
)

// ValidateReceiptName checks the file extension against the receipt whitelist
func ValidateReceiptName(filename string) error {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if _, ok := allowedExt[ext]; !ok {
		return ErrUnsupportedExtension
	}
	return nil
}

// ContentTypeFor returns the content type implied by the extension, or "" if not allowed
func ContentTypeFor(filename string) string {
	return allowedExt[strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))]
}

// IsPDF reports whether the name or detected mime denotes a PDF
func IsPDF(filename, mime string) bool {
	return mime == "application/pdf" || strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// ValidateReceiptBySniff checks the provided filename (extension) and the first bytes (head)
// against the receipt whitelist. Returns detected mime or an error.
func ValidateReceiptBySniff(filename string, head []byte) (string, error) {
	if err := ValidateReceiptName(filename); err != nil {
		return "", err
	}

	detected := http.DetectContentType(head)
	if i := strings.Index(detected, ";"); i >= 0 {
		detected = detected[:i]
	}

	if strings.HasPrefix(detected, "text/html") || strings.HasPrefix(detected, "application/xhtml") {
		return "", ErrScriptableContent
	}
	if strings.HasPrefix(detected, "text/xml") || strings.HasPrefix(detected, "application/xml") || detected == "image/svg+xml" {
		return "", ErrScriptableContent
	}

	// HEIC is not sniffed by net/http; trust the extension
	if detected == "application/octet-stream" {
		return ContentTypeFor(filename), nil
	}

	if allowedMime[detected] {
		return detected, nil
	}
	return "", ErrUnsupportedContent
}
