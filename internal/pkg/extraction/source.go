package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/disintegration/imaging"

	"github.com/ManuelReschke/ReceiptFox/internal/pkg/upload"
)

const (
	maxSourceBytes = 20 << 20
	maxImageSide   = 1600
)

// ObjectFetcher downloads files that live in the receipt bucket. ok is false for foreign URLs.
type ObjectFetcher interface {
	Fetch(ctx context.Context, fileURL string) (body []byte, contentType string, ok bool, err error)
}

// Source is a downloaded receipt ready to attach to a model request
type Source struct {
	MimeType string
	Data     []byte
	Filename string
}

// DataURL encodes the source as an RFC 2397 data URL
func (s *Source) DataURL() string {
	return "data:" + s.MimeType + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}

func (s *Source) IsPDF() bool {
	return upload.IsPDF(s.Filename, s.MimeType)
}

// ErrBlockedAddress is returned when a file URL resolves to a loopback, private or link-local address
var ErrBlockedAddress = errors.New("file host resolves to a non-public address")

// Loader fetches a receipt file through the object store or plain HTTP and prepares it
type Loader struct {
	objects    ObjectFetcher
	httpClient *http.Client
}

// NewLoader creates a loader. objects may be nil when no bucket is configured.
// Plain HTTP downloads only connect to public addresses; bucket files go through objects.
func NewLoader(objects ObjectFetcher, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: publicAddressOnly,
	}
	return &Loader{
		objects: objects,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// publicAddressOnly runs after name resolution, so it also covers redirects and DNS names
// pointing at internal hosts.
func publicAddressOnly(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast())
}

// Load downloads, sniffs and downsizes the file
func (l *Loader) Load(ctx context.Context, fileURL, filename string) (*Source, error) {
	body, err := l.download(ctx, fileURL)
	if err != nil {
		return nil, Fail(StageFetch, err)
	}

	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	mime, err := upload.ValidateReceiptBySniff(filename, head)
	if err != nil {
		return nil, Fail(StageSource, err)
	}

	src := &Source{MimeType: mime, Data: body, Filename: filename}
	if src.IsPDF() {
		return src, nil
	}
	return downscale(src), nil
}

func (l *Loader) download(ctx context.Context, fileURL string) ([]byte, error) {
	if l.objects != nil {
		body, _, ok, err := l.objects.Fetch(ctx, fileURL)
		if ok {
			return body, err
		}
	}

	u, err := url.Parse(fileURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported file URL scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxSourceBytes {
		return nil, fmt.Errorf("receipt file exceeds %d bytes", maxSourceBytes)
	}
	return body, nil
}

// downscale re-encodes large images as JPEG. Formats imaging cannot decode are passed through.
func downscale(src *Source) *Source {
	img, err := imaging.Decode(bytes.NewReader(src.Data), imaging.AutoOrientation(true))
	if err != nil {
		return src
	}
	b := img.Bounds()
	if b.Dx() <= maxImageSide && b.Dy() <= maxImageSide && src.MimeType == "image/jpeg" {
		return src
	}

	resized := imaging.Fit(img, maxImageSide, maxImageSide, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return src
	}
	return &Source{MimeType: "image/jpeg", Data: buf.Bytes(), Filename: src.Filename}
}
