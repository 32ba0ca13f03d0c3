package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tartampluch/go-ketchup/internal/config"
)

// Fetcher retrieves an address book as a vCard stream.
// Import only depends on this contract so tests can feed canned bodies.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) (io.ReadCloser, error)
}

// HTTPFetcher downloads address books over HTTP(S), as exposed by CardDAV
// and WebDAV servers for a collection export.
type HTTPFetcher struct {
	Client *http.Client

	// MaxBytes bounds the body size. Zero means MaxHTTPResponseSize.
	MaxBytes int64
}

// NewHTTPFetcher returns an HTTPFetcher with the default timeout and size cap.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:   &http.Client{Timeout: config.HTTPTimeout},
		MaxBytes: config.MaxHTTPResponseSize,
	}
}

// Fetch downloads src.URL with optional basic auth.
//
// Only http and https are accepted. The returned body fails with
// ErrResponseTooLarge once the server sends more than MaxBytes, so an
// oversized export is reported instead of being imported half way.
func (f *HTTPFetcher) Fetch(ctx context.Context, src Source) (io.ReadCloser, error) {
	// Validate the URL up front; it is also needed for the redacted log form.
	u, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrInvalidURL, err)
	}
	// file:// and friends must go through Source.Path instead.
	if u.Scheme != config.SchemeHTTP && u.Scheme != config.SchemeHTTPS {
		return nil, fmt.Errorf("%s: %s", config.ErrProtocol, u.Scheme)
	}

	// Query strings may carry tokens, keep them out of the logs.
	log := slog.With(
		slog.String(config.LogKeyComponent, config.CompFetcher),
		slog.String(config.LogKeyURL, u.Scheme+"://"+u.Host+u.Path),
	)
	log.Debug(config.MsgFetchStart, slog.Bool(config.LogKeyUser, src.User != ""))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrRequestBuild, err)
	}
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)
	// CardDAV servers pick the export format from Accept.
	req.Header.Set(config.HeaderAccept, config.AcceptVCard)
	// Public exports need no credentials, so no Authorization header either.
	if src.User != "" || src.Password != "" {
		req.SetBasicAuth(src.User, src.Password)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrNetwork, err)
	}
	// Anything but 200 is an error body, not a vCard stream.
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		log.Warn(config.MsgFetchStatus, slog.Int(config.LogKeyStatus, resp.StatusCode))
		return nil, fmt.Errorf("%s: %s", config.ErrHTTPStatus, resp.Status)
	}

	// A zero HTTPFetcher still gets the default cap.
	limit := f.MaxBytes
	if limit <= 0 {
		limit = config.MaxHTTPResponseSize
	}

	log.Debug(config.MsgFetchOpen,
		slog.Int64(config.LogKeySizeBytes, resp.ContentLength),
		slog.Int64(config.LogKeyLimit, limit),
	)

	return &cappedBody{ReadCloser: resp.Body, limit: limit, left: limit}, nil
}

// cappedBody passes at most limit bytes through and then errors.
// Each read asks for one byte more than what is left, which is how an
// overflow is told apart from a body that ends exactly at the limit.
type cappedBody struct {
	io.ReadCloser
	limit int64
	left  int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	// Already over: keep failing so the decoder cannot resume mid-card.
	if b.left < 0 {
		return 0, b.overflow()
	}
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}

	n, err := b.ReadCloser.Read(p)
	// The extra byte arrived: hand back what fits and report the overflow.
	if int64(n) > b.left {
		n = int(b.left)
		b.left = -1
		return n, b.overflow()
	}
	b.left -= int64(n)
	return n, err
}

func (b *cappedBody) overflow() error {
	return fmt.Errorf("%s: %d bytes", config.ErrResponseTooLarge, b.limit)
}
