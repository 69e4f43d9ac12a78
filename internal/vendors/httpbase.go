package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/telemetry"
)

// HTTPError is the typed failure for vendor requests: non-2xx statuses,
// timeouts, and connection resets all surface as one retriable kind.
type HTTPError struct {
	Vendor civic.Vendor
	Banana string
	URL    string
	Status int // 0 for transport-level failures
	Err    error
}

func (e *HTTPError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d from %s (city %s)", e.Vendor, e.Status, e.URL, e.Banana)
	}
	return fmt.Sprintf("%s: request to %s failed (city %s): %v", e.Vendor, e.URL, e.Banana, e.Err)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// IsHTTPStatus reports whether err is an HTTPError with one of the given
// statuses. Used by adapters with HTML fallbacks (Legistar).
func IsHTTPStatus(err error, statuses ...int) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	for _, s := range statuses {
		if he.Status == s {
			return true
		}
	}
	return false
}

// maxBodySize caps response reads; agenda pages are small, packets are
// fetched by the processor, not here.
const maxBodySize = 20 * 1024 * 1024

// Base is the helper composed into every adapter: paced, metered HTTP
// with typed errors, plus the city identity and a named logger.
type Base struct {
	City civic.City
	Deps *Deps
	Log  *zap.Logger
}

// NewBase builds the shared adapter plumbing for one city.
func NewBase(city civic.City, deps *Deps) Base {
	return Base{
		City: city,
		Deps: deps,
		Log:  deps.Log.Named(string(city.Vendor)).With(zap.String("banana", city.Banana)),
	}
}

func (b *Base) vendor() civic.Vendor { return b.City.Vendor }

// do runs one paced request and returns the body. Every failure mode is
// wrapped in *HTTPError.
func (b *Base) do(ctx context.Context, method, rawURL string, header map[string]string, body io.Reader) ([]byte, error) {
	if b.Deps.Pacer != nil {
		if err := b.Deps.Pacer.Wait(ctx, b.vendor()); err != nil {
			return nil, err
		}
	}
	client, err := b.Deps.Sessions.Get(b.vendor())
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &HTTPError{Vendor: b.vendor(), Banana: b.City.Banana, URL: rawURL, Err: err}
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	telemetry.CountHTTPRequest(ctx, string(b.vendor()))
	resp, err := client.Do(req)
	if err != nil {
		telemetry.CountHTTPFailure(ctx, string(b.vendor()))
		return nil, &HTTPError{Vendor: b.vendor(), Banana: b.City.Banana, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		telemetry.CountHTTPFailure(ctx, string(b.vendor()))
		return nil, &HTTPError{Vendor: b.vendor(), Banana: b.City.Banana, URL: rawURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		telemetry.CountHTTPFailure(ctx, string(b.vendor()))
		return nil, &HTTPError{Vendor: b.vendor(), Banana: b.City.Banana, URL: rawURL, Status: resp.StatusCode}
	}
	return raw, nil
}

// Get fetches a URL and returns the body.
func (b *Base) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return b.do(ctx, http.MethodGet, rawURL, nil, nil)
}

// GetWithHeader fetches a URL with extra request headers.
func (b *Base) GetWithHeader(ctx context.Context, rawURL string, header map[string]string) ([]byte, error) {
	return b.do(ctx, http.MethodGet, rawURL, header, nil)
}

// GetJSON fetches a URL and decodes the JSON body into out. A body that
// does not decode is a parse error carrying a preview for the log.
func (b *Base) GetJSON(ctx context.Context, rawURL string, out any) error {
	raw, err := b.do(ctx, http.MethodGet, rawURL, map[string]string{"Accept": "application/json"}, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ParseError{Vendor: b.vendor(), URL: rawURL, Preview: preview(raw), Err: err}
	}
	return nil
}

// PostJSON sends a JSON payload and decodes the JSON response into out
// (out may be nil).
func (b *Base) PostJSON(ctx context.Context, rawURL string, payload, out any) error {
	enc, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", b.vendor(), err)
	}
	raw, err := b.do(ctx, http.MethodPost, rawURL,
		map[string]string{"Content-Type": "application/json", "Accept": "application/json"},
		bytes.NewReader(enc))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ParseError{Vendor: b.vendor(), URL: rawURL, Preview: preview(raw), Err: err}
	}
	return nil
}

// PostForm sends a form-encoded payload and returns the body.
func (b *Base) PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	return b.do(ctx, http.MethodPost, rawURL,
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		strings.NewReader(form.Encode()))
}

// ParseError is a well-formed response whose shape did not match
// expectations. The meeting is skipped; the sync continues.
type ParseError struct {
	Vendor  civic.Vendor
	URL     string
	Preview string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unexpected response shape from %s: %v (body: %s)", e.Vendor, e.URL, e.Err, e.Preview)
}

func (e *ParseError) Unwrap() error { return e.Err }

func preview(raw []byte) string {
	const n = 200
	s := string(raw)
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n] + "…"
	}
	return s
}
