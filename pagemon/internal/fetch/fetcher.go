// Package fetch retrieves target content over HTTP.
//
// One attempt per call, a finite timeout and a capped body. The result
// carries a content-kind hint (feed or html) taken from the Content-Type
// header, falling back to sniffing the body.
package fetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html/charset"

	"github.com/hazyhaar/pagemon/horosafe"
)

// ErrFetch wraps every failure to obtain a usable body: network errors,
// timeouts, non-2xx statuses, oversize bodies and blocked URLs.
var ErrFetch = errors.New("fetch: failed")

// Kind is the content-kind hint used to pick an extractor.
type Kind string

const (
	KindHTML Kind = "html"
	KindFeed Kind = "feed"
)

// Result contains the outcome of a fetch.
type Result struct {
	Body        []byte // UTF-8 for html; raw bytes for feeds (the XML decoder handles encoding)
	StatusCode  int
	ContentType string
	Kind        Kind
	Hash        string // SHA-256 of Body
	FinalURL    string // after redirects
}

// Config configures the fetcher.
type Config struct {
	Timeout   time.Duration `yaml:"timeout"`   // Default: 20s.
	MaxBytes  int64         `yaml:"max_bytes"` // Default: 10MB.
	UserAgent string        `yaml:"user_agent"`
	// AllowPrivate disables the SSRF guard for intranet targets.
	AllowPrivate bool `yaml:"allow_private"`
	// URLValidator overrides the URL check. Default: horosafe.ValidateURL,
	// or horosafe scheme checks only when AllowPrivate is set.
	URLValidator func(string) error `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "PageMonitorBot/1.0"
	}
	if c.URLValidator == nil {
		if c.AllowPrivate {
			c.URLValidator = func(u string) error {
				_, err := horosafe.CheckScheme(u)
				return err
			}
		} else {
			c.URLValidator = horosafe.ValidateURL
		}
	}
}

// Fetcher performs HTTP GETs for targets.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher. Redirects are re-validated and capped at 5.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves url once.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := f.config.URLValidator(url); err != nil {
		return nil, fmt.Errorf("%w: url blocked: %v", ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/atom+xml,application/rss+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http get: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &Result{StatusCode: resp.StatusCode}, fmt.Errorf("%w: http %d", ErrFetch, resp.StatusCode)
	}

	raw, err := horosafe.LimitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return &Result{StatusCode: resp.StatusCode}, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}

	contentType := resp.Header.Get("Content-Type")
	kind := DetectKind(contentType, raw)

	body := raw
	if kind == KindHTML {
		body, err = toUTF8(raw, contentType)
		if err != nil {
			return &Result{StatusCode: resp.StatusCode}, fmt.Errorf("%w: decode charset: %v", ErrFetch, err)
		}
	}

	h := sha256.Sum256(body)
	return &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Kind:        kind,
		Hash:        fmt.Sprintf("%x", h),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// DetectKind classifies a response as feed or html. The Content-Type
// header wins when it is specific; generic or missing types are sniffed.
func DetectKind(contentType string, body []byte) Kind {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	mediaType = strings.ToLower(mediaType)

	switch {
	case strings.HasSuffix(mediaType, "atom+xml"),
		strings.HasSuffix(mediaType, "rss+xml"),
		strings.HasSuffix(mediaType, "rdf+xml"),
		mediaType == "application/xml",
		mediaType == "text/xml":
		return KindFeed
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return KindHTML
	}

	for m := mimetype.Detect(body); m != nil; m = m.Parent() {
		if m.Is("application/atom+xml") || m.Is("application/rss+xml") || m.Is("text/xml") {
			return KindFeed
		}
	}
	return KindHTML
}

func toUTF8(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
