package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/pagemon/extract"
)

// Discord message limits.
const (
	maxContent     = 2000
	maxDescription = 4096
	maxTitle       = 256
	maxFieldValue  = 1024
)

// Embed colours.
const (
	colorFirstSeen = 0x2ECC71
	colorChanged   = 0xE67E22
	colorIssue     = 0xE74C3C
)

// Config tunes webhook delivery.
type Config struct {
	RatePerSecond float64       `yaml:"rate_per_second"` // Default: 1.
	Burst         int           `yaml:"burst"`           // Default: 5.
	Username      string        `yaml:"username"`        // Overrides the webhook's default name.
	Timeout       time.Duration `yaml:"timeout"`         // Default: 10s.
}

func (c *Config) defaults() {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 1
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Discord posts events to a Discord-compatible webhook. One POST per
// event, no retry; the next scheduled run is the retry.
type Discord struct {
	url     string
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Discord notifier.
type Option func(*Discord)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Discord) { d.logger = l }
}

// NewDiscord creates a notifier posting to webhookURL.
func NewDiscord(webhookURL string, cfg Config, opts ...Option) *Discord {
	cfg.defaults()
	d := &Discord{
		url:     webhookURL,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

type message struct {
	Content  string  `json:"content"`
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title       string  `json:"title,omitempty"`
	URL         string  `json:"url,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Fields      []field `json:"fields,omitempty"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Notify posts ev. Non-2xx responses and transport failures wrap ErrNotify.
func (d *Discord) Notify(ctx context.Context, ev Event) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", ErrNotify, err)
	}

	body, err := json.Marshal(d.format(ev))
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrNotify, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: new request: %v", ErrNotify, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotify, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrNotify, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	io.Copy(io.Discard, resp.Body)

	d.logger.Debug("notify: delivered",
		"target_id", ev.Target.ID, "event", string(ev.Kind), "status", resp.StatusCode)
	return nil
}

func (d *Discord) format(ev Event) message {
	t := ev.Target
	name := t.Name
	if name == "" {
		name = t.ID
	}

	e := embed{Fields: []field{{Name: "Target", Value: t.ID, Inline: true}}}
	if !ev.At.IsZero() {
		e.Timestamp = ev.At.UTC().Format(time.RFC3339)
	}
	if ev.Kind != EventIssue && !ev.New.Published.IsZero() {
		// The embed shows when the entry was published, not when it was seen.
		e.Timestamp = ev.New.Published.UTC().Format(time.RFC3339)
		e.Fields = append(e.Fields, field{
			Name: "Published", Value: humanize.RelTime(ev.New.Published, atOrNow(ev.At), "ago", "from now"), Inline: true,
		})
	}

	var headline, changes string
	switch ev.Kind {
	case EventFirstSeen:
		headline = "Now monitoring"
		e.Color = colorFirstSeen
		e.Title, e.URL = entryTitleLink(ev.New, name, t.URL)
		e.Description = ev.New.Excerpt
	case EventChanged:
		headline = "Update detected"
		e.Color = colorChanged
		e.Title, e.URL = entryTitleLink(ev.New, name, t.URL)
		e.Description = ev.New.Excerpt
		if ev.Old != nil {
			if ev.New.Kind != extract.KindFeed && ev.Old.Kind == ev.New.Kind {
				added, removed := lineChanges(ev.Old.Content, ev.New.Content)
				if len(added)+len(removed) > 0 {
					changes = changeSummary(ev.New.Kind, len(added), len(removed))
					e.Fields = append(e.Fields, changeFields(added, removed)...)
				}
			}
			if ev.Old.Title != "" && ev.Old.Title != ev.New.Title {
				e.Fields = append(e.Fields, field{Name: "Previous", Value: extract.Truncate(ev.Old.Title, maxFieldValue)})
			}
			if !ev.Old.LastChangedAt.IsZero() {
				e.Fields = append(e.Fields, field{
					Name: "Last change", Value: humanize.RelTime(ev.Old.LastChangedAt, atOrNow(ev.At), "ago", "from now"), Inline: true,
				})
			}
		}
	case EventIssue:
		headline = "Monitoring issue"
		e.Color = colorIssue
		e.Title, e.URL = name, t.URL
		if ev.Err != nil {
			const fence = "```\n"
			msg := extract.Truncate(ev.Err.Error(), maxDescription-2*len(fence))
			e.Description = fence + msg + "\n```"
		}
	}

	var content strings.Builder
	fmt.Fprintf(&content, "**%s**: %s\n%s", headline, name, t.URL)
	if changes != "" {
		fmt.Fprintf(&content, "\n%s", changes)
	}
	if ev.Kind != EventIssue && ev.New.Kind != extract.KindSelector && ev.New.Link != "" && ev.New.Link != t.URL {
		fmt.Fprintf(&content, "\n%s\n%s", ev.New.Title, ev.New.Link)
	}

	e.Title = extract.Truncate(e.Title, maxTitle)
	e.Description = extract.Truncate(e.Description, maxDescription)
	return message{
		Content:  extract.Truncate(content.String(), maxContent),
		Username: d.cfg.Username,
		Embeds:   []embed{e},
	}
}

// entryTitleLink prefers the representation's own title and link, falling
// back to the target's name and URL.
func entryTitleLink(rep extract.Representation, name, targetURL string) (string, string) {
	title, link := rep.Title, rep.Link
	if title == "" {
		title = name
	}
	if link == "" {
		link = targetURL
	}
	return title, link
}

func atOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
