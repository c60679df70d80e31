package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/pagemon/extract"
	"github.com/hazyhaar/pagemon/pagemon/internal/registry"
	"github.com/hazyhaar/pagemon/pagemon/internal/store"
)

var jma = registry.Target{
	ID:   "jma_extra",
	Name: "JMA extra",
	URL:  "https://www.data.jma.go.jp/developer/xml/feed/extra.xml",
}

func captureServer(t *testing.T, status int) (*httptest.Server, *[]message) {
	t.Helper()
	var got []message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type: got %q", ct)
		}
		var m message
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Errorf("decode: %v", err)
		}
		got = append(got, m)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestDiscord_Changed(t *testing.T) {
	// WHAT: A change posts one message with the new entry's title and link.
	// WHY: The chat message is the only output operators read.
	srv, got := captureServer(t, http.StatusNoContent)
	d := NewDiscord(srv.URL, Config{Username: "pagemon"})

	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	ev := Event{
		Kind:   EventChanged,
		Target: jma,
		Old:    &store.Snapshot{Title: "A", Link: "https://jma.example/a", LastChangedAt: at.Add(-2 * time.Hour)},
		New:    extract.FeedEntry("B", "https://jma.example/b", "second entry"),
		At:     at,
	}
	if err := d.Notify(context.Background(), ev); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(*got) != 1 {
		t.Fatalf("posts: got %d", len(*got))
	}
	m := (*got)[0]
	if !strings.HasPrefix(m.Content, "**Update detected**: JMA extra") {
		t.Errorf("content: %q", m.Content)
	}
	if !strings.Contains(m.Content, "B\nhttps://jma.example/b") {
		t.Errorf("content lacks new title and link: %q", m.Content)
	}
	if m.Username != "pagemon" {
		t.Errorf("username: %q", m.Username)
	}
	e := m.Embeds[0]
	if e.Title != "B" || e.URL != "https://jma.example/b" || e.Color != colorChanged {
		t.Errorf("embed: %+v", e)
	}
	if e.Timestamp != "2026-10-18T09:30:00Z" {
		t.Errorf("timestamp: %q", e.Timestamp)
	}
	if e.Description != "second entry" {
		t.Errorf("description: %q", e.Description)
	}
	var names []string
	for _, f := range e.Fields {
		names = append(names, f.Name+"="+f.Value)
	}
	joined := strings.Join(names, ";")
	if !strings.Contains(joined, "Previous=A") || !strings.Contains(joined, "Last change=2 hours ago") {
		t.Errorf("fields: %s", joined)
	}
}

func TestDiscord_FirstSeenAndIssue(t *testing.T) {
	srv, got := captureServer(t, http.StatusOK)
	d := NewDiscord(srv.URL, Config{})
	ctx := context.Background()

	page := registry.Target{ID: "books", Name: "books", URL: "https://books.example.com/", Selector: ".price_color"}
	rep := extract.Representation{Kind: extract.KindSelector, Content: "£51.77", Digest: extract.Digest("£51.77"), Link: page.URL}
	if err := d.Notify(ctx, Event{Kind: EventFirstSeen, Target: page, New: rep}); err != nil {
		t.Fatal(err)
	}
	if err := d.Notify(ctx, Event{Kind: EventIssue, Target: page, Err: errors.New("selector matched no element")}); err != nil {
		t.Fatal(err)
	}

	first, issue := (*got)[0], (*got)[1]
	if first.Content != "**Now monitoring**: books\nhttps://books.example.com/" {
		t.Errorf("first seen content: %q", first.Content)
	}
	if first.Embeds[0].Color != colorFirstSeen || first.Embeds[0].Title != "books" {
		t.Errorf("first seen embed: %+v", first.Embeds[0])
	}
	if first.Embeds[0].Timestamp != "" {
		t.Errorf("zero At should omit timestamp: %q", first.Embeds[0].Timestamp)
	}
	if !strings.HasPrefix(issue.Content, "**Monitoring issue**: books") {
		t.Errorf("issue content: %q", issue.Content)
	}
	if !strings.Contains(issue.Embeds[0].Description, "selector matched no element") || issue.Embeds[0].Color != colorIssue {
		t.Errorf("issue embed: %+v", issue.Embeds[0])
	}
}

func TestDiscord_Caps(t *testing.T) {
	// WHAT: Content and description are capped to Discord's limits.
	// WHY: Discord rejects oversized payloads with 400.
	srv, got := captureServer(t, http.StatusNoContent)
	d := NewDiscord(srv.URL, Config{})

	long := strings.Repeat("x", 5000)
	rep := extract.FeedEntry(long, "https://jma.example/long", "")
	rep.Excerpt = strings.Repeat("y", 6000)
	if err := d.Notify(context.Background(), Event{Kind: EventChanged, Target: jma, New: rep}); err != nil {
		t.Fatal(err)
	}
	m := (*got)[0]
	if n := len([]rune(m.Content)); n > maxContent {
		t.Errorf("content runes: %d", n)
	}
	if n := len([]rune(m.Embeds[0].Description)); n > maxDescription {
		t.Errorf("description runes: %d", n)
	}
	if n := len([]rune(m.Embeds[0].Title)); n > maxTitle {
		t.Errorf("title runes: %d", n)
	}
}

func TestDiscord_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Invalid Webhook Token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, Config{})
	err := d.Notify(context.Background(), Event{Kind: EventFirstSeen, Target: jma})
	if !errors.Is(err, ErrNotify) {
		t.Fatalf("got %v, want ErrNotify", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry the status: %v", err)
	}
}

func TestDiscord_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewDiscord(url, Config{}).Notify(context.Background(), Event{Kind: EventFirstSeen, Target: jma})
	if !errors.Is(err, ErrNotify) {
		t.Fatalf("got %v, want ErrNotify", err)
	}
}

func TestDiscord_SingleAttempt(t *testing.T) {
	// WHAT: A failed post is not retried.
	// WHY: The next scheduled run is the retry mechanism.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	NewDiscord(srv.URL, Config{}).Notify(context.Background(), Event{Kind: EventFirstSeen, Target: jma})
	if n := hits.Load(); n != 1 {
		t.Errorf("attempts: got %d, want 1", n)
	}
}

func TestDiscord_RateLimited(t *testing.T) {
	// WHAT: Posts beyond the burst wait for the limiter.
	// WHY: Discord answers 429 to bursts from one webhook.
	srv, got := captureServer(t, http.StatusNoContent)
	d := NewDiscord(srv.URL, Config{RatePerSecond: 20, Burst: 1})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := d.Notify(context.Background(), Event{Kind: EventFirstSeen, Target: jma}); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 posts at 20/s burst 1 took %v, expected pacing", elapsed)
	}
	if len(*got) != 3 {
		t.Errorf("posts: got %d", len(*got))
	}
}

func TestDiscord_CancelledWhileWaiting(t *testing.T) {
	srv, _ := captureServer(t, http.StatusNoContent)
	d := NewDiscord(srv.URL, Config{RatePerSecond: 0.001, Burst: 1})
	ctx := context.Background()
	if err := d.Notify(ctx, Event{Kind: EventFirstSeen, Target: jma}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := d.Notify(ctx, Event{Kind: EventFirstSeen, Target: jma}); !errors.Is(err, ErrNotify) {
		t.Fatalf("got %v, want ErrNotify", err)
	}
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	if err := n.Notify(context.Background(), Event{Kind: EventChanged, Target: jma}); err != nil {
		t.Fatalf("nop: %v", err)
	}
}

func TestDiscord_PublishedTimestamp(t *testing.T) {
	// WHAT: A feed entry's publish date becomes the embed timestamp.
	// WHY: Readers care when the bulletin was issued, not when we polled.
	srv, got := captureServer(t, http.StatusNoContent)
	d := NewDiscord(srv.URL, Config{})

	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	rep := extract.FeedEntry("B", "https://jma.example/b", "")
	rep.Published = at.Add(-30 * time.Minute)
	if err := d.Notify(context.Background(), Event{Kind: EventChanged, Target: jma, New: rep, At: at}); err != nil {
		t.Fatal(err)
	}
	e := (*got)[0].Embeds[0]
	if e.Timestamp != "2026-10-18T09:00:00Z" {
		t.Errorf("timestamp: got %q", e.Timestamp)
	}
	var published string
	for _, f := range e.Fields {
		if f.Name == "Published" {
			published = f.Value
		}
	}
	if published != "30 minutes ago" {
		t.Errorf("published field: got %q", published)
	}
}

func TestDiscord_ChangedLists(t *testing.T) {
	// WHAT: Summary changes list added and removed links, three of each at most.
	// WHY: Operators want to see what moved without opening the page.
	srv, got := captureServer(t, http.StatusNoContent)
	d := NewDiscord(srv.URL, Config{})

	oldContent := "News\nOld story https://n.example/old\nKept https://n.example/kept"
	newContent := strings.Join([]string{
		"News",
		"Kept https://n.example/kept",
		"S1 https://n.example/1",
		"S2 https://n.example/2",
		"S3 https://n.example/3",
		"S4 https://n.example/4",
	}, "\n")
	page := registry.Target{ID: "news", Name: "news", URL: "https://n.example/"}
	ev := Event{
		Kind:   EventChanged,
		Target: page,
		Old:    &store.Snapshot{Kind: extract.KindSummary, Content: oldContent, Title: "News"},
		New:    extract.Representation{Kind: extract.KindSummary, Content: newContent, Digest: extract.Digest(newContent), Title: "News", Link: page.URL},
	}
	if err := d.Notify(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	m := (*got)[0]
	if !strings.Contains(m.Content, "+4 / -1 links") {
		t.Errorf("content: %q", m.Content)
	}
	fields := map[string]string{}
	for _, f := range m.Embeds[0].Fields {
		fields[f.Name] = f.Value
	}
	wantAdded := "+ S1 https://n.example/1\n+ S2 https://n.example/2\n+ S3 https://n.example/3\n… and 1 more"
	if fields["Added (4)"] != wantAdded {
		t.Errorf("added: got %q", fields["Added (4)"])
	}
	if fields["Removed (1)"] != "- Old story https://n.example/old" {
		t.Errorf("removed: got %q", fields["Removed (1)"])
	}
}

func TestDiscord_IssueFenceSurvivesTruncation(t *testing.T) {
	// WHAT: A long error is cut inside the code block, never through its fence.
	srv, got := captureServer(t, http.StatusNoContent)
	d := NewDiscord(srv.URL, Config{})

	err := errors.New(strings.Repeat("e", 6000))
	if err := d.Notify(context.Background(), Event{Kind: EventIssue, Target: jma, Err: err}); err != nil {
		t.Fatal(err)
	}
	desc := (*got)[0].Embeds[0].Description
	if !strings.HasPrefix(desc, "```\n") || !strings.HasSuffix(desc, "\n```") {
		t.Errorf("fence broken: %q ... %q", desc[:8], desc[len(desc)-8:])
	}
	if n := len([]rune(desc)); n > maxDescription {
		t.Errorf("description runes: %d", n)
	}
}

func TestLineChanges(t *testing.T) {
	added, removed := lineChanges("a\nb\nc", "b\nc\nd\nd")
	if strings.Join(added, ",") != "d" || strings.Join(removed, ",") != "a" {
		t.Errorf("added %v removed %v", added, removed)
	}
	if a, r := lineChanges("same", "same"); len(a)+len(r) != 0 {
		t.Errorf("identical content: added %v removed %v", a, r)
	}
}
