package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cli struct {
	dir      string
	env      map[string]string
	registry string
	config   string
}

func newCLI(t *testing.T, rows ...string) *cli {
	t.Helper()
	dir := t.TempDir()
	c := &cli{dir: dir, env: map[string]string{}}

	c.registry = filepath.Join(dir, "targets.csv")
	csv := "id,name,url,selector\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(c.registry, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	c.config = filepath.Join(dir, "pagemon.yaml")
	cfg := "db_path: " + filepath.Join(dir, "state", "pagemon.db") + "\nfetch:\n  allow_private: true\n"
	if err := os.WriteFile(c.config, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return c
}

func (c *cli) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func(k string) string { return c.env[k] })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", c.config, "--registry", c.registry}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func feedServer(t *testing.T, title *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprintf(w, `<feed xmlns="http://www.w3.org/2005/Atom"><entry><title>%s</title><link href="https://jma.example/%s"/></entry></feed>`, *title, *title)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCLI_Targets(t *testing.T) {
	c := newCLI(t,
		"jma_extra,JMA,https://www.data.jma.go.jp/developer/xml/feed/extra.xml,",
		"books,Books,https://books.toscrape.com/,p.price_color",
	)
	out, err := c.exec(t, "targets")
	if err != nil {
		t.Fatalf("targets: %v", err)
	}
	for _, want := range []string{"jma_extra", "selector p.price_color", "2 targets OK"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestCLI_TargetsMalformed(t *testing.T) {
	c := newCLI(t, "a,,https://a.example.com/,", "a,,https://b.example.com/,")
	if _, err := c.exec(t, "targets"); err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Fatalf("got %v, want duplicate id error", err)
	}
}

func TestCLI_RunListForget(t *testing.T) {
	// WHAT: run -> snapshots list -> forget, through the real command tree.
	// WHY: The scheduled job only ever talks to the binary.
	title := "A"
	srv := feedServer(t, &title)
	c := newCLI(t, "jma_extra,JMA,"+srv.URL+"/extra.xml,")

	out, err := c.exec(t, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "1 checked, 1 new") {
		t.Errorf("run output: %s", out)
	}

	// No subcommand means run.
	title = "B"
	out, err = c.exec(t)
	if err != nil {
		t.Fatalf("default run: %v", err)
	}
	if !strings.Contains(out, "1 changed") {
		t.Errorf("default run output: %s", out)
	}

	out, err = c.exec(t, "snapshots", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "jma_extra") || !strings.Contains(out, "feed") || !strings.Contains(out, "B") {
		t.Errorf("list output:\n%s", out)
	}

	out, err = c.exec(t, "snapshots", "history", "jma_extra")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "changed") || !strings.Contains(out, "first_seen") {
		t.Errorf("history output:\n%s", out)
	}

	out, err = c.exec(t, "snapshots", "forget", "jma_extra")
	if err != nil || !strings.Contains(out, "forgot jma_extra") {
		t.Fatalf("forget: %q %v", out, err)
	}
	out, _ = c.exec(t, "snapshots", "list")
	if !strings.Contains(out, "no snapshots") {
		t.Errorf("list after forget: %s", out)
	}
}

func TestCLI_EnvAndFlags(t *testing.T) {
	// WHAT: PAGEMON_DB from the environment is overridden by --db.
	c := newCLI(t, "x,,https://x.example.com/,")
	envDB := filepath.Join(c.dir, "env.db")
	flagDB := filepath.Join(c.dir, "flag.db")
	c.env["PAGEMON_DB"] = envDB

	if _, err := c.exec(t, "snapshots", "list"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(envDB); err != nil {
		t.Errorf("env db not used: %v", err)
	}

	if _, err := c.exec(t, "--db", flagDB, "snapshots", "list"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(flagDB); err != nil {
		t.Errorf("flag db not used: %v", err)
	}
}

func TestCLI_WatchNeedsSchedule(t *testing.T) {
	c := newCLI(t, "x,,https://x.example.com/,")
	if _, err := c.exec(t, "watch"); err == nil || !strings.Contains(err.Error(), "no schedule") {
		t.Fatalf("got %v", err)
	}
	if _, err := c.exec(t, "watch", "--cron", "whenever"); err == nil {
		t.Fatal("invalid cron should fail")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG").String() != "DEBUG" || parseLevel("warning").String() != "WARN" || parseLevel("").String() != "INFO" {
		t.Error("level mapping")
	}
}
