package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagemon/pagemon"
)

func newSnapshotsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshots",
		Aliases: []string{"snap"},
		Short:   "Inspect and manage stored snapshots",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored snapshots",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				mon, _, err := g.monitor(cmd)
				if err != nil {
					return err
				}
				defer mon.Close()
				snaps, err := mon.Snapshots(cmd.Context())
				if err != nil {
					return err
				}
				if len(snaps) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no snapshots")
					return nil
				}
				renderSnapshots(cmd.OutOrStdout(), snaps, time.Now())
				return nil
			},
		},
		&cobra.Command{
			Use:   "forget <target-id>",
			Short: "Delete a snapshot so the next run treats the target as new",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mon, _, err := g.monitor(cmd)
				if err != nil {
					return err
				}
				defer mon.Close()
				existed, err := mon.Forget(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !existed {
					fmt.Fprintf(cmd.OutOrStdout(), "no snapshot for %s\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
				return nil
			},
		},
		newHistoryCmd(g),
	)
	return cmd
}

func newHistoryCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <target-id>",
		Short: "Show recent checks of a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mon, _, err := g.monitor(cmd)
			if err != nil {
				return err
			}
			defer mon.Close()
			checks, err := mon.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(checks) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no checks for %s\n", args[0])
				return nil
			}
			renderHistory(cmd.OutOrStdout(), checks, time.Now())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of checks to show")
	return cmd
}

func renderSnapshots(w io.Writer, snaps []*pagemon.Snapshot, now time.Time) {
	table := newTable(w, "ID", "KIND", "TITLE", "DIGEST", "FIRST SEEN", "CHECKED", "CHANGED")
	for _, s := range snaps {
		title := s.Title
		if title == "" {
			title = firstLine(s.Content)
		}
		table.Append([]string{
			s.TargetID,
			string(s.Kind),
			ellipsis(title, 40),
			ellipsis(s.Digest, 12),
			ago(s.FirstSeenAt, now),
			ago(s.LastCheckedAt, now),
			ago(s.LastChangedAt, now),
		})
	}
	table.Render()
}

func renderHistory(w io.Writer, checks []*pagemon.CheckLog, now time.Time) {
	table := newTable(w, "RUN", "STATUS", "WHEN", "DURATION", "ERROR")
	for _, c := range checks {
		table.Append([]string{
			c.RunID,
			c.Status,
			ago(c.CheckedAt, now),
			fmt.Sprintf("%dms", c.DurationMs),
			ellipsis(c.Error, 60),
		})
	}
	table.Render()
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func ago(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func ellipsis(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
