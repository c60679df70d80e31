package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagemon/pagemon"
)

func newTargetsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "Validate the registry and list its targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			targets, err := pagemon.LoadTargets(cfg.Registry, logger)
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "ID", "NAME", "MODE", "URL")
			for _, t := range targets {
				mode := "summary/feed"
				if t.Selector != "" {
					mode = "selector " + t.Selector
				}
				table.Append([]string{t.ID, t.Name, mode, t.URL})
			}
			table.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "%d targets OK\n", len(targets))
			return nil
		},
	}
}
