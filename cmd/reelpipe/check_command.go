package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelpipe/internal/preflight"
	"reelpipe/internal/queue"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks for paths, binaries, database and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p := newStatusPrinter(out)
			failures := 0

			p.section("Paths")
			for _, r := range preflight.RunAll(cmd.Context(), cfg) {
				if r.Name == "Telegram" || r.Name == "ntfy" {
					continue
				}
				p.check(r.Name, r.Passed, r.Detail)
				if !r.Passed {
					failures++
				}
			}
			fmt.Fprintln(out)

			p.section("Dependencies")
			for _, dep := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
				switch {
				case dep.Available:
					p.line(dep.Name, statusOK, dep.Detail)
				case dep.Optional:
					p.line(dep.Name, statusWarn, dep.Detail)
				default:
					p.line(dep.Name, statusError, dep.Detail)
					failures++
				}
			}
			fmt.Fprintln(out)

			p.section("Database")
			if err := ctx.withStore(func(store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				r := preflight.CheckDatabase(health)
				p.check(r.Name, r.Passed, r.Detail)
				if !r.Passed {
					failures++
				}
				return nil
			}); err != nil {
				p.check("Database", false, err.Error())
				failures++
			}
			fmt.Fprintln(out)

			p.section("Notifications")
			for _, r := range []preflight.Result{
				preflight.CheckNtfyFromConfig(cmd.Context(), cfg),
				preflight.CheckTelegramFromConfig(cmd.Context(), cfg),
			} {
				p.check(r.Name, r.Passed, r.Detail)
				if !r.Passed {
					failures++
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d check(s) failed", failures)
			}
			return nil
		},
	}
}
