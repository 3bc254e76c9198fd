package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelpipe/internal/config"
)

func skipConfigLoad() map[string]string { return map[string]string{"skipConfigLoad": "true"} }

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or validate the configuration file",
	}
	cmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		path      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: skipConfigLoad(),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveConfigTarget(path)
			if err != nil {
				return err
			}
			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("check config path: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Next: reelpipe targets add <name>, then drop media under <inbox_dir>/<name>/.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func resolveConfigTarget(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return target, nil
}

// newConfigValidateCommand loads the file itself so a broken config is
// reported as a validation result rather than a startup failure.
func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and print the effective settings",
		Annotations: skipConfigLoad(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if ctx.configFlag != nil {
				path = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			source := resolved
			if !exists {
				source += " (not found, defaults used)"
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderFields([][2]string{
				{"Config", source},
				{"Inbox", cfg.Paths.InboxDir},
				{"Outbox", cfg.Paths.OutboxDir},
				{"Database", cfg.DatabasePath()},
				{"API", cfg.Paths.APIBind},
				{"Schedule", scheduleSummary(cfg)},
				{"Dedupe threshold", strconv.Itoa(cfg.Pipeline.FingerprintThreshold) + " bits"},
				{"Retries", strconv.Itoa(cfg.Pipeline.MaxRetries)},
				{"Concurrency", strconv.Itoa(cfg.Pipeline.MaxConcurrency)},
			}))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func scheduleSummary(cfg *config.Config) string {
	if !cfg.Schedule.Enabled {
		return "disabled"
	}
	return strings.Join(cfg.Schedule.Times, ", ") + " (" + cfg.Schedule.Timezone + ")"
}
