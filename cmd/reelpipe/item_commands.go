package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelpipe/internal/api"
	"reelpipe/internal/queue"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect content items",
	}
	itemsCmd.AddCommand(newItemsListCommand(ctx))
	itemsCmd.AddCommand(newItemsShowCommand(ctx))
	return itemsCmd
}

func newItemsListCommand(ctx *commandContext) *cobra.Command {
	var stageFlags []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items, optionally filtered by stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			stages, err := parseStages(stageFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				items, err := api.NewItemService(store).List(cmd.Context(), stages...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.ItemListResponse{Items: items})
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No items")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.Target,
						item.SourceKey,
						item.Stage,
						strconv.Itoa(item.Attempts),
						truncate(item.LastError, 48),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Target", "Source", "Stage", "Attempts", "Last error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&stageFlags, "stage", "s", nil, "Filter by stage (repeatable or comma separated)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newItemsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item and its approval record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				resp, err := api.NewItemService(store).Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if resp == nil {
					return fmt.Errorf("item %d not found", id)
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderItem(*resp))
				return nil
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func renderItem(resp api.ItemResponse) string {
	item := resp.Item
	fields := [][2]string{
		{"ID", strconv.FormatInt(item.ID, 10)},
		{"Target", item.Target},
		{"Source", item.SourceKey},
		{"Stage", item.Stage},
		{"Payload", item.PayloadRef},
		{"Processed", item.ProcessedRef},
		{"Fingerprint", item.Fingerprint},
		{"Attempts", strconv.Itoa(item.Attempts)},
		{"Last error", item.LastError},
		{"Next attempt", item.NextAttemptAt},
		{"Published", item.PublishedID},
		{"Caption", item.Metadata.Caption},
		{"Title", item.Metadata.Title},
		{"Tags", strings.Join(item.Metadata.Tags, " ")},
		{"Created", item.CreatedAt},
		{"Updated", item.UpdatedAt},
	}
	if item.Metadata.DuplicateOf > 0 {
		fields = append(fields, [2]string{"Duplicate of", fmt.Sprintf("#%d (distance %d)", item.Metadata.DuplicateOf, item.Metadata.DuplicateDistance)})
	}
	if a := resp.Approval; a != nil {
		fields = append(fields, [2]string{"Approval", a.Decision})
		fields = append(fields, [2]string{"Decided by", a.DecidedBy})
		fields = append(fields, [2]string{"Decided at", a.DecidedAt})
	}
	return renderFields(fields)
}

func parseStages(values []string) ([]queue.Stage, error) {
	var stages []queue.Stage
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		stage, ok := queue.ParseStage(value)
		if !ok {
			return nil, fmt.Errorf("unknown stage %q", value)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func parseItemID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", value)
	}
	return id, nil
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
