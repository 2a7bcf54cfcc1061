package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/output"
)

var reportFormat string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show grouped issue counts",
	Long: `Show issue counts grouped by status, category, severity, assignee
and close reason. Close reasons only count Closed issues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun(cmd.Context())
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "table", "Output format: table, json")
	rootCmd.AddCommand(reportCmd)
}

func reportRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if reportFormat != "table" && reportFormat != "json" {
		return fmt.Errorf("unknown format: %s (use: table, json)", reportFormat)
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	reports, err := s.Reports(ctx)
	if err != nil {
		return err
	}

	if reportFormat == "json" {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	sections := []struct {
		title  string
		groups []models.GroupCount
	}{
		{"Status", reports.Status},
		{"Category", reports.Category},
		{"Severity", reports.Severity},
		{"Assignee", reports.Assignee},
		{"Close reason", reports.CloseReason},
	}
	for i, sec := range sections {
		if i > 0 {
			fmt.Fprintln(ui.Out)
		}
		fmt.Fprintln(ui.Out, output.Cyan(sec.title))
		if len(sec.groups) == 0 {
			fmt.Fprintln(ui.Out, "  (none)")
			continue
		}
		table := ui.Table([]string{"Value", "Count"})
		for _, g := range sec.groups {
			value := output.Nullable(g.Value)
			if sec.title == "Status" {
				value = output.StatusColor(value)
			}
			_ = table.Append([]string{value, strconv.FormatInt(g.Count, 10)})
		}
		_ = table.Render()
	}
	return nil
}
