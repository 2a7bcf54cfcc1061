package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/output"
	"github.com/joescharf/itrack/internal/store"
)

var (
	issueSearch   string
	issueStatus   string
	issueCategory string
	issueFrom     string
	issueTo       string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Inspect issues in the database",
	Long:  "Query issues directly from the configured database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Long: `List issues, newest first. Filters combine with AND.

A search made only of digits matches the issue id; anything else matches
a substring of the subject. Dates use YYYY-MM-DD and are inclusive.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0])
	},
}

func init() {
	issueListCmd.Flags().StringVarP(&issueSearch, "search", "s", "", "Issue id or subject substring")
	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by exact status (Open, Reopened, Closed)")
	issueListCmd.Flags().StringVar(&issueCategory, "category", "", "Filter by exact category")
	issueListCmd.Flags().StringVar(&issueFrom, "from", "", "Created on or after date (YYYY-MM-DD)")
	issueListCmd.Flags().StringVar(&issueTo, "to", "", "Created on or before date (YYYY-MM-DD)")

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueListRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	filter := store.IssueListFilter{
		Search:   issueSearch,
		Status:   issueStatus,
		Category: issueCategory,
		FromDate: issueFrom,
		ToDate:   issueTo,
	}

	issues, err := s.ListIssues(ctx, filter)
	if err != nil {
		if errors.Is(err, store.ErrInvalidDate) {
			return fmt.Errorf("invalid date filter, use YYYY-MM-DD: %w", err)
		}
		return err
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Subject", "Status", "Category", "Severity", "Assignee", "Created"})
	for _, issue := range issues {
		created := "-"
		if issue.CreatedDate != nil {
			created = issue.CreatedDate.String()
		}
		_ = table.Append([]string{
			strconv.FormatInt(issue.ID, 10),
			output.Nullable(issue.Subject),
			output.StatusColor(models.StringValue(issue.Status)),
			output.Nullable(issue.Category),
			output.Nullable(issue.Severity),
			output.Nullable(issue.Assignee),
			created,
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(ctx context.Context, ref string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id < 0 {
		return fmt.Errorf("invalid issue id %q", ref)
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("issue %d not found", id)
		}
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan("#"+strconv.FormatInt(issue.ID, 10)), output.Nullable(issue.Subject))
	fmt.Fprintf(ui.Out, "  Status:       %s\n", output.StatusColor(output.Nullable(issue.Status)))
	fmt.Fprintf(ui.Out, "  Category:     %s\n", output.Nullable(issue.Category))
	fmt.Fprintf(ui.Out, "  Severity:     %s\n", output.Nullable(issue.Severity))
	fmt.Fprintf(ui.Out, "  Reporter:     %s\n", output.Nullable(issue.Reporter))
	fmt.Fprintf(ui.Out, "  Assignee:     %s\n", output.Nullable(issue.Assignee))
	if issue.CloseReason != nil {
		fmt.Fprintf(ui.Out, "  Close reason: %s\n", *issue.CloseReason)
	}
	if d := models.StringValue(issue.Description); d != "" {
		fmt.Fprintf(ui.Out, "  Description:  %s\n", d)
	}
	if issue.CreatedDate != nil {
		fmt.Fprintf(ui.Out, "  Created:      %s\n", issue.CreatedDate)
	}
	if issue.LastUpdate != nil {
		fmt.Fprintf(ui.Out, "  Updated:      %s\n", issue.LastUpdate)
	}
	return nil
}
