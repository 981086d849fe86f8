package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/Veraticus/idlewatch/pkg/status"
	"github.com/Veraticus/idlewatch/pkg/store"
	"github.com/Veraticus/idlewatch/pkg/types"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent detection sessions and sensor incidents",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum rows per table (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

var (
	heading = color.New(color.Bold).SprintFunc()
	dim     = color.New(color.FgHiBlack).SprintFunc()
)

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx := cmd.Context()
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	sessions, err := s.ListSessions(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	incidents, err := s.ListIncidents(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("listing incidents: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := renderSessions(out, sessions); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return renderIncidents(out, incidents)
}

func renderSessions(out io.Writer, sessions []*types.SessionRecord) error {
	fmt.Fprintln(out, heading("Sessions"))
	if len(sessions) == 0 {
		fmt.Fprintln(out, dim("  no completed sessions"))
		return nil
	}

	table := newTable(out, []string{"STARTED", "STOPPED", "ACTIVE", "EVENTS"})
	for _, s := range sessions {
		table.Append([]string{
			formatTime(s.StartedAt),
			formatTime(s.StoppedAt),
			color.GreenString(status.FormatDuration(s.Active)),
			strconv.Itoa(s.Activity),
		})
	}
	return table.Render()
}

func renderIncidents(out io.Writer, incidents []*types.Incident) error {
	fmt.Fprintln(out, heading("Incidents"))
	if len(incidents) == 0 {
		fmt.Fprintln(out, dim("  no incidents"))
		return nil
	}

	table := newTable(out, []string{"TIME", "KIND", "CATEGORY", "EXIT", "MESSAGE"})
	for _, inc := range incidents {
		exit := "-"
		if inc.ExitCode != nil {
			exit = strconv.Itoa(*inc.ExitCode)
		}
		table.Append([]string{
			formatTime(inc.Time),
			inc.Kind,
			categoryColor(inc.Category),
			exit,
			inc.Message,
		})
	}
	return table.Render()
}

// newTable creates a borderless left-aligned table.
func newTable(out io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

func categoryColor(c types.Category) string {
	switch c {
	case types.CategoryPermission:
		return color.YellowString(c.String())
	case types.CategoryTransient:
		return color.CyanString(c.String())
	default:
		return color.RedString(c.String())
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
