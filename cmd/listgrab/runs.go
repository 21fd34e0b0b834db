package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/listgrab"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Run executes the runs command.
func (c *RunsCmd) Run(deps *Dependencies) error {
	filter := listgrab.RunFilter{Limit: c.Limit}
	if c.URL != "" {
		filter.URL = &c.URL
	}
	runs, err := deps.Runs.FindRuns(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", message(err))
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(deps.Stdout, "No runs found.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(deps.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Started", "URL", "Status", "Items", "Duration", "Last error"})
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(100 * time.Millisecond).String()
		}
		lastErr := ""
		if len(r.Errors) > 0 {
			lastErr = strings.TrimSpace(r.Errors[len(r.Errors)-1])
		}
		t.AppendRow(table.Row{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.URL,
			r.Status,
			r.ItemCount,
			duration,
			lastErr,
		})
	}
	t.Render()
	return nil
}
