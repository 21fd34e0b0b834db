package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/listgrab"
)

// Page is a live document the grab command drives. Pages that also
// implement listgrab.Highlighter show the detected pattern.
type Page interface {
	listgrab.Document
	Close() error
}

// PageOpener opens pages for the grab command.
type PageOpener interface {
	Open(ctx context.Context, url string) (Page, error)
}

// PageOpenerFunc adapts a function to the PageOpener interface.
type PageOpenerFunc func(ctx context.Context, url string) (Page, error)

// Open calls f(ctx, url).
func (f PageOpenerFunc) Open(ctx context.Context, url string) (Page, error) {
	return f(ctx, url)
}

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx       context.Context
	Stdout    io.Writer
	Stderr    io.Writer
	Logger    *slog.Logger
	Templates listgrab.TemplateService
	Runs      listgrab.RunService
	Items     listgrab.ItemService
	Pages     PageOpener
	Fetcher   listgrab.Fetcher
	Converter listgrab.Converter
}

func (d *Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Verbose bool `short:"v" help:"Log progress to stderr"`

	Grab      GrabCmd      `cmd:"" help:"Detect the list around a seed element in a live browser, scroll it and export its items"`
	Static    StaticCmd    `cmd:"" help:"Export the items of a list from the page HTML without scrolling"`
	Templates TemplatesCmd `cmd:"" help:"Manage saved site templates"`
	Runs      RunsCmd      `cmd:"" help:"List past harvest runs"`
}

// SourceFlags select the list on the page and where its items go.
type SourceFlags struct {
	Seed         string `arg:"" optional:"" help:"CSS selector of one list item"`
	Template     string `short:"t" help:"Use a saved template for this host instead of a seed"`
	SaveTemplate string `name:"save-template" placeholder:"NAME" help:"Save the detected pattern as a template"`
	Output       string `short:"o" default:"items.jsonl" help:"Output file"`
	Format       string `help:"Output format: jsonl or md (default: from the output extension)"`
	Markdown     bool   `short:"m" help:"Add a markdown rendering of every item"`
	Config       string `short:"c" type:"existingfile" help:"YAML job file with detector and scroller settings"`
}

// GrabCmd is the "grab" subcommand.
type GrabCmd struct {
	URL         string `arg:"" help:"Page URL"`
	SourceFlags `embed:""`

	MaxItems  int           `short:"n" help:"Stop after this many unique items (0 = no limit)"`
	Timeout   time.Duration `default:"10m" help:"Stop after this long and keep what was collected"`
	Show      bool          `help:"Run the browser with a visible window"`
	NoStealth bool          `name:"no-stealth" help:"Do not hide browser automation from the site"`
}

// StaticCmd is the "static" subcommand.
type StaticCmd struct {
	URL         string `arg:"" help:"Page URL"`
	SourceFlags `embed:""`

	Render bool `short:"r" help:"Render the page in a browser before extracting"`
}

// TemplatesCmd is the "templates" command group.
type TemplatesCmd struct {
	List   TemplatesListCmd   `cmd:"" default:"1" help:"List saved templates"`
	Delete TemplatesDeleteCmd `cmd:"" help:"Delete a saved template"`
}

// TemplatesListCmd is the "templates list" subcommand.
type TemplatesListCmd struct {
	Host string `help:"Only list templates for this host"`
}

// TemplatesDeleteCmd is the "templates delete" subcommand.
type TemplatesDeleteCmd struct {
	Host  string `arg:"" help:"Template host"`
	Name  string `arg:"" help:"Template name"`
	Force bool   `help:"Confirm deletion"`
}

// RunsCmd is the "runs" subcommand.
type RunsCmd struct {
	URL   string `help:"Only list runs of this URL"`
	Limit int    `default:"20" help:"Maximum number of runs to list"`
}

// message returns the text shown to the user for err.
func message(err error) string {
	if listgrab.ErrorCode(err) == listgrab.EINTERNAL {
		return err.Error()
	}
	return listgrab.ErrorMessage(err)
}
