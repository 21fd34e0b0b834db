package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/htmltomarkdown"
	lghttp "github.com/fwojciec/listgrab/http"
	"github.com/fwojciec/listgrab/rod"
	lgslog "github.com/fwojciec/listgrab/slog"
	"github.com/fwojciec/listgrab/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Database path. Set before calling Run().
	DBPath string

	// SQLite database used by SQLite service implementations.
	DB *sqlite.DB

	// Pages, when set, replaces the browser for the grab command.
	Pages PageOpener

	// Fetcher, when set, replaces the network for the static command.
	Fetcher listgrab.Fetcher
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		DBPath: defaultDBPath(),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("listgrab"),
		kong.Description("Find a repeating list on a web page, scroll it to the end and export its items."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'listgrab --help' to see available commands")
	}
	switch args[0] {
	case "help", "--help", "-h":
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelDebug
	}
	deps.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	m.DB = sqlite.NewDB(m.DBPath)
	if err := m.DB.Open(); err != nil {
		fmt.Fprintf(stderr, "Hint: Set LISTGRAB_DB to use a different database path\n")
		return fmt.Errorf("failed to open database at %q: %w", m.DBPath, err)
	}
	defer m.Close()

	deps.Templates = lgslog.NewLoggingTemplateService(sqlite.NewTemplateService(m.DB), deps.Logger)
	deps.Runs = sqlite.NewRunService(m.DB)
	deps.Items = sqlite.NewItemService(m.DB)
	deps.Converter = htmltomarkdown.NewConverter()

	switch cmd := kongCtx.Command(); {
	case strings.HasPrefix(cmd, "grab"):
		pages := m.Pages
		if pages == nil {
			bm, err := rod.NewBrowserManager(
				rod.WithHeadless(!cli.Grab.Show),
				rod.WithStealth(!cli.Grab.NoStealth),
			)
			if err != nil {
				fmt.Fprintln(stderr, "Hint: Chrome or Chromium must be installed")
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer bm.Close()
			pages = browserPages(bm, deps.Logger)
		}
		deps.Pages = pages

	case strings.HasPrefix(cmd, "static"):
		fetcher := m.Fetcher
		if fetcher == nil {
			if cli.Static.Render {
				f, err := rod.NewFetcher()
				if err != nil {
					fmt.Fprintln(stderr, "Hint: Chrome or Chromium must be installed")
					return fmt.Errorf("failed to start browser: %w", err)
				}
				fetcher = f
			} else {
				fetcher = lghttp.NewRetryFetcher(lghttp.NewFetcher(), lghttp.DefaultRetryDelays(), deps.Logger)
			}
			defer fetcher.Close()
		}
		deps.Fetcher = lgslog.NewLoggingFetcher(fetcher, deps.Logger)
	}

	return kongCtx.Run(deps)
}

// browserPages opens pages in bm.
func browserPages(bm *rod.BrowserManager, logger *slog.Logger) PageOpener {
	return PageOpenerFunc(func(ctx context.Context, url string) (Page, error) {
		doc, err := bm.Open(ctx, url, rod.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return doc, nil
	})
}

func defaultDBPath() string {
	if path := os.Getenv("LISTGRAB_DB"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "listgrab.db"
	}
	dir := filepath.Join(home, ".listgrab")
	_ = os.MkdirAll(dir, 0755)
	return filepath.Join(dir, "listgrab.db")
}
