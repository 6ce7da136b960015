package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/pokemap/maptracker/internal/config"
	"github.com/pokemap/maptracker/internal/dispatcher"
	"github.com/pokemap/maptracker/internal/handlers"
	"github.com/pokemap/maptracker/internal/i18n"
	"github.com/pokemap/maptracker/internal/monitor"
	"github.com/pokemap/maptracker/internal/overlay"
	"github.com/pokemap/maptracker/internal/persist"
	"github.com/pokemap/maptracker/internal/server"
	"github.com/pokemap/maptracker/pkg/core"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const (
	sourceCLI    = "cli"
	flushTimeout = 5 * time.Second
)

var (
	styleCollected = color.Style{color.FgGreen, color.OpBold}
	styleOpen      = color.Style{color.FgGray}
	styleCategory  = color.Style{color.FgBlue}
	styleWarn      = color.Style{color.FgYellow}
	styleError     = color.Style{color.FgRed, color.OpBold}
)

type command struct {
	args    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"serve":   {"", "serve the map API and WebSocket until interrupted", runServe},
		"list":    {"[category]", "list markers and whether they are collected", runList},
		"toggle":  {"<id>...", "toggle the collected state of markers", runToggle},
		"export":  {"[path|-]", "write the selection to a save file, or stdout with -", runExport},
		"import":  {"<path>", "replace the selection with a save file", runImport},
		"version": {"", "print the version", runVersion},
	}
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: %s [flags] <command> [args]\n\nCommands:\n", appName)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(w, "  %-8s %-10s %s\n", name, c.args, c.summary)
	}
	fmt.Fprintln(w, "\nFlags:")
	fs.PrintDefaults()
}

func runServe(ctx context.Context, a *app, _ []string) error {
	srvCfg := config.GetServerConfig()
	srv, err := server.New(server.Dependencies{
		Store:      a.store,
		Catalog:    a.catalog,
		Persist:    a.persist,
		Dispatcher: a.dispatcher,
		Translator: a.translator,
		Logger:     a.logger,
	}, server.Config{
		Listen:         srvCfg.Listen,
		AllowedOrigins: srvCfg.AllowedOrigins,
		StaticDir:      srvCfg.StaticDir,
		MaxUploadBytes: srvCfg.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	mon := monitor.NewService(monitor.Dependencies{
		Store:      a.store,
		Catalog:    a.catalog,
		Persist:    a.persist,
		Clients:    srv.Hub().Len,
		Logger:     a.logger,
		StatusPath: srvCfg.StatusFile,
		Interval:   srvCfg.StatusInterval,
	})
	mon.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		mon.Stop()
		a.logger.Info("Shutting down, flushing selection")
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		return a.persist.Sync(flushCtx)
	})

	fmt.Fprintf(a.stdout, "Serving %d markers on http://%s\n", a.catalog.Len(), srvCfg.Listen)
	return g.Wait()
}

func runList(_ context.Context, a *app, args []string) error {
	markers := a.catalog.All()
	if len(args) > 0 {
		cat := core.Category(strings.ToLower(args[0]))
		if !cat.Valid() {
			return fmt.Errorf("unknown category %q, want one of %v", args[0], core.Categories)
		}
		markers = a.catalog.ByCategory(cat)
	}

	views := overlay.Build(markers, a.store)
	collected := 0
	for _, v := range views {
		mark := styleOpen.Sprint("[ ]")
		if v.ShowCheckmark() {
			mark = styleCollected.Sprint("[x]")
			collected++
		}
		fmt.Fprintf(a.stdout, "%s %-20s %s %s\n", mark, v.ID, styleCategory.Sprintf("%-9s", v.Category), v.Label)
	}
	fmt.Fprintf(a.stdout, "%d/%d collected\n", collected, len(views))
	return nil
}

func runToggle(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("toggle needs at least one marker id")
	}
	for _, id := range args {
		res, err := a.dispatcher.Dispatch(ctx, dispatcher.Event{
			Command:   handlers.CmdToggle,
			Marker:    core.MarkerID(id),
			Source:    sourceCLI,
			Timestamp: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("toggle %s: %w", id, err)
		}
		r, ok := res.(handlers.ToggleResult)
		if !ok {
			return fmt.Errorf("toggle %s: unexpected result %T", id, res)
		}

		state := styleOpen.Sprint("not collected")
		if r.Selected {
			state = styleCollected.Sprint("collected")
		}
		line := fmt.Sprintf("%s %s", r.ID, state)
		if !r.Known {
			line += styleWarn.Sprint(" (not on this map)")
		}
		fmt.Fprintln(a.stdout, line)
	}
	return a.persist.Sync(ctx)
}

func runExport(_ context.Context, a *app, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	if path == "-" {
		return a.persist.ExportToFile(a.stdout)
	}
	written, err := a.persist.ExportFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Saved %d markers to %s\n", a.store.Len(), written)
	return nil
}

func runImport(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("import needs exactly one save file")
	}
	res, err := a.persist.ImportFile(ctx, args[0])
	if err != nil {
		if errors.Is(err, persist.ErrImportParse) {
			fmt.Fprintln(a.stderr, styleWarn.Sprint(a.translator.Get(i18n.ImportParseError)))
		}
		return err
	}

	fmt.Fprintln(a.stdout, a.translator.Format(i18n.ImportApplied, res.Selected))
	if len(res.Unknown) > 0 {
		fmt.Fprintln(a.stdout, styleWarn.Sprint(a.translator.Format(i18n.ImportUnknown, len(res.Unknown))))
	}
	return a.persist.Sync(ctx)
}

func runVersion(_ context.Context, a *app, _ []string) error {
	fmt.Fprintf(a.stdout, "%s %s (built %s)\n", appName, Version, BuildDate)
	return nil
}
