// Command maptracker serves and edits the collected-marker selection of the
// companion map.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/pokemap/maptracker/internal/catalog"
	"github.com/pokemap/maptracker/internal/config"
	"github.com/pokemap/maptracker/internal/dispatcher"
	"github.com/pokemap/maptracker/internal/handlers"
	"github.com/pokemap/maptracker/internal/i18n"
	"github.com/pokemap/maptracker/internal/logging"
	"github.com/pokemap/maptracker/internal/persist"
	"github.com/pokemap/maptracker/internal/selection"
	"github.com/pokemap/maptracker/internal/storage"
	"github.com/pokemap/maptracker/internal/storage/memory"
	"github.com/spf13/pflag"
)

// BuildDate can be set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const appName = "maptracker"

type options struct {
	configDir string
	logLevel  string
	listen    string
	noColor   bool
}

// app holds everything a command needs. It is built once per invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	logs   *logging.SlogManager
	logger *slog.Logger
	logCfg config.LogConfig

	catalog    *catalog.Catalog
	store      *selection.Store
	ambient    storage.AmbientStore
	persist    *persist.Adapter
	dispatcher *dispatcher.Dispatcher
	translator *i18n.Translator

	// read by the log context provider, which must not take the store lock
	selected     atomic.Int64
	storageLabel atomic.Pointer[string]
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args, executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVarP(&opts.configDir, "config-dir", "c", ".", "directory containing "+config.FileName)
	fs.StringVar(&opts.logLevel, "log-level", "", "override logLevel (debug, info, warn, error)")
	fs.StringVar(&opts.listen, "listen", "", "override server.listen for serve")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", rest[0])
		fs.Usage()
		return 2
	}
	if opts.noColor {
		color.Disable()
	}

	a, err := newApp(ctx, opts, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, styleError.Sprint("error:"), err)
		return 1
	}

	code := 0
	if err := cmd.run(ctx, a, rest[1:]); err != nil {
		a.logger.Error("Command failed", "command", rest[0], "error", err)
		fmt.Fprintln(stderr, styleError.Sprint("error:"), err)
		code = 1
	}
	if err := a.close(); err != nil {
		fmt.Fprintln(stderr, styleError.Sprint("error:"), err)
		code = 1
	}
	return code
}

func newApp(ctx context.Context, opts options, stdout, stderr io.Writer) (*app, error) {
	a := &app{
		stdout: stdout,
		stderr: stderr,
		logs:   logging.NewSlogManager(),
	}

	cfgErr := config.Load(opts.configDir)
	if opts.logLevel != "" {
		config.Set("logLevel", opts.logLevel)
	}
	if opts.listen != "" {
		config.Set("server.listen", opts.listen)
	}
	a.logCfg = config.GetLogConfig()
	dbLog := a.setupLogging(time.Now())

	switch {
	case errors.Is(cfgErr, config.ErrNoConfigFile):
		a.logger.Warn("Failed to load config, using defaults!", "error", cfgErr)
	case cfgErr != nil:
		_ = a.logs.Close()
		return nil, cfgErr
	default:
		a.logger.Info("Loaded config", "dir", opts.configDir)
	}

	cat, err := catalog.LoadDir(config.GetCatalogDir())
	if err != nil {
		a.logger.Warn("Failed to load marker catalog, continuing without markers", "dir", config.GetCatalogDir(), "error", err)
		cat = catalog.New()
	}
	a.catalog = cat
	a.logger.Info("Marker catalog loaded", "markers", cat.Len())

	tr, err := i18n.New(config.GetLanguage())
	if err != nil {
		a.logger.Warn("Unsupported language, using default", "language", config.GetLanguage(), "error", err)
		tr, err = i18n.New(i18n.DefaultLanguage)
		if err != nil {
			_ = a.logs.Close()
			return nil, err
		}
	}
	a.translator = tr

	a.store = selection.New()
	a.store.Subscribe(func(c selection.Change) {
		a.selected.Store(int64(len(c.Snapshot.Selected)))
	})

	storageCfg := config.GetStorageConfig()
	ambient, err := a.createAmbientStore(storageCfg, dbLog)
	if err != nil {
		a.logger.Warn("Ambient storage unavailable, keeping selection in memory only", "error", err)
		ambient = memory.New(memory.Config{})
	}
	a.ambient = ambient
	label := storage.Describe(ambient)
	a.storageLabel.Store(&label)

	a.persist, err = persist.New(persist.Dependencies{
		Store:   a.store,
		Ambient: ambient,
		Logger:  a.logger,
		Known:   cat.Has,
	}, persist.Config{
		Key:          storageCfg.Key,
		QueueSize:    storageCfg.WriteQueue,
		WriteTimeout: storageCfg.WriteTimeout,
	})
	if err != nil {
		_ = ambient.Close()
		_ = a.logs.Close()
		return nil, err
	}
	a.persist.HydrateFromAmbientStore(ctx)

	a.dispatcher, err = dispatcher.New(a.logger)
	if err != nil {
		_ = a.persist.Close()
		_ = ambient.Close()
		_ = a.logs.Close()
		return nil, err
	}
	handlers.NewService(handlers.Dependencies{
		Store:   a.store,
		Catalog: cat,
		Logger:  a.logger,
	}).Register(a.dispatcher)

	return a, nil
}

// setupLogging opens the session log file and returns the writer used for
// database logs. Without a usable log file, logs go to stderr so stdout
// stays clean for command output.
func (a *app) setupLogging(sessionStart time.Time) io.Writer {
	var out io.Writer = a.stderr
	var fileErr error

	if err := os.MkdirAll(a.logCfg.Dir, 0755); err != nil {
		fileErr = err
	} else {
		path := logging.LogFilePath(a.logCfg.Dir, appName, sessionStart)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			fileErr = err
		} else {
			out = f
			a.logs.AddCloser(f)
		}
	}

	var extra []slog.Handler
	var gelfErr error
	if a.logCfg.GraylogEnabled {
		h, closer, err := logging.NewGelfHandler(a.logCfg.GraylogAddress, a.logs.HandlerOptions())
		if err != nil {
			gelfErr = err
		} else {
			extra = append(extra, h)
			a.logs.AddCloser(closer)
		}
	}

	a.logs.Setup(out, a.logCfg.Level, extra...)
	a.logs.WithSession(func() []slog.Attr {
		attrs := []slog.Attr{slog.Int64("selected", a.selected.Load())}
		if label := a.storageLabel.Load(); label != nil {
			attrs = append(attrs, slog.String("storage", *label))
		}
		return attrs
	})
	a.logger = a.logs.Logger()
	a.logger.Info("maptracker starting", "version", Version, "build", BuildDate)

	if fileErr != nil {
		a.logger.Warn("Failed to open log file, logging to stderr", "dir", a.logCfg.Dir, "error", fileErr)
	}
	if gelfErr != nil {
		a.logger.Warn("Failed to connect to Graylog", "address", a.logCfg.GraylogAddress, "error", gelfErr)
	}
	return out
}

// close flushes the selection and releases every resource.
func (a *app) close() error {
	a.dispatcher.Close()
	errs := []error{a.persist.Close(), a.ambient.Close()}
	a.logger.Info("maptracker stopped")
	errs = append(errs, a.logs.Close())
	return errors.Join(errs...)
}
