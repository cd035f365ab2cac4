package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/app"
	"github.com/gmsas95/devocr/internal/convert"
	"github.com/gmsas95/devocr/internal/export"
)

const defaultDebounce = 2 * time.Second

func newWatchCommand(g *globalFlags) *cobra.Command {
	var (
		format   string
		existing bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Convert every PDF that appears in a folder",
		Long: `Watch a folder and convert each new or changed PDF once it has stopped
changing. Results go to the output directory in the default format.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.openApp(app.ModeCLI, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if format == "" {
				format = a.Config.Output.DefaultFormat
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if report := a.Verifier.Check(cmd.Context()); !report.OK {
				printReport(cmd.ErrOrStderr(), report, g.noColor)
				return report.Err()
			}

			c := &conversion{
				svc:       a.Service,
				exporter:  a.Exporter,
				outputDir: a.Config.Output.Dir,
				maxBytes:  int64(a.Config.Server.BodyLimitMB) * 1024 * 1024,
				logger:    a.Logger,
			}
			opts := a.Service.Resolve(convert.Options{})

			w := newFolderWatcher(args[0], debounce, a.Logger, func(ctx context.Context, path string) error {
				res, err := c.run(ctx, conversionRequest{Paths: []string{path}, Format: f, Options: opts}, newLogReporter(a.Logger))
				if res != nil && res.Record != nil {
					a.Logger.Info("Saved", zap.String("path", res.Record.Path), zap.Int64("size", res.Record.Size))
				}
				return err
			})
			w.ignoreDir = a.Config.Output.Dir

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if existing {
				if err := w.queueExisting(); err != nil {
					return err
				}
			}
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "output format (default output.default_format)")
	cmd.Flags().BoolVar(&existing, "existing", false, "also convert PDFs already in the folder")
	cmd.Flags().DurationVar(&debounce, "settle", defaultDebounce, "quiet period before a changed file is converted")
	return cmd
}

// folderWatcher converts PDFs in dir one at a time, after each has been
// quiet for the debounce period.
type folderWatcher struct {
	dir       string
	ignoreDir string
	debounce  time.Duration
	handle    func(ctx context.Context, path string) error
	logger    *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]time.Time
	queue  chan string
}

func newFolderWatcher(dir string, debounce time.Duration, logger *zap.Logger, handle func(context.Context, string) error) *folderWatcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &folderWatcher{
		dir:      dir,
		debounce: debounce,
		handle:   handle,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		seen:     make(map[string]time.Time),
		queue:    make(chan string, 64),
	}
}

func isPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

func (w *folderWatcher) wanted(path string) bool {
	if !isPDFName(path) {
		return false
	}
	if w.ignoreDir != "" {
		abs, err1 := filepath.Abs(filepath.Dir(path))
		ignore, err2 := filepath.Abs(w.ignoreDir)
		if err1 == nil && err2 == nil && abs == ignore {
			return false
		}
	}
	return true
}

func (w *folderWatcher) queueExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.dir, err)
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.wanted(path) {
			select {
			case w.queue <- path:
			default:
				w.logger.Warn("Watch queue full, skipping", zap.String("document", path))
			}
		}
	}
	return nil
}

// Run watches until ctx is canceled.
func (w *folderWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching for PDFs", zap.String("dir", w.dir))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx)
	}()
	defer wg.Wait()
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) && w.wanted(ev.Name) {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

func (w *folderWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.queue <- path:
		case <-ctx.Done():
		}
	})
}

func (w *folderWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *folderWatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.queue:
			w.process(ctx, path)
		}
	}
}

// process converts path unless this version of it was already handled.
func (w *folderWatcher) process(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if mod, ok := w.seen[path]; ok && mod.Equal(info.ModTime()) {
		return
	}
	w.seen[path] = info.ModTime()

	if err := w.handle(ctx, path); err != nil {
		w.logger.Error("Watch conversion failed", zap.String("document", path), zap.Error(err))
	}
}
