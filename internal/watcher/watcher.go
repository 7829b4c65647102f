package watcher

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/devkeep/internal/config"
)

// defaultDebounce batches the burst of filesystem events an editor save or
// an atomic rename produces into a single reload.
const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the config document when it changes on disk. The serve
// daemon runs one so edits made with a text editor or a second devkeep
// process take effect without a restart.
type Watcher struct {
	cfg      *config.Store
	logger   *log.Logger
	onChange func(*config.Config)

	delay  time.Duration
	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a watcher for the document behind cfg. onChange receives every
// reloaded config; it runs on the watcher goroutine, so it must not block.
func New(cfg *config.Store, logger *log.Logger, onChange func(*config.Config)) (*Watcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config store cannot be nil")
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback cannot be nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		cfg:      cfg,
		logger:   logger,
		onChange: onChange,
		delay:    defaultDebounce,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It does not invoke the callback for the document
// already on disk; callers load the config themselves before starting.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}

	// Watch the directory, not the file. Save replaces the document with a
	// rename, and most editors do the same, which would orphan a watch
	// placed on the file itself.
	dir := filepath.Dir(w.cfg.Path())
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.fsw = fsw
	w.wg.Add(1)
	go w.run()

	return nil
}

// run receives filesystem events until the watcher stops, debouncing bursts
// before reloading.
func (w *Watcher) run() {
	defer w.wg.Done()

	debounce := time.NewTimer(w.delay)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			// Drain before Reset so a stale tick cannot double-fire.
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(w.delay)
		case <-debounce.C:
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher: %v", err)
		}
	}
}

// relevant reports whether event touches the config document. Create and
// Rename cover atomic replacement, Write covers in-place edits. Chmod is
// noise.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != filepath.Base(w.cfg.Path()) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	cfg, warn := w.cfg.Load()
	if warn != nil {
		w.logger.Printf("watcher: %v", warn)
	}
	w.logger.Printf("watcher: config reloaded from %s", w.cfg.Path())
	w.onChange(cfg)
}

// Stop halts the watcher and waits for the event loop to exit. A pending
// debounced reload is dropped, not flushed.
func (w *Watcher) Stop() error {
	close(w.stopCh)

	if w.fsw != nil {
		if err := w.fsw.Close(); err != nil {
			return fmt.Errorf("failed to close fs watcher: %w", err)
		}
	}

	w.wg.Wait()
	return nil
}
