package detector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/loykin/drone/internal/metrics"
)

// Notifier detects changes from filesystem notifications. Events are
// queued by the kernel between scans and drained by Scan, so nothing that
// happened before the watcher was created is ever reported.
type Notifier struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	lastScan time.Time
}

// NewNotifier starts watching every directory in dirs (non-recursively).
// Directories that cannot be watched are logged and skipped.
func NewNotifier(dirs []string, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			logger.Warn("watch directory skipped", "dir", dir, "error", err)
		}
	}
	return &Notifier{watcher: w, logger: logger}, nil
}

func (n *Notifier) Scan() bool {
	n.lastScan = time.Now()
	metrics.IncScan()
	changed := false
	for {
		select {
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return changed
			}
			if ev.Op == 0 {
				continue
			}
			n.logger.Debug("watched entry changed", "path", ev.Name, "op", ev.Op.String())
			changed = true
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return changed
			}
			n.logger.Warn("watch error", "error", err)
		default:
			return changed
		}
	}
}

func (n *Notifier) LastScan() time.Time { return n.lastScan }

func (n *Notifier) Close() error { return n.watcher.Close() }
