package detector

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/drone/internal/metrics"
)

// Poller detects changes by comparing the modification time of every entry
// directly inside each watched directory with the value seen on the
// previous scan. Directories are not descended into.
type Poller struct {
	dirs     []string
	logger   *slog.Logger
	records  map[string]time.Time
	scanned  bool
	lastScan time.Time
}

// NewPoller returns a Poller over dirs. The first Scan only records a
// baseline and never reports a change.
func NewPoller(dirs []string, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		dirs:    append([]string(nil), dirs...),
		logger:  logger,
		records: make(map[string]time.Time),
	}
}

func (p *Poller) Scan() bool {
	next := make(map[string]time.Time, len(p.records))
	changed := 0
	for _, dir := range p.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			// unreadable directories are skipped; the drone keeps serving
			p.logger.Warn("watch scan skipped directory", "dir", dir, "error", err)
			p.carry(dir, next)
			continue
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				// removed between ReadDir and Info
				continue
			}
			path := filepath.Join(dir, e.Name())
			mtime := info.ModTime()
			next[path] = mtime
			prev, seen := p.records[path]
			if !seen || !prev.Equal(mtime) {
				changed++
				p.logger.Debug("watched entry changed", "path", path, "new", !seen)
			}
		}
	}
	baseline := !p.scanned
	p.records = next
	p.scanned = true
	p.lastScan = time.Now()
	metrics.IncScan()

	if baseline {
		return false
	}
	return changed > 0
}

// carry keeps the records of a directory that could not be read, so a
// transient failure is not reported as a change once it is readable again.
func (p *Poller) carry(dir string, next map[string]time.Time) {
	dir = filepath.Clean(dir)
	for path, mtime := range p.records {
		if filepath.Dir(path) == dir {
			next[path] = mtime
		}
	}
}

func (p *Poller) LastScan() time.Time { return p.lastScan }

func (p *Poller) Close() error { return nil }
