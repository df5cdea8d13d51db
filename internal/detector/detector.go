package detector

import (
	"fmt"
	"log/slog"
	"time"
)

// Mode selects how a Detector notices changes in the watch set.
type Mode string

const (
	// ModePoll compares directory entry modification times on every scan.
	ModePoll Mode = "poll"
	// ModeNotify relies on filesystem notifications collected between scans.
	ModeNotify Mode = "notify"
)

// Detector reports whether anything in a set of watched directories changed
// since the previous scan. Scans are driven by the caller; implementations
// never block inside Scan.
type Detector interface {
	// Scan returns true if at least one watched entry is new or changed.
	Scan() bool
	// LastScan returns when Scan last ran (zero before the first scan).
	LastScan() time.Time
	// Close releases any resources held by the detector.
	Close() error
}

// New builds the Detector for mode. An empty mode means ModePoll.
func New(mode Mode, dirs []string, logger *slog.Logger) (Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch mode {
	case "", ModePoll:
		return NewPoller(dirs, logger), nil
	case ModeNotify:
		return NewNotifier(dirs, logger)
	default:
		return nil, fmt.Errorf("unknown watch mode %q", mode)
	}
}
