package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

var (
	ErrNoDrones  = errors.New("found no drones running")
	ErrAmbiguous = errors.New("found multiple drones running and none was selected")
	ErrNotFound  = errors.New("drone not found")
	ErrInvalidID = errors.New("invalid drone id")
)

// Registry is the per-user directory holding one channel per live drone.
// The names of its children are the ids of the live drones.
type Registry struct {
	dir  string
	lock *flock.Flock
}

// DefaultDir returns $XDG_DATA_HOME/drones, falling back to
// ~/.local/share/drones.
func DefaultDir() (string, error) {
	if x := os.Getenv("XDG_DATA_HOME"); x != "" {
		return filepath.Join(x, "drones"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "drones"), nil
}

// New opens the registry at dir, creating the directory when missing.
// The allocation lock lives next to the directory so it never shows up
// as a drone.
func New(dir string) (*Registry, error) {
	if dir == "" {
		return nil, fmt.Errorf("registry directory is empty")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create registry %s: %w", dir, err)
	}
	return &Registry{dir: dir, lock: flock.New(dir + ".lock")}, nil
}

// Dir returns the registry directory.
func (r *Registry) Dir() string { return r.dir }

// Path returns the channel location for id.
func (r *Registry) Path(id string) string { return filepath.Join(r.dir, id) }

// List returns the ids present in the registry. Numeric ids come first in
// numeric order, followed by the rest sorted lexically.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list registry %s: %w", r.dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Name())
	}
	SortIDs(ids)
	return ids, nil
}

// SortIDs orders ids numerically where possible, then lexically.
func SortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, aErr := strconv.Atoi(ids[i])
		b, bErr := strconv.Atoi(ids[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}

// NextID returns the smallest positive integer, as a string, that is not
// among existing.
func NextID(existing []string) string {
	used := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		used[id] = struct{}{}
	}
	n := 1
	for {
		id := strconv.Itoa(n)
		if _, ok := used[id]; !ok {
			return id
		}
		n++
	}
}

// ValidateID checks that a user supplied id names a single, visible
// directory entry.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case strings.ContainsRune(id, os.PathSeparator), strings.ContainsRune(id, '/'):
		return fmt.Errorf("%w %q: contains a path separator", ErrInvalidID, id)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("%w %q: must not start with '.'", ErrInvalidID, id)
	}
	return nil
}

// Claim picks an id (requested, or the next free one when requested is
// empty) and calls create with the channel path while holding the registry
// lock, so concurrent drones never claim the same id.
func (r *Registry) Claim(requested string, create func(path string) error) (string, string, error) {
	if requested != "" {
		if err := ValidateID(requested); err != nil {
			return "", "", err
		}
	}
	if err := r.lock.Lock(); err != nil {
		return "", "", fmt.Errorf("lock registry: %w", err)
	}
	defer func() { _ = r.lock.Unlock() }()

	id := requested
	if id == "" {
		ids, err := r.List()
		if err != nil {
			return "", "", err
		}
		id = NextID(ids)
	}
	path := r.Path(id)
	if err := create(path); err != nil {
		return "", "", err
	}
	return id, path, nil
}

// Select resolves the channel a client should write to. Without an id the
// registry must hold exactly one drone.
func (r *Registry) Select(id string) (string, error) {
	ids, err := r.List()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ErrNoDrones
	}
	if id == "" {
		if len(ids) > 1 {
			return "", fmt.Errorf("%w (use --id to pick one of %s)", ErrAmbiguous, strings.Join(ids, ", "))
		}
		return r.Path(ids[0]), nil
	}
	for _, candidate := range ids {
		if candidate == id {
			return r.Path(id), nil
		}
	}
	return "", fmt.Errorf("%w: id=%s", ErrNotFound, id)
}

// Remove deletes the channel object for id. A missing object is not an error.
func (r *Registry) Remove(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.Remove(r.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}
