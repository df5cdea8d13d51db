//go:build !windows

package channel

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	// ErrNoData is returned by Read when nothing is waiting in the channel.
	// It is the normal polling outcome, not a failure.
	ErrNoData = errors.New("channel: no data available")
	// ErrNoReader is returned by WriteOnce when no drone holds the channel open.
	ErrNoReader = errors.New("channel: no reader attached")
	// ErrClosed is returned when reading from a destroyed channel.
	ErrClosed = errors.New("channel: closed")
)

// Channel is the reader side of a named FIFO owned by a single drone.
type Channel struct {
	path string

	mu        sync.Mutex
	fd        int
	destroyed bool
}

// Create makes a FIFO at path. A leftover object with the same name is
// removed and the FIFO recreated.
func Create(path string) (*Channel, error) {
	err := unix.Mkfifo(path, 0o600)
	if errors.Is(err, unix.EEXIST) {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale channel %s: %w", path, rmErr)
		}
		err = unix.Mkfifo(path, 0o600)
	}
	if err != nil {
		return nil, fmt.Errorf("create channel %s: %w", path, err)
	}
	return &Channel{path: path, fd: -1}, nil
}

// Path returns the filesystem location of the channel.
func (c *Channel) Path() string { return c.path }

// OpenReader opens the channel for non-blocking reads.
func (c *Channel) OpenReader() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrClosed
	}
	if c.fd >= 0 {
		return nil
	}
	fd, err := unix.Open(c.path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open channel %s: %w", c.path, err)
	}
	c.fd = fd
	return nil
}

// Read copies up to len(p) available bytes into p without blocking.
// It returns ErrNoData when no writer has pending bytes; a zero-length read
// (writer closed, none connected) is reported the same way.
func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	fd := c.fd
	destroyed := c.destroyed
	c.mu.Unlock()
	if destroyed || fd < 0 {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Read(fd, p)
		switch {
		case err == nil && n > 0:
			return n, nil
		case err == nil:
			return 0, ErrNoData
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			return 0, ErrNoData
		case errors.Is(err, unix.EINTR):
			continue
		default:
			return 0, fmt.Errorf("read channel %s: %w", c.path, err)
		}
	}
}

// Destroy closes the reader and unlinks the FIFO. Only the first call does
// any work; an object already removed by someone else is not an error.
func (c *Channel) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	var errs []error
	if c.fd >= 0 {
		if err := unix.Close(c.fd); err != nil {
			errs = append(errs, fmt.Errorf("close channel %s: %w", c.path, err))
		}
		c.fd = -1
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove channel %s: %w", c.path, err))
	}
	return errors.Join(errs...)
}

// WriteOnce opens the channel at path for writing, writes the whole payload
// and closes it. A channel nobody is reading fails with ErrNoReader rather
// than blocking, and so does anything at path that is not a FIFO.
func WriteOnce(path string, data []byte) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return fmt.Errorf("%s: %w", path, ErrNoReader)
		}
		return fmt.Errorf("open channel %s: %w", path, err)
	}
	defer func() { _ = unix.Close(fd) }()

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return fmt.Errorf("stat channel %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFIFO {
		return fmt.Errorf("%s is not a channel: %w", path, ErrNoReader)
	}
	// the reader exists; let large payloads wait for room in the pipe
	if err := unix.SetNonblock(fd, false); err != nil {
		return fmt.Errorf("configure channel %s: %w", path, err)
	}
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EPIPE) {
				return fmt.Errorf("%s: %w", path, ErrNoReader)
			}
			return fmt.Errorf("write channel %s: %w", path, err)
		}
		data = data[n:]
	}
	return nil
}

// IsChannel reports whether path exists and is a FIFO.
func IsChannel(path string) bool {
	fi, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeNamedPipe != 0
}
