//go:build !windows

package process

import (
	"errors"

	"golang.org/x/sys/unix"
)

// killGroup sends SIGKILL to the process group led by pid. A group that
// already exited is not an error.
func killGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	// fall back to the leader alone, e.g. when it never became a group leader
	if err2 := unix.Kill(pid, unix.SIGKILL); err2 != nil && !errors.Is(err2, unix.ESRCH) {
		return err
	}
	return nil
}
