//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places a replaceable child in its own process group so
// killing it also reaches anything it spawned. Patient children stay in the
// drone's group and receive terminal interrupts together with the drone.
func configureSysProcAttr(cmd *exec.Cmd, patient bool) {
	if patient {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
