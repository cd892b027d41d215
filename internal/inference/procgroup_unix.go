//go:build unix

package inference

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// startInProcessGroup puts the tool in its own process group so that
// cancellation reaches the ffmpeg children it spawns.
func startInProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
}

// killProcessGroup sends SIGKILL to every process left in the tool's group.
// The group id stays reserved while any member is alive, so it is safe to
// call after the leader has been reaped.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
