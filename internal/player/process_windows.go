//go:build windows

package player

import (
	"os/exec"
	"syscall"
	"time"
)

// SetupPlayerProcess configures the process for detached execution
func SetupPlayerProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// TerminatePlayerProcess kills the player.  Windows has no graceful signal.
func TerminatePlayerProcess(cmd *exec.Cmd, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
