//go:build !windows

package player

import (
	"os/exec"
	"syscall"
	"time"
)

// SetupPlayerProcess configures the process for detached execution
func SetupPlayerProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// TerminatePlayerProcess asks the player to exit, escalating to a hard kill
// after the grace period.
func TerminatePlayerProcess(cmd *exec.Cmd, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		_ = cmd.Process.Kill()
	}
}
