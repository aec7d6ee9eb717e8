//go:build windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/natefinch/npipe.v2"
)

// dial connects to the player's named pipe
func dial(socketPath string) (net.Conn, error) {
	return npipe.DialTimeout(socketPath, 2*time.Second)
}

// socketPath returns a per-process control pipe name
func socketPath() string {
	if path := os.Getenv("MPV_IPC_SOCKET"); path != "" {
		return path
	}
	return fmt.Sprintf(`\\.\pipe\hibiki-mpv-%d`, os.Getpid())
}

// removeSocket is a no-op; the pipe disappears with its owner
func removeSocket(string) {}
