//go:build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/fumetsu/hibiki/internal/log"
)

// dial connects to the player's Unix domain socket
func dial(socketPath string) (net.Conn, error) {
	return net.DialTimeout("unix", socketPath, 2*time.Second)
}

// socketPath returns a per-process control socket path
func socketPath() string {
	if path := os.Getenv("MPV_IPC_SOCKET"); path != "" {
		return path
	}
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("hibiki-mpv-%d.sock", os.Getpid()))
}

// removeSocket deletes the socket file after the session
func removeSocket(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Debug("Failed to remove player socket", "path", path, "error", err)
	}
}
