package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fumetsu/hibiki/internal/log"
)

const (
	defaultLockStaleTimeout = 30 * time.Second
	defaultLockWaitTimeout  = 10 * time.Second
	lockPollInterval        = 50 * time.Millisecond
)

// fileLock is a cross-process advisory lock backed by a lock file containing
// the holder's PID.  A holder that stops refreshing is detected by the lock
// file's mtime exceeding the stale timeout, at which point the lock is broken
// and rewritten by the next acquirer.
type fileLock struct {
	path         string
	staleTimeout time.Duration
	waitTimeout  time.Duration
}

func newFileLock(path string) *fileLock {
	return &fileLock{
		path:         path,
		staleTimeout: defaultLockStaleTimeout,
		waitTimeout:  defaultLockWaitTimeout,
	}
}

// Acquire blocks until the lock is held or the wait timeout elapses
func (l *fileLock) Acquire() error {
	deadline := time.Now().Add(l.waitTimeout)

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			cerr := f.Close()
			if werr != nil || cerr != nil {
				// The lock file exists either way, so the lock is held
				log.Warn("Failed writing PID into lock file", "path", l.path, "write_error", werr, "close_error", cerr)
			}
			return nil
		}

		if !os.IsExist(err) {
			return fmt.Errorf("creating lock file %s: %w", l.path, err)
		}

		if l.breakIfStale() {
			continue
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for lock %s", l.path)
		}
		time.Sleep(lockPollInterval)
	}
}

// breakIfStale removes the lock file when its mtime exceeds the stale timeout.
// Returns true when the lock was broken and an acquire retry should happen immediately.
func (l *fileLock) breakIfStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		// Holder released between our create attempt and the stat
		return os.IsNotExist(err)
	}

	if time.Since(info.ModTime()) < l.staleTimeout {
		return false
	}

	log.Warn("Breaking stale registry lock", "path", l.path, "age", time.Since(info.ModTime()).String())
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		log.Error("Failed to break stale lock", "path", l.path, "error", err)
		return false
	}
	return true
}

// Release deletes the lock file
func (l *fileLock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		log.Error("Failed to release lock", "path", l.path, "error", err)
	}
}
