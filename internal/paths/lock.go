package paths

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLockHeld is returned by TryToolchainLock while another live process
// holds the lock.
var ErrLockHeld = errors.New("lock held by another process")

var (
	// staleLockAge is how long a lock is honoured even if its holder looks alive.
	staleLockAge = 6 * time.Hour
	// blankLockGrace covers the window between creating a lock and writing the pid.
	blankLockGrace = 5 * time.Second
	// lockWaitNotice is how long a caller blocks before being told who holds the lock.
	lockWaitNotice = time.Second
)

// WaitFunc is told the holder's pid once a lock acquisition starts blocking.
// The pid is 0 when the lock file does not name one.
type WaitFunc func(holderPID int)

// AcquireWorkspaceLock serialises resolver runs for one workspace across
// processes. The returned function releases the lock.
func (s Storage) AcquireWorkspaceLock(ctx context.Context, workspace string, waiting WaitFunc) (func(), error) {
	sum := sha256.Sum256([]byte(workspace))
	return acquireLock(ctx, filepath.Join(s.LocksDir, hex.EncodeToString(sum[:8])+".lock"), waiting)
}

// AcquireToolchainLock guards one directory under ToolchainsDir while it is
// installed into, so clean never removes it underneath an install.
func (s Storage) AcquireToolchainLock(ctx context.Context, name string, waiting WaitFunc) (func(), error) {
	return acquireLock(ctx, s.toolchainLockPath(name), waiting)
}

// TryToolchainLock takes the toolchain lock without waiting, returning
// ErrLockHeld when it is in use.
func (s Storage) TryToolchainLock(name string) (func(), error) {
	if err := os.MkdirAll(s.LocksDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}
	release, _, err := tryLock(s.toolchainLockPath(name))
	return release, err
}

func (s Storage) toolchainLockPath(name string) string {
	return filepath.Join(s.LocksDir, "toolchain-"+filepath.Base(name)+".lock")
}

func acquireLock(ctx context.Context, lockPath string, waiting WaitFunc) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	start := time.Now()
	notified := false

	for {
		release, holder, err := tryLock(lockPath)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		if !notified && waiting != nil && time.Since(start) >= lockWaitNotice {
			notified = true
			waiting(holder)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// tryLock makes one attempt at lockPath, taking it over when the previous
// holder is gone.
func tryLock(lockPath string) (func(), int, error) {
	holder := 0
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, 0, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, 0, fmt.Errorf("acquire lock: %w", err)
		}
		var stale bool
		holder, stale = inspectLock(lockPath)
		if !stale {
			return nil, holder, ErrLockHeld
		}
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, holder, fmt.Errorf("remove stale lock %s: %w", lockPath, err)
		}
	}
	return nil, holder, ErrLockHeld
}

// inspectLock returns the pid recorded in lockPath and whether the lock was
// left behind by a process that no longer runs.
func inspectLock(lockPath string) (int, bool) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return 0, errors.Is(err, os.ErrNotExist)
	}
	age := time.Since(info.ModTime())
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return 0, errors.Is(err, os.ErrNotExist)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	switch {
	case err != nil || pid <= 0:
		return 0, age > blankLockGrace
	case age > staleLockAge:
		return pid, true
	case pid == os.Getpid():
		return pid, false
	}
	return pid, !processAlive(pid)
}
