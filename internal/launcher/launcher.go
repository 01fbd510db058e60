// Package launcher starts and stops the background playback daemon. It only
// manages the process; all communication goes through the protocol.
package launcher

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Launcher manages the playback daemon process.
type Launcher struct {
	path string
	args []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// New creates a launcher for the daemon binary at path.
func New(path string, args ...string) *Launcher {
	return &Launcher{path: path, args: args}
}

// Start spawns the daemon. Starting an already running daemon is a no-op.
func (l *Launcher) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd != nil {
		return nil
	}

	cmd := exec.Command(l.path, l.args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch %s: %w", l.path, err)
	}
	l.cmd = cmd
	logrus.Infof("launched playback daemon %s (pid %d)", l.path, cmd.Process.Pid)

	// Reap the process when it exits so it never lingers as a zombie.
	go func() {
		err := cmd.Wait()
		l.mu.Lock()
		if l.cmd == cmd {
			l.cmd = nil
		}
		l.mu.Unlock()
		if err != nil {
			logrus.Warnf("playback daemon exited: %v", err)
		}
	}()

	return nil
}

// Terminate signals the daemon to shut down.
func (l *Launcher) Terminate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd == nil || l.cmd.Process == nil {
		return errors.New("playback daemon not started")
	}
	if err := l.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to terminate playback daemon: %w", err)
	}
	return nil
}

// Running reports whether a daemon process started by this launcher is alive.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmd != nil
}
