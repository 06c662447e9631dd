package supervisor

import (
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/pryx-co/pryx/internal/config"
)

// spawnedChild bundles the handles the supervisor needs after a
// successful spawn.
type spawnedChild struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// spawnChild launches the configured binary with piped stdio in its own
// process group, so a later group-kill reaches every descendant.
func spawnChild(cfg *config.Config) (*spawnedChild, error) {
	cmd := exec.Command(cfg.ChildBinary, cfg.ChildArgs...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = cfg.ChildEnviron()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Binary: cfg.ChildBinary, Reason: err.Error()}
	}

	return &spawnedChild{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

// stopProcessGroup sends SIGTERM to the child's process group and waits
// up to grace for exited to close (signalling cmd.Wait() has returned,
// which the supervisor's own waiter goroutine is responsible for
// calling, exactly once per child, never here). If the grace period
// elapses it escalates to SIGKILL.
func stopProcessGroup(cmd *exec.Cmd, exited <-chan struct{}, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		pgid = cmd.Process.Pid
	}

	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-exited:
	case <-time.After(grace):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-exited
	}
}
