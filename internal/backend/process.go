package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
)

// newCommand creates an exec.Cmd in its own process group so the whole
// subprocess tree can be terminated together.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// runCommand starts cmd, drains stdout and stderr concurrently, and waits.
// Draining both pipes before cmd.Wait avoids a deadlock when output exceeds
// the pipe buffer. The ProcessManager is optional.
func runCommand(cmd *exec.Cmd, pm *ProcessManager) (stdout, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting command: %w", err)
	}
	if pm != nil {
		pm.Track(cmd)
		defer pm.Untrack(cmd)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	stdout = stdoutBuf.Bytes()
	stderr = stderrBuf.Bytes()

	if waitErr != nil {
		if len(stderr) > 0 {
			return stdout, stderr, fmt.Errorf("command failed: %w (stderr: %s)", waitErr, string(stderr))
		}
		return stdout, stderr, fmt.Errorf("command failed: %w", waitErr)
	}
	return stdout, stderr, nil
}

// killProcessGroup kills the command's entire process group.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("killing process group: %w", err)
	}
	return nil
}

// ProcessManager tracks running CLI subprocesses so shutdown can terminate
// them all and leave no orphans behind.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates a ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{procs: make(map[int]*exec.Cmd)}
}

// Track registers a started subprocess.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a finished subprocess.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates every tracked subprocess.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("killing process %d: %w", pid, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors killing processes: %v", errs)
	}
	return nil
}

// Count returns the number of tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
