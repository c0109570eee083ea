//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

// setupProcessGroup is a no-op on Windows: process groups aren't
// supported the same way, so Shutdown falls back to killing the direct
// process.
func setupProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the process directly; Windows has no equivalent
// of a negative-PID group signal.
func killProcessGroup(pid int, sig os.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
