//go:build unix

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// setupProcessGroup puts cmd in its own process group so killProcessGroup
// can signal every descendant it spawns, not just the direct child.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup signals the negative PID, which syscall.Kill treats as
// "every process in this group".
func killProcessGroup(pid int, sig os.Signal) error {
	sysSig, ok := sig.(syscall.Signal)
	if !ok {
		sysSig = syscall.SIGKILL
	}
	return syscall.Kill(-pid, sysSig)
}
