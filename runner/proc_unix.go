//go:build !windows

package runner

import (
	"errors"
	"os/exec"
	"syscall"
)

func defaultShell() (string, string) {
	return "/bin/sh", "-c"
}

// setProcessGroup puts the child in its own process group so that a kill
// reaches everything it spawned (docker CLI, wsl, rsync inside the shell).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
