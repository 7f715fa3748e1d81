//go:build windows

package runner

import (
	"errors"
	"os"
	"os/exec"
)

func defaultShell() (string, string) {
	return "cmd", "/C"
}

func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup only reaches the direct child on Windows; grandchildren are
// left to the cleanup command.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
