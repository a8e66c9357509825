//go:build !unix

package subprocess

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func signalOf(exitErr *exec.ExitError) (string, bool) {
	return "", false
}
