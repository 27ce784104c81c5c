//go:build windows

package runner

import "os/exec"

// shellCommand builds the *exec.Cmd that runs cmdLine through cmd.exe.
func shellCommand(cmdLine string) *exec.Cmd {
	return exec.Command("cmd", "/C", cmdLine)
}

// applyProcAttrs is a no-op on Windows: process groups work differently
// there (job objects), which this package does not attempt to wire up.
func applyProcAttrs(cmd *exec.Cmd) {}
