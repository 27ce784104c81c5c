//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// shellCommand builds the *exec.Cmd that runs cmdLine as a shell command
// line.
func shellCommand(cmdLine string) *exec.Cmd {
	return exec.Command("sh", "-c", cmdLine)
}

// applyProcAttrs starts the child in its own process group, so a timeout
// or exit-guard kill (internal/guard.KillGroup) reaches every grandchild a
// shell pipeline spawned, not just the immediate "sh".
func applyProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
