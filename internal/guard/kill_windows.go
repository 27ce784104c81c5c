//go:build windows

package guard

import "os"

// KillGroup on Windows has no process-group signal equivalent reachable
// from stdlib syscall without golang.org/x/sys/windows job objects;
// terminating the immediate pid is the best effort available here.
func KillGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
