//go:build !unix

package supervisor

import "os/exec"

// setProcessGroup is a no-op; cancellation kills only the direct child.
func setProcessGroup(cmd *exec.Cmd) {}
