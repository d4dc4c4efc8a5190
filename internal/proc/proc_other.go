//go:build !unix

package proc

import "os/exec"

// isolate is a no-op where process groups are unavailable; exec.CommandContext
// still kills the direct child.
func isolate(*exec.Cmd) {}
