// Package proc starts helper subprocesses (TTS engines, audio players, MCP
// servers) so that cancelling the owning context tears down the whole process
// tree, not just the direct child.
package proc

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Wait blocks on I/O after the group was killed.
const waitDelay = 2 * time.Second

// Command returns an exec.Cmd bound to ctx whose process runs in its own
// process group. When ctx is done the entire group is killed.
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	isolate(cmd)
	cmd.WaitDelay = waitDelay
	return cmd
}

// Split parses a command line into its argv. Double or single quotes group
// words containing spaces; no other shell syntax is interpreted.
func Split(line string) ([]string, error) {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		inArg bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, errors.New("proc: unterminated quote")
	}
	if inArg {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, errors.New("proc: empty command")
	}
	return args, nil
}
