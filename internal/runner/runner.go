// Package runner executes provisioning commands and file operations on a
// target host, either the local machine or a remote one over SSH.
package runner

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Command is one program invocation. Args[0] is the program.
type Command struct {
	Args  []string
	Stdin []byte
	Env   map[string]string
	// Sudo runs the command as root when the runner is not already root.
	Sudo bool
}

func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Cmd, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Runner is implemented by Local and SSH.
type Runner interface {
	// Run returns *ExitError when the command exits non-zero; Result is
	// populated either way.
	Run(ctx context.Context, cmd Command) (Result, error)
	// ReadFile returns an error wrapping fs.ErrNotExist for missing files.
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, mode fs.FileMode) error
	Host() string
}

// Quote renders s as a single POSIX shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@%+,", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellLine renders cmd as a shell command line. Environment variables are
// passed through env(1) so they survive sudo.
func ShellLine(cmd Command, sudo bool) string {
	var parts []string
	if sudo && cmd.Sudo {
		parts = append(parts, "sudo", "-n")
	}
	if len(cmd.Env) > 0 {
		keys := make([]string, 0, len(cmd.Env))
		for k := range cmd.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts = append(parts, "env")
		for _, k := range keys {
			parts = append(parts, Quote(k+"="+cmd.Env[k]))
		}
	}
	for _, a := range cmd.Args {
		parts = append(parts, Quote(a))
	}
	return strings.Join(parts, " ")
}
