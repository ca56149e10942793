package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// Local runs commands on this machine. File operations assume the process
// may write the target paths (Vagrant shell provisioners run as root).
type Local struct {
	// root reports whether sudo can be skipped.
	root bool
}

func NewLocal() *Local {
	return &Local{root: os.Geteuid() == 0}
}

var execCommand = exec.CommandContext

func (l *Local) Host() string { return "localhost" }

func (l *Local) Run(ctx context.Context, cmd Command) (Result, error) {
	if len(cmd.Args) == 0 {
		return Result{}, errors.New("runner: empty command")
	}
	args := cmd.Args
	if len(cmd.Env) > 0 {
		env := []string{"env"}
		for k, v := range cmd.Env {
			env = append(env, k+"="+v)
		}
		args = append(env, args...)
	}
	if cmd.Sudo && !l.root {
		args = append([]string{"sudo", "-n"}, args...)
	}

	c := execCommand(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}
	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Cmd: cmd.String(), Code: res.ExitCode, Stderr: res.Stderr}
	}
	if err != nil {
		return res, fmt.Errorf("%s: %w", cmd.String(), err)
	}
	return res, nil
}

func (l *Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile replaces path atomically through a temp file in the same dir.
// An existing file keeps its owner (pg_hba.conf must stay readable by postgres).
func (l *Local) WriteFile(_ context.Context, path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	if err := keepOwner(path, tmp.Name()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// keepOwner gives tmp the uid/gid of path when path exists.
func keepOwner(path, tmp string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	return os.Chown(tmp, int(st.Uid), int(st.Gid))
}
