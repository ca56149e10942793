package provision

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"three-tier-lab/internal/readiness"
	"three-tier-lab/internal/runner"

	"github.com/sirupsen/logrus"
)

var aptEnv = map[string]string{"DEBIAN_FRONTEND": "noninteractive"}

func run(ctx context.Context, r runner.Runner, args ...string) (runner.Result, error) {
	return r.Run(ctx, runner.Command{Args: args, Sudo: true})
}

// exitedNonZero reports whether err is a clean non-zero exit, which checks
// treat as "not converged" rather than a failure.
func exitedNonZero(err error) bool {
	var exitErr *runner.ExitError
	return errors.As(err, &exitErr)
}

// Packages installs the named apt packages when any is missing.
func Packages(name string, pkgs ...string) Step {
	return Step{
		Name: name,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			for _, p := range pkgs {
				res, err := run(ctx, r, "dpkg-query", "-W", "-f=${Status}", p)
				if exitedNonZero(err) {
					return false, nil
				}
				if err != nil {
					return false, err
				}
				if !strings.Contains(res.Stdout, "install ok installed") {
					return false, nil
				}
			}
			return true, nil
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			if _, err := r.Run(ctx, runner.Command{Args: []string{"apt-get", "update"}, Env: aptEnv, Sudo: true}); err != nil {
				return err
			}
			args := append([]string{"apt-get", "install", "-y"}, pkgs...)
			_, err := r.Run(ctx, runner.Command{Args: args, Env: aptEnv, Sudo: true})
			return err
		},
	}
}

func readOptional(ctx context.Context, r runner.Runner, path string) ([]byte, error) {
	data, err := r.ReadFile(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// File makes path hold exactly data. path is evaluated lazily so it can
// depend on an earlier discovery step.
func File(name string, path func() string, data []byte, mode fs.FileMode) Step {
	return Step{
		Name: name,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			cur, err := readOptional(ctx, r, path())
			if err != nil {
				return false, err
			}
			return cur != nil && bytes.Equal(cur, data), nil
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			return r.WriteFile(ctx, path(), data, mode)
		},
	}
}

// Binary installs data at path, compared by sha256 so large files are not
// read back.
func Binary(name, path string, data []byte) Step {
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])
	return Step{
		Name: name,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			res, err := run(ctx, r, "sha256sum", path)
			if exitedNonZero(err) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			fields := strings.Fields(res.Stdout)
			return len(fields) > 0 && fields[0] == want, nil
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			return r.WriteFile(ctx, path, data, 0o755)
		},
	}
}

func sameFields(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}

// LineInFile appends line to path unless an equivalent line (ignoring
// whitespace differences) is already present.
func LineInFile(name string, path func() string, line string, mode fs.FileMode) Step {
	return Step{
		Name: name,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			cur, err := r.ReadFile(ctx, path())
			if err != nil {
				return false, err
			}
			for _, l := range strings.Split(string(cur), "\n") {
				if sameFields(l, line) {
					return true, nil
				}
			}
			return false, nil
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			cur, err := r.ReadFile(ctx, path())
			if err != nil {
				return err
			}
			out := string(cur)
			if out != "" && !strings.HasSuffix(out, "\n") {
				out += "\n"
			}
			out += line + "\n"
			return r.WriteFile(ctx, path(), []byte(out), mode)
		},
	}
}

// SetLine replaces every line matching re (commented or not) with line, or
// appends line when nothing matches. Converged when every match already
// equals line and at least one exists.
func SetLine(name string, path func() string, re *regexp.Regexp, line string, mode fs.FileMode) Step {
	return Step{
		Name: name,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			cur, err := r.ReadFile(ctx, path())
			if err != nil {
				return false, err
			}
			found := false
			for _, l := range strings.Split(string(cur), "\n") {
				if !re.MatchString(l) {
					continue
				}
				if strings.TrimSpace(l) != line {
					return false, nil
				}
				found = true
			}
			return found, nil
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			cur, err := r.ReadFile(ctx, path())
			if err != nil {
				return err
			}
			lines := strings.Split(string(cur), "\n")
			replaced := false
			for i, l := range lines {
				if re.MatchString(l) {
					lines[i] = line
					replaced = true
				}
			}
			out := strings.Join(lines, "\n")
			if !replaced {
				if out != "" && !strings.HasSuffix(out, "\n") {
					out += "\n"
				}
				out += line + "\n"
			}
			return r.WriteFile(ctx, path(), []byte(out), mode)
		},
	}
}

// Absent removes path if it exists.
func Absent(name, path string) Step {
	return Step{
		Name: name,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			_, err := run(ctx, r, "test", "-e", path, "-o", "-L", path)
			if exitedNonZero(err) {
				return true, nil
			}
			return false, err
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			_, err := run(ctx, r, "rm", "-f", path)
			return err
		},
	}
}

// Symlink points link at target.
func Symlink(name, target, link string) Step {
	return Step{
		Name: name,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			res, err := run(ctx, r, "readlink", link)
			if exitedNonZero(err) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return strings.TrimSpace(res.Stdout) == target, nil
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			_, err := run(ctx, r, "ln", "-sfn", target, link)
			return err
		},
	}
}

// SystemUser creates a login-less system account.
func SystemUser(name, user, home string) Step {
	return Step{
		Name: name,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			_, err := run(ctx, r, "id", "-u", user)
			if exitedNonZero(err) {
				return false, nil
			}
			return err == nil, err
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			_, err := run(ctx, r, "useradd", "--system", "--user-group", "--no-create-home",
				"--home-dir", home, "--shell", "/usr/sbin/nologin", user)
			return err
		},
	}
}

// Directory ensures path exists with owner and octal mode.
func Directory(name, path, owner string, mode fs.FileMode) Step {
	want := fmt.Sprintf("%s %o", owner, mode.Perm())
	return Step{
		Name: name,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			res, err := run(ctx, r, "stat", "-c", "%U %a", path)
			if exitedNonZero(err) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return strings.TrimSpace(res.Stdout) == want, nil
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			_, err := run(ctx, r, "install", "-d", "-o", owner, "-g", owner,
				"-m", fmt.Sprintf("%o", mode.Perm()), path)
			return err
		},
	}
}

// ServiceEnabled enables unit at boot.
func ServiceEnabled(unit string) Step {
	return Step{
		Name: "enable " + unit,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			res, err := run(ctx, r, "systemctl", "is-enabled", unit)
			if exitedNonZero(err) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return strings.TrimSpace(res.Stdout) == "enabled", nil
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			_, err := run(ctx, r, "systemctl", "enable", unit)
			return err
		},
	}
}

// ServiceRunning starts unit when it is not active.
func ServiceRunning(unit string) Step {
	return Step{
		Name: "start " + unit,
		Check: func(ctx context.Context, r runner.Runner) (bool, error) {
			_, err := run(ctx, r, "systemctl", "is-active", "--quiet", unit)
			if exitedNonZero(err) {
				return false, nil
			}
			return err == nil, err
		},
		Apply: func(ctx context.Context, r runner.Runner) error {
			_, err := run(ctx, r, "systemctl", "start", unit)
			return err
		},
	}
}

// Handler runs args only when one of the trigger steps changed.
func Handler(name string, triggers []string, args ...string) Step {
	return Step{
		Name:          name,
		OnlyIfChanged: triggers,
		Apply: func(ctx context.Context, r runner.Runner) error {
			_, err := run(ctx, r, args...)
			return err
		},
	}
}

// Command always runs args; used for validations such as nginx -t.
func Command(name string, args ...string) Step {
	return Step{
		Name: name,
		Apply: func(ctx context.Context, r runner.Runner) error {
			_, err := run(ctx, r, args...)
			return err
		},
	}
}

// Gate blocks until probe succeeds under policy.
func Gate(name string, probe readiness.Probe, policy readiness.Policy, log logrus.FieldLogger) Step {
	return Step{
		Name: name,
		Apply: func(ctx context.Context, _ runner.Runner) error {
			return waitFor(ctx, name, probe, policy, log)
		},
	}
}
