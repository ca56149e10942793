package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// session is the part of *ssh.Session the runner needs.
type session interface {
	SetIO(stdin io.Reader, stdout, stderr io.Writer)
	Run(cmd string) error
	Signal(sig ssh.Signal) error
	Close() error
}

type sshSession struct{ *ssh.Session }

func (s sshSession) SetIO(stdin io.Reader, stdout, stderr io.Writer) {
	s.Stdin, s.Stdout, s.Stderr = stdin, stdout, stderr
}

// exitStatuser matches *ssh.ExitError.
type exitStatuser interface {
	error
	ExitStatus() int
}

// SSH runs commands on a remote host, one session per command. Commands
// marked Sudo are prefixed with "sudo -n" unless the login user is root.
type SSH struct {
	host       string
	sudo       bool
	newSession func() (session, error)
	closeFn    func() error
}

type SSHConfig struct {
	Addr           string
	User           string
	KeyFile        string
	KnownHostsFile string
	// Insecure skips host key verification. Only for throwaway lab VMs.
	Insecure bool
	Timeout  time.Duration
}

var (
	readFile = os.ReadFile
	sshDial  = ssh.Dial
)

func DialSSH(cfg SSHConfig) (*SSH, error) {
	key, err := readFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("DialSSH: read key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("DialSSH: parse key: %w", err)
	}

	var hostKeyCallback ssh.HostKeyCallback
	switch {
	case cfg.Insecure:
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	case cfg.KnownHostsFile != "":
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("DialSSH: known_hosts: %w", err)
		}
	default:
		return nil, errors.New("DialSSH: known_hosts file required unless insecure")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	addr := cfg.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	client, err := sshDial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("DialSSH: %w", err)
	}
	return newSSH(addr, cfg.User != "root", func() (session, error) {
		s, err := client.NewSession()
		if err != nil {
			return nil, err
		}
		return sshSession{s}, nil
	}, client.Close), nil
}

func newSSH(host string, sudo bool, newSession func() (session, error), closeFn func() error) *SSH {
	return &SSH{host: host, sudo: sudo, newSession: newSession, closeFn: closeFn}
}

func (s *SSH) Host() string { return s.host }

func (s *SSH) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

func (s *SSH) Run(ctx context.Context, cmd Command) (Result, error) {
	if len(cmd.Args) == 0 {
		return Result{}, errors.New("runner: empty command")
	}
	return s.runLine(ctx, cmd.String(), ShellLine(cmd, s.sudo), cmd.Stdin)
}

func (s *SSH) runLine(ctx context.Context, name, line string, stdin []byte) (Result, error) {
	sess, err := s.newSession()
	if err != nil {
		return Result{}, fmt.Errorf("%s: new session: %w", name, err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	var in io.Reader
	if stdin != nil {
		in = bytes.NewReader(stdin)
	}
	sess.SetIO(in, &stdout, &stderr)

	done := make(chan error, 1)
	go func() { done <- sess.Run(line) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return Result{}, fmt.Errorf("%s: %w", name, ctx.Err())
	case err = <-done:
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr exitStatuser
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, &ExitError{Cmd: name, Code: res.ExitCode, Stderr: res.Stderr}
	}
	if err != nil {
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

func (s *SSH) ReadFile(ctx context.Context, path string) ([]byte, error) {
	// exit 3 distinguishes "missing" from a failing cat
	line := fmt.Sprintf("test -e %s || exit 3; cat %s", Quote(path), Quote(path))
	if s.sudo {
		line = "sudo -n sh -c " + Quote(line)
	}
	res, err := s.runLine(ctx, "cat "+path, line, nil)
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == 3 {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	if err != nil {
		return nil, err
	}
	return []byte(res.Stdout), nil
}

// WriteFile replaces path through a temp file. An existing file keeps its
// owner, so config files owned by a service user stay readable by it.
func (s *SSH) WriteFile(ctx context.Context, path string, data []byte, mode fs.FileMode) error {
	tmp := path + ".labctl-tmp"
	line := strings.Join([]string{
		"mkdir -p " + Quote(dirOf(path)),
		"cat > " + Quote(tmp),
		fmt.Sprintf("chmod %o %s", mode.Perm(), Quote(tmp)),
		fmt.Sprintf("{ [ ! -e %s ] || chown --reference=%s %s; }", Quote(path), Quote(path), Quote(tmp)),
		"mv " + Quote(tmp) + " " + Quote(path),
	}, " && ")
	if s.sudo {
		line = "sudo -n sh -c " + Quote(line)
	}
	_, err := s.runLine(ctx, "write "+path, line, data)
	return err
}

func dirOf(path string) string {
	i := strings.LastIndex(path, "/")
	switch {
	case i < 0:
		return "."
	case i == 0:
		return "/"
	}
	return path[:i]
}
