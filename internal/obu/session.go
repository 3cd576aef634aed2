// Package obu talks to the on-board unit over a remote shell link. The core
// only needs two operations from the link: the current size of the growing
// receive capture, and the output of the kinematics client for a GPS fix.
package obu

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Session is the remote link collaborator. FileSize returns 0 for a file
// that does not exist yet; any returned error means the link itself is
// unrecoverable and the caller should stop polling.
type Session interface {
	FileSize(ctx context.Context, path string) (int64, error)
	Run(ctx context.Context, cmd string, timeout time.Duration) (string, error)
	Close() error
}

// SSHSession implements Session over one SSH client connection, opening a
// fresh exec channel per command the way the field capture always has.
type SSHSession struct {
	client *ssh.Client
}

// Dial connects to the OBU. Field units live on an isolated test network and
// present throwaway host keys, so verification is intentionally skipped.
func Dial(addr, user, password string, timeout time.Duration) (*SSHSession, error) {
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to OBU %s: %w", addr, err)
	}
	return &SSHSession{client: client}, nil
}

// Run executes cmd on the OBU and returns its combined output. The command
// is abandoned (channel closed) when the timeout or the context expires.
func (s *SSHSession) Run(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open exec channel: %w", err)
	}
	defer sess.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return string(r.out), r.err
	case <-ctx.Done():
		sess.Close()
		return "", fmt.Errorf("command %q: %w", cmd, ctx.Err())
	}
}

// FileSize reports the byte size of a remote file. A command that runs but
// exits non-zero means the file has not been created yet and counts as 0
// bytes; a failure to run anything at all means the link is gone.
func (s *SSHSession) FileSize(ctx context.Context, path string) (int64, error) {
	out, err := s.Run(ctx, "wc -c < "+shellQuote(path), 10*time.Second)
	if err != nil {
		if _, exited := err.(*ssh.ExitError); exited {
			return 0, nil
		}
		return 0, fmt.Errorf("read size of %s: %w", path, err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected size output %q for %s", strings.TrimSpace(out), path)
	}
	return n, nil
}

// Close shuts the SSH connection down.
func (s *SSHSession) Close() error {
	return s.client.Close()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
