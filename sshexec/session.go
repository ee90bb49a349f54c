package sshexec

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Dialer opens the TCP connection of the connect stage. *net.Dialer
// satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// target is one resolved host with the credential to use on it.
type target struct {
	label    string
	addr     string
	user     string
	password string
}

// connect runs the connect and authenticate stages and returns a ready
// client.
func (o *Orchestrator) connect(ctx context.Context, t target) (*ssh.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, o.connectTimeout)
	defer cancel()

	start := time.Now()
	conn, err := o.dialer.DialContext(dialCtx, "tcp", t.addr)
	if err != nil {
		kind := KindFailed
		if isTimeout(err) || errors.Is(dialCtx.Err(), context.DeadlineExceeded) || time.Since(start) >= o.connectTimeout {
			kind = KindTimeout
		}
		return nil, &StageError{Stage: StageConnect, Kind: kind, Host: t.label, Err: err}
	}

	start = time.Now()
	_ = conn.SetDeadline(start.Add(o.authTimeout))
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	cfg := &ssh.ClientConfig{
		User:            t.user,
		Auth:            []ssh.AuthMethod{ssh.Password(t.password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host keys are not pinned
		Timeout:         o.authTimeout,
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, t.addr, cfg)
	if err != nil {
		_ = conn.Close()
		kind := KindFailed
		switch {
		case strings.Contains(err.Error(), "unable to authenticate"):
			kind = KindRejected
		case isTimeout(err) || time.Since(start) >= o.authTimeout:
			kind = KindTimeout
		}
		return nil, &StageError{Stage: StageAuth, Kind: kind, Host: t.label, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

// execute runs command in one session and returns its exit status and
// captured output. On timeout or output overflow the client is closed,
// which tears down the session.
func (o *Orchestrator) execute(ctx context.Context, client *ssh.Client, t target, command string, timeout time.Duration) (*Result, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, &StageError{Stage: StageExec, Kind: KindFailed, Host: t.label, Err: err}
	}
	defer sess.Close()

	out := newCapture(o.maxOutput)
	sess.Stdout = out
	sess.Stderr = out

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-done:
	case <-out.full:
		_ = client.Close()
		return nil, &StageError{Stage: StageExec, Kind: KindOutputTooLarge, Host: t.label, Err: ErrOutputTooLarge}
	case <-timer.C:
		_ = client.Close()
		return nil, &StageError{Stage: StageExec, Kind: KindTimeout, Host: t.label,
			Err: errors.New("command did not finish within " + timeout.String())}
	case <-ctx.Done():
		_ = client.Close()
		return nil, &StageError{Stage: StageExec, Kind: KindFailed, Host: t.label, Err: ctx.Err()}
	}

	output, overflow := out.result()
	if overflow {
		return nil, &StageError{Stage: StageExec, Kind: KindOutputTooLarge, Host: t.label, Err: ErrOutputTooLarge}
	}

	exitCode := 0
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		exitCode = exitErr.ExitStatus()
	default:
		return nil, &StageError{Stage: StageExec, Kind: KindFailed, Host: t.label, Err: err}
	}
	return &Result{Server: t.label, ExitCode: exitCode, Output: output}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "i/o timeout")
}
