// Package sshtest provides an in-process SSH server and a routing dialer
// for exercising sshexec without real hosts.
package sshtest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// Reply is what the server does for one command.
type Reply struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Delay    time.Duration

	// Endless repeats Stdout until the client goes away.
	Endless bool
}

// Server is an SSH server that answers exec requests from a command table.
// Unknown commands exit 127.
type Server struct {
	User     string
	Password string

	mu       sync.Mutex
	commands map[string]Reply
	execs    map[string]int

	ln     net.Listener
	config *ssh.ServerConfig
}

// NewServer starts a server on a loopback port. It stops when t ends.
func NewServer(t testing.TB, user, password string) *Server {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshtest: generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("sshtest: signer: %v", err)
	}

	s := &Server{
		User:     user,
		Password: password,
		commands: make(map[string]Reply),
		execs:    make(map[string]int),
	}
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if c.User() == s.User && string(pw) == s.Password {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	s.config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("sshtest: listen: %v", err)
	}
	s.ln = ln
	t.Cleanup(func() { _ = ln.Close() })

	go s.serve()
	return s
}

// Addr returns the listening address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Handle registers the reply for command.
func (s *Server) Handle(command string, r Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[command] = r
}

// Execs returns how many times command was run.
func (s *Server) Execs(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs[command]
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, chReqs)
	}
}

func (s *Server) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	for req := range reqs {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			return
		}
		_ = req.Reply(true, nil)
		s.run(ch, payload.Command)
		return
	}
}

func (s *Server) run(ch ssh.Channel, command string) {
	s.mu.Lock()
	r, ok := s.commands[command]
	s.execs[command]++
	s.mu.Unlock()

	if !ok {
		r = Reply{Stderr: fmt.Sprintf("%s: command not found\n", command), ExitCode: 127}
	}
	if r.Delay > 0 {
		time.Sleep(r.Delay)
	}
	if r.Endless {
		for {
			if _, err := ch.Write([]byte(r.Stdout)); err != nil {
				return
			}
		}
	}
	if r.Stdout != "" {
		_, _ = ch.Write([]byte(r.Stdout))
	}
	if r.Stderr != "" {
		_, _ = ch.Stderr().Write([]byte(r.Stderr))
	}
	status := struct{ Status uint32 }{uint32(r.ExitCode)} //nolint:gosec // test exit codes are small
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&status))
}

// Silent listens on a loopback port and accepts connections without ever
// speaking, so an SSH handshake against it stalls.
func Silent(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("sshtest: listen: %v", err)
	}
	var mu sync.Mutex
	var conns []net.Conn
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	return ln.Addr().String()
}

// Dialer routes logical host names to real addresses. A name mapped to
// Blackhole never connects; the dial waits for its context to end.
type Dialer struct {
	mu     sync.Mutex
	routes map[string]string
	d      net.Dialer
}

// Blackhole marks a route that never connects.
const Blackhole = "blackhole"

// NewDialer returns an empty Dialer.
func NewDialer() *Dialer {
	return &Dialer{routes: make(map[string]string)}
}

// Route sends dials for host (any port) to addr.
func (d *Dialer) Route(host, addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[host] = addr
}

// DialContext implements sshexec.Dialer.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	d.mu.Lock()
	target, ok := d.routes[host]
	d.mu.Unlock()

	switch {
	case !ok:
		return nil, &net.OpError{Op: "dial", Net: network, Err: errors.New("connection refused")}
	case strings.EqualFold(target, Blackhole):
		<-ctx.Done()
		return nil, &net.OpError{Op: "dial", Net: network, Err: ctx.Err()}
	default:
		return d.d.DialContext(ctx, network, target)
	}
}
