package sshexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/execlog"
	"github.com/xraph/fleetcron/host"
	"github.com/xraph/fleetcron/id"
)

// HostResolver looks up hosts and group members. host.Store satisfies it.
type HostResolver interface {
	GetHost(ctx context.Context, hostID id.HostID) (*host.Host, error)
	ListHostsByGroup(ctx context.Context, groupID id.GroupID) ([]*host.Host, error)
}

// Decrypter opens sealed host passwords. *secret.Cipher satisfies it.
type Decrypter interface {
	Decrypt(sealed string) (string, error)
}

// LogAppender records execution outcomes. execlog.Store satisfies it.
type LogAppender interface {
	AppendExecutionLog(ctx context.Context, e *execlog.Entry) error
}

// Emitter observes per-host outcomes. ext.Registry satisfies it.
type Emitter interface {
	EmitHostExecuted(ctx context.Context, server string, exitCode int, err error, elapsed time.Duration)
}

type nopEmitter struct{}

func (nopEmitter) EmitHostExecuted(context.Context, string, int, error, time.Duration) {}

// Request describes one execution. Exactly one of HostID and GroupID is
// used: Run reads HostID and RunFleet reads GroupID.
type Request struct {
	JobID   id.JobID
	HostID  id.HostID
	GroupID id.GroupID
	Command string

	// ExecTimeout overrides the orchestrator's exec timeout when positive.
	ExecTimeout time.Duration
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Server   string `json:"server"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConnectTimeout bounds the TCP dial. Default 5s.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.connectTimeout = d }
}

// WithAuthTimeout bounds the SSH handshake and authentication. Default 5s.
func WithAuthTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.authTimeout = d }
}

// WithExecTimeout bounds command execution. Default 15s.
func WithExecTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.execTimeout = d }
}

// WithMaxOutput caps combined stdout and stderr in bytes. Default 1 MiB.
func WithMaxOutput(n int) Option {
	return func(o *Orchestrator) { o.maxOutput = n }
}

// WithChannelBuffer sets the fleet record buffer size. Default 100.
func WithChannelBuffer(n int) Option {
	return func(o *Orchestrator) { o.channelBuffer = n }
}

// WithLogStore enables execution log entries.
func WithLogStore(s LogAppender) Option {
	return func(o *Orchestrator) { o.logs = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(o *Orchestrator) { o.dialer = d }
}

// WithEmitter sets the per-host outcome observer.
func WithEmitter(e Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithPerHostCredentials makes fleet runs use each member's own user,
// password and port instead of the first member's.
func WithPerHostCredentials(enabled bool) Option {
	return func(o *Orchestrator) { o.perHostCredentials = enabled }
}

// Orchestrator runs commands on one host or fans them out over a group.
type Orchestrator struct {
	hosts   HostResolver
	secrets Decrypter
	logs    LogAppender
	emitter Emitter
	dialer  Dialer
	logger  *slog.Logger

	connectTimeout     time.Duration
	authTimeout        time.Duration
	execTimeout        time.Duration
	maxOutput          int
	channelBuffer      int
	perHostCredentials bool
}

// New creates an Orchestrator.
func New(hosts HostResolver, secrets Decrypter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		hosts:          hosts,
		secrets:        secrets,
		emitter:        nopEmitter{},
		dialer:         &net.Dialer{},
		logger:         slog.Default(),
		connectTimeout: 5 * time.Second,
		authTimeout:    5 * time.Second,
		execTimeout:    15 * time.Second,
		maxOutput:      1 << 20,
		channelBuffer:  100,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes req.Command on req.HostID. A non-zero exit is a Result,
// not an error; stage failures are *StageError.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	h, err := o.hosts.GetHost(ctx, req.HostID)
	if err != nil {
		return nil, fmt.Errorf("sshexec: resolve host %s: %w", req.HostID, err)
	}
	password, err := o.secrets.Decrypt(h.EncryptedPassword)
	if err != nil {
		err = &StageError{Stage: StageResolve, Kind: KindFailed, Host: h.Address, Err: err}
		o.record(ctx, req.JobID, h.ID, h.Address, nil, err)
		return nil, err
	}
	t := target{label: h.Address, addr: h.Addr(), user: h.User, password: password}
	return o.runOn(ctx, req, h.ID, t)
}

// RunFleet fans req.Command out to every member of req.GroupID, one
// goroutine per host. Records arrive in completion order and the stream
// closes once every host has finished. Unless per-host credentials are
// enabled, the first member's user, password and port apply to all.
func (o *Orchestrator) RunFleet(ctx context.Context, req Request) (*Stream, error) {
	members, err := o.hosts.ListHostsByGroup(ctx, req.GroupID)
	if err != nil {
		return nil, fmt.Errorf("sshexec: resolve group %s: %w", req.GroupID, err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("sshexec: group %s: %w", req.GroupID, fleetcron.ErrEmptyGroup)
	}

	rep := members[0]
	var shared string
	if !o.perHostCredentials {
		shared, err = o.secrets.Decrypt(rep.EncryptedPassword)
		if err != nil {
			return nil, fmt.Errorf("sshexec: fleet credential: %w", err)
		}
	}

	s := newStream(len(members), o.channelBuffer)
	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.send(ctx, o.fleetMember(ctx, req, m, rep, shared))
		}()
	}
	go func() {
		wg.Wait()
		close(s.ch)
	}()
	return s, nil
}

func (o *Orchestrator) fleetMember(ctx context.Context, req Request, m, rep *host.Host, shared string) Record {
	t := target{
		label:    m.Address,
		addr:     net.JoinHostPort(m.Address, strconv.Itoa(rep.Port)),
		user:     rep.User,
		password: shared,
	}
	if o.perHostCredentials {
		password, err := o.secrets.Decrypt(m.EncryptedPassword)
		if err != nil {
			err = &StageError{Stage: StageResolve, Kind: KindFailed, Host: m.Address, Err: err}
			o.record(ctx, req.JobID, m.ID, m.Address, nil, err)
			return errorRecord(m, err)
		}
		t.addr, t.user, t.password = m.Addr(), m.User, password
	}

	res, err := o.runOn(ctx, req, m.ID, t)
	if err != nil {
		return errorRecord(m, err)
	}
	return Record{HostID: m.ID, Server: res.Server, Output: res.Output, ExitCode: res.ExitCode}
}

// TestConnection dials and authenticates to a host, then disconnects.
func (o *Orchestrator) TestConnection(ctx context.Context, hostID id.HostID) error {
	h, err := o.hosts.GetHost(ctx, hostID)
	if err != nil {
		return fmt.Errorf("sshexec: resolve host %s: %w", hostID, err)
	}
	password, err := o.secrets.Decrypt(h.EncryptedPassword)
	if err != nil {
		return &StageError{Stage: StageResolve, Kind: KindFailed, Host: h.Address, Err: err}
	}
	client, err := o.connect(ctx, target{label: h.Address, addr: h.Addr(), user: h.User, password: password})
	if err != nil {
		return err
	}
	return client.Close()
}

func (o *Orchestrator) runOn(ctx context.Context, req Request, hostID id.HostID, t target) (*Result, error) {
	start := time.Now()
	res, err := o.stages(ctx, req, t)
	elapsed := time.Since(start)

	exitCode := 0
	if res != nil {
		exitCode = res.ExitCode
	}
	o.emitter.EmitHostExecuted(ctx, t.label, exitCode, err, elapsed)
	o.record(ctx, req.JobID, hostID, t.label, res, err)

	if err != nil {
		o.logger.Warn("remote execution failed",
			slog.String("server", t.label),
			slog.String("job_id", req.JobID.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	o.logger.Debug("remote execution finished",
		slog.String("server", t.label),
		slog.String("job_id", req.JobID.String()),
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

func (o *Orchestrator) stages(ctx context.Context, req Request, t target) (*Result, error) {
	client, err := o.connect(ctx, t)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	timeout := o.execTimeout
	if req.ExecTimeout > 0 {
		timeout = req.ExecTimeout
	}
	return o.execute(ctx, client, t, req.Command, timeout)
}

// record appends an execution log entry. Failures are logged only.
func (o *Orchestrator) record(ctx context.Context, jobID id.JobID, hostID id.HostID, server string, res *Result, runErr error) {
	if o.logs == nil {
		return
	}
	e := &execlog.Entry{
		ID:        id.NewLogID(),
		JobID:     jobID,
		HostID:    hostID,
		Server:    server,
		CreatedAt: time.Now().UTC(),
	}
	switch {
	case runErr != nil:
		e.Status = execlog.StatusError
		e.ExitCode = -1
		e.Output = runErr.Error()
	case res.ExitCode != 0:
		e.Status = execlog.StatusFailed
		e.ExitCode = res.ExitCode
		e.Output = res.Output
	default:
		e.Status = execlog.StatusSucceeded
		e.Output = res.Output
	}

	if err := o.logs.AppendExecutionLog(context.WithoutCancel(ctx), e); err != nil {
		o.logger.Warn("execution log write failed",
			slog.String("server", server),
			slog.String("error", err.Error()),
		)
	}
}

// ErrorKind returns the Kind of a StageError in err's chain, or "" when
// there is none.
func ErrorKind(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
