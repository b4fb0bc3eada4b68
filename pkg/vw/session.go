// Package vw drives a Vowpal Wabbit process, either as a piped subprocess or
// through its daemon socket. It builds vw example lines, sends them, and
// parses the predictions vw writes back.
//
// A Session is meant for one goroutine at a time. Callers sharing a Session
// must serialize access themselves.
package vw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrDummySession is returned by send operations on a session created
	// with DummyMode.
	ErrDummySession = errors.New("session has no engine (dummy mode)")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// State is the lifecycle state of a Session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateActive        State = "active"
	StateClosed        State = "closed"
)

// Config describes how a Session reaches vw.
type Config struct {
	// Command, when set, is the full vw command line and Options is
	// ignored. It is split on whitespace.
	Command string
	// Options builds the command line when Command is empty.
	Options Options

	// ActiveMode starts vw in active learning mode over its daemon socket
	// and parses an importance with every response.
	ActiveMode bool
	// DaemonMode talks to vw over its socket instead of a pipe. It is
	// implied by ActiveMode and DaemonIP.
	DaemonMode bool
	// DaemonIP attaches to a running daemon; nothing is launched.
	DaemonIP string
	// DummyMode creates no engine at all. Only MakeLine and Command are
	// useful on such a session.
	DummyMode bool

	// Connection retry tuning for daemon mode; zero uses the defaults.
	DaemonDial DaemonConfig

	// Logger defaults to log.Default().
	Logger *log.Logger
}

// usesDaemon reports whether the session talks over a socket.
func (c Config) usesDaemon() bool {
	return c.ActiveMode || c.DaemonMode || c.DaemonIP != ""
}

// options returns the effective options, with active defaults merged under
// whatever the caller set.
func (c Config) options() Options {
	opts := c.Options
	if c.ActiveMode {
		opts = opts.WithActiveDefaults()
	} else if c.usesDaemon() && opts.Port == 0 {
		opts.Port = DefaultPort
	}
	return opts
}

// Session is one conversation with a vw engine.
type Session struct {
	id         string
	command    []string
	activeMode bool
	transport  Transport
	pending    PendingQueue
	lastLine   string
	state      State
	logger     *log.Logger
}

// New starts or attaches to vw as described by cfg. The process, if any,
// is tied to ctx.
func New(ctx context.Context, cfg Config) (*Session, error) {
	s := newSession(cfg)
	if cfg.DummyMode {
		s.state = StateActive
		return s, nil
	}

	var (
		t   Transport
		err error
	)
	if cfg.usesDaemon() {
		dc := cfg.DaemonDial
		dc.Argv = s.command
		dc.IP = cfg.DaemonIP
		dc.Port = cfg.options().Port
		dc.Logger = s.logger
		t, err = NewDaemonTransport(ctx, dc)
	} else {
		t, err = NewSubprocessTransport(ctx, s.command, s.logger)
	}
	if err != nil {
		return nil, err
	}

	s.attach(t)
	return s, nil
}

// NewWithTransport wraps an existing transport. cfg supplies the active
// mode flag and the command reported by Command.
func NewWithTransport(cfg Config, t Transport) *Session {
	s := newSession(cfg)
	s.attach(t)
	return s
}

func newSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	command := SplitCommand(cfg.Command)
	if len(command) == 0 {
		command = cfg.options().Args()
	}

	return &Session{
		id:         uuid.New().String(),
		command:    command,
		activeMode: cfg.ActiveMode,
		state:      StateUninitialized,
		logger:     logger,
	}
}

func (s *Session) attach(t Transport) {
	s.transport = t
	s.state = StateActive
	s.logger.Printf("session_event=started session_id=%s active_mode=%t command=%q",
		s.id, s.activeMode, s.Command())
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Command returns the vw command line this session was built with.
func (s *Session) Command() string { return strings.Join(s.command, " ") }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// ActiveMode reports whether responses carry an importance.
func (s *Session) ActiveMode() bool { return s.activeMode }

// Endpoint returns the daemon address for socket sessions, or "" when the
// transport has no address.
func (s *Session) Endpoint() string {
	if a, ok := s.transport.(interface{ Addr() string }); ok {
		return a.Addr()
	}
	return ""
}

// LastLine returns the most recent line built by MakeLine.
func (s *Session) LastLine() string { return s.lastLine }

// Pending exposes the queue of namespaces waiting for the next example.
func (s *Session) Pending() *PendingQueue { return &s.pending }

// AddNamespace queues ns for the next example and returns s for chaining.
func (s *Session) AddNamespace(ns *Namespace) *Session {
	s.pending.Push(ns)
	return s
}

// AddNamespaces queues each namespace in order and returns s for chaining.
func (s *Session) AddNamespaces(ns ...*Namespace) *Session {
	s.pending.Push(ns...)
	return s
}

// MakeLine builds the vw line for ex, consuming every queued namespace.
func (s *Session) MakeLine(ex Example) (string, error) {
	line, err := buildLine(ex, &s.pending)
	if err != nil {
		return "", err
	}
	s.lastLine = line
	return line, nil
}

// SendExample sends ex and parses the line vw answers with. If vw closes
// the stream partway through the answer, the partial response is returned
// together with io.EOF.
func (s *Session) SendExample(ex Example) (*Response, error) {
	raw, err := s.exchange(ex)
	return s.parse(raw, err)
}

// SendExampleNoParse sends ex and consumes vw's answer without parsing it.
// vw answers every example either way, so the answer is still read to keep
// the stream in step.
func (s *Session) SendExampleNoParse(ex Example) error {
	_, err := s.exchange(ex)
	return err
}

// GetPrediction sends an unlabeled example made of features (if non-nil),
// namespaces and anything already queued.
func (s *Session) GetPrediction(features []Feature, tag string, namespaces ...*Namespace) (*Response, error) {
	return s.SendExample(Example{
		Tag:        tag,
		Features:   features,
		Namespaces: namespaces,
	})
}

// SendLine sends a raw, already formatted line and parses the answer.
func (s *Session) SendLine(line string) (*Response, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.parse(s.roundTrip(line))
}

// SaveModel asks vw to write its model to path. vw sends no answer to this
// command. Paths containing a space, ':', '|' or a line break are rejected
// because they cannot be represented in the command line.
func (s *Session) SaveModel(path string) error {
	if err := Validate(path); err != nil {
		return err
	}
	if strings.ContainsAny(path, "\r\n") {
		return &InvalidCharacterError{Value: path}
	}
	if err := s.ready(); err != nil {
		return err
	}

	if err := s.transport.SendLine("save_" + path + "|"); err != nil {
		return err
	}
	s.logger.Printf("session_event=save_model session_id=%s path=%q", s.id, path)
	return nil
}

// Close shuts the transport down. Further sends return ErrSessionClosed.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	if s.transport == nil {
		return nil
	}

	err := s.transport.Close()
	s.logger.Printf("session_event=closed session_id=%s", s.id)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

func (s *Session) ready() error {
	switch {
	case s.state == StateClosed:
		return ErrSessionClosed
	case s.transport == nil:
		return ErrDummySession
	}
	return nil
}

func (s *Session) exchange(ex Example) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	line, err := s.MakeLine(ex)
	if err != nil {
		return "", err
	}
	return s.roundTrip(line)
}

func (s *Session) parse(raw string, err error) (*Response, error) {
	if err != nil && (raw == "" || !errors.Is(err, io.EOF)) {
		return nil, err
	}
	return ParseResponse(raw, s.activeMode), err
}

func (s *Session) roundTrip(line string) (string, error) {
	if err := s.transport.SendLine(line); err != nil {
		return "", err
	}
	return s.transport.ReadLine()
}
