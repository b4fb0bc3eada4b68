package vw

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultPort is vw's daemon port.
	DefaultPort = 26542
	// DefaultIP is used when no daemon address is given.
	DefaultIP = "127.0.0.1"
	// DefaultConnectionWait is the pause between connection attempts.
	DefaultConnectionWait = 100 * time.Millisecond
	// DefaultMaxConnectionAttempts bounds the connection loop.
	DefaultMaxConnectionAttempts = 50
)

// ErrConnectionExhausted is matched by every ConnectionExhaustedError.
var ErrConnectionExhausted = errors.New("connection attempts exhausted")

// ConnectionExhaustedError reports that the daemon never accepted a
// connection, usually because vw had not opened its port in time.
type ConnectionExhaustedError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ConnectionExhaustedError) Error() string {
	return fmt.Sprintf("failed to connect to vw daemon at %s after %d attempts: %v", e.Addr, e.Attempts, e.Err)
}

func (e *ConnectionExhaustedError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConnectionExhausted.
func (e *ConnectionExhaustedError) Is(target error) bool {
	return target == ErrConnectionExhausted
}

// DaemonConfig selects the daemon to talk to.
type DaemonConfig struct {
	// Argv launches a new daemon. It is ignored when IP is set.
	Argv []string
	// IP attaches to an already running daemon.
	IP   string
	Port int

	ConnectionWait        time.Duration
	MaxConnectionAttempts int
	Logger                *log.Logger
}

func (c DaemonConfig) withDefaults() DaemonConfig {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectionWait <= 0 {
		c.ConnectionWait = DefaultConnectionWait
	}
	if c.MaxConnectionAttempts <= 0 {
		c.MaxConnectionAttempts = DefaultMaxConnectionAttempts
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// DaemonTransport talks to vw over a TCP connection to its daemon port.
type DaemonTransport struct {
	conn   net.Conn
	lines  *lineBuffer
	proc   *engineProcess
	closed bool
}

var _ Transport = (*DaemonTransport)(nil)

// NewDaemonTransport optionally starts vw and connects to its port,
// retrying every ConnectionWait up to MaxConnectionAttempts times. If the
// daemon never answers, any process started here is stopped and a
// *ConnectionExhaustedError is returned.
func NewDaemonTransport(ctx context.Context, cfg DaemonConfig) (*DaemonTransport, error) {
	cfg = cfg.withDefaults()

	var proc *engineProcess
	ip := cfg.IP
	if ip == "" {
		ip = DefaultIP
		if len(cfg.Argv) > 0 {
			var err error
			if proc, _, err = startEngine(ctx, cfg.Argv, cfg.Logger, false); err != nil {
				return nil, err
			}
		}
	}

	addr := net.JoinHostPort(ip, strconv.Itoa(cfg.Port))
	conn, err := dialWithRetry(ctx, addr, cfg)
	if err != nil {
		if proc != nil {
			proc.stop()
		}
		return nil, err
	}
	cfg.Logger.Printf("daemon_event=connected addr=%s", addr)

	return &DaemonTransport{
		conn:  conn,
		lines: newLineBuffer(conn),
		proc:  proc,
	}, nil
}

func dialWithRetry(ctx context.Context, addr string, cfg DaemonConfig) (net.Conn, error) {
	var (
		dialer  net.Dialer
		lastErr error
	)
	for attempt := 1; attempt <= cfg.MaxConnectionAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("connect to vw daemon cancelled after %d attempts: %w", attempt, ctx.Err())
		}
		if attempt == cfg.MaxConnectionAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to vw daemon cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(cfg.ConnectionWait):
		}
	}
	return nil, &ConnectionExhaustedError{Addr: addr, Attempts: cfg.MaxConnectionAttempts, Err: lastErr}
}

// SendLine writes one line to the socket.
func (t *DaemonTransport) SendLine(line string) error {
	return writeLine(t.conn, line)
}

// ReadLine reads one line from the socket.
func (t *DaemonTransport) ReadLine() (string, error) {
	return t.lines.readLine()
}

// Addr returns the daemon's address.
func (t *DaemonTransport) Addr() string {
	return t.conn.RemoteAddr().String()
}

// Close closes the socket and stops the daemon if this transport started it.
func (t *DaemonTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	err := t.conn.Close()
	if t.proc != nil {
		t.proc.stop()
	}
	return err
}
