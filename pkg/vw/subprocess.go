package vw

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// stopTimeout bounds how long Close waits for vw to exit after SIGTERM.
const stopTimeout = 5 * time.Second

// engineProcess is a running vw child.
type engineProcess struct {
	cmd     *exec.Cmd
	stdout  *io.PipeReader
	outPipe *io.PipeWriter
	errPipe *io.PipeWriter
	done    chan struct{}
	err     error
	logger  *log.Logger
}

// startEngine launches argv. When stdio is false the child's stdin and
// stdout are left unconnected. Stderr is always relayed to logger.
// The stdout reader sees io.EOF only after everything vw wrote has been
// consumed.
func startEngine(ctx context.Context, argv []string, logger *log.Logger, stdio bool) (*engineProcess, io.WriteCloser, error) {
	if len(argv) == 0 {
		return nil, nil, errors.New("empty engine command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	p := &engineProcess{
		cmd:    cmd,
		done:   make(chan struct{}),
		logger: logger,
	}

	var stdin io.WriteCloser
	if stdio {
		var err error
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdin pipe: %w", err)
		}
		p.stdout, p.outPipe = io.Pipe()
		cmd.Stdout = p.outPipe
	}

	errReader, errWriter := io.Pipe()
	p.errPipe = errWriter
	cmd.Stderr = errWriter

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	p.logger.Printf("engine_event=started pid=%d command=%q", cmd.Process.Pid, strings.Join(argv, " "))

	go p.relayStderr(errReader)
	go p.wait()

	return p, stdin, nil
}

func (p *engineProcess) relayStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		p.logger.Printf("engine_stderr pid=%d line=%q", p.cmd.Process.Pid, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		p.logger.Printf("engine_stderr pid=%d relay_error=%q", p.cmd.Process.Pid, err)
	}
	// vw blocks on a full stderr pipe, so keep draining after a scan error.
	io.Copy(io.Discard, r)
}

func (p *engineProcess) wait() {
	defer close(p.done)
	p.err = p.cmd.Wait()
	if p.outPipe != nil {
		p.outPipe.Close()
	}
	p.errPipe.Close()

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	p.logger.Printf("engine_event=exited pid=%d exit_code=%d", p.cmd.Process.Pid, code)
}

// stop sends SIGTERM and kills the process if it has not exited within
// stopTimeout. Unread output is discarded.
func (p *engineProcess) stop() error {
	if p.stdout != nil {
		p.stdout.Close()
	}

	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		p.cmd.Process.Kill()
	}

	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		p.cmd.Process.Kill()
		<-p.done
	}
	return nil
}

// SubprocessTransport talks to vw over the child's stdin and stdout.
type SubprocessTransport struct {
	proc   *engineProcess
	stdin  io.WriteCloser
	lines  *lineBuffer
	closed bool
}

var _ Transport = (*SubprocessTransport)(nil)

// NewSubprocessTransport starts argv with its stdin and stdout wired to
// the returned transport. The process lives until Close or until ctx is
// done. A nil logger uses log.Default().
func NewSubprocessTransport(ctx context.Context, argv []string, logger *log.Logger) (*SubprocessTransport, error) {
	if logger == nil {
		logger = log.Default()
	}
	proc, stdin, err := startEngine(ctx, argv, logger, true)
	if err != nil {
		return nil, err
	}
	return &SubprocessTransport{
		proc:  proc,
		stdin: stdin,
		lines: newLineBuffer(proc.stdout),
	}, nil
}

// SendLine writes one line to vw's stdin.
func (t *SubprocessTransport) SendLine(line string) error {
	return writeLine(t.stdin, line)
}

// ReadLine reads one line from vw's stdout.
func (t *SubprocessTransport) ReadLine() (string, error) {
	return t.lines.readLine()
}

// Pid returns the child's process ID.
func (t *SubprocessTransport) Pid() int {
	return t.proc.cmd.Process.Pid
}

// Close closes vw's stdin and stops the process.
func (t *SubprocessTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	// vw exits on its own once stdin reaches EOF and the model is flushed.
	t.stdin.Close()
	select {
	case <-t.proc.done:
		return nil
	case <-time.After(100 * time.Millisecond):
	}
	return t.proc.stop()
}
