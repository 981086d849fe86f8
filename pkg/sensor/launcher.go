package sensor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// Process is a handle to one running sensor.
type Process interface {
	Pid() int
	// Primary is the activity stream; one non-empty line per movement.
	Primary() io.Reader
	// Diagnostic is the error stream.
	Diagnostic() io.Reader
	// Wait blocks until the process exits and returns its exit code. It must
	// only be called once both streams have been read to completion.
	Wait() (int, error)
	// Terminate asks the process to exit.
	Terminate() error
	// Kill forces the process to exit.
	Kill() error
	// Close releases both streams, unblocking any pending reads.
	Close() error
}

// Launcher spawns sensor processes.
type Launcher interface {
	Launch(path string) (Process, error)
}

// ExecLauncher runs the sensor as a child process with no arguments and no
// stdin.
type ExecLauncher struct {
	// UsePTY attaches the sensor's stdout to a pseudo-terminal so that a
	// sensor using C stdio flushes every line. Stderr stays a plain pipe.
	UsePTY bool
}

// Ensure ExecLauncher implements Launcher
var _ Launcher = ExecLauncher{}

// Launch starts the sensor at path.
func (l ExecLauncher) Launch(path string) (Process, error) {
	cmd := exec.Command(path)
	cmd.Stdin = nil

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostic stream: %w", err)
	}

	p := &execProcess{cmd: cmd, diagnostic: stderr}

	if l.UsePTY {
		master, tty, err := pty.Open()
		if err != nil {
			_ = stderr.Close()
			return nil, fmt.Errorf("failed to open PTY: %w", err)
		}
		cmd.Stdout = tty
		if err := cmd.Start(); err != nil {
			_ = master.Close()
			_ = tty.Close()
			return nil, fmt.Errorf("failed to start sensor: %w", err)
		}
		// The child holds its own copy; keeping ours would stop the master
		// from ever reporting the end of the stream.
		_ = tty.Close()
		p.primary = ptyReader{master}
		p.closers = []io.Closer{master, stderr}
		return p, nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stderr.Close()
		return nil, fmt.Errorf("failed to open activity stream: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start sensor: %w", err)
	}
	p.primary = stdout
	p.closers = []io.Closer{stdout, stderr}
	return p, nil
}

type execProcess struct {
	cmd        *exec.Cmd
	primary    io.Reader
	diagnostic io.Reader
	closers    []io.Closer
	closeOnce  sync.Once
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Primary() io.Reader {
	return p.primary
}

func (p *execProcess) Diagnostic() io.Reader {
	return p.diagnostic
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, err
	}
}

// Terminate sends SIGTERM, falling back to Kill where that is not possible.
func (p *execProcess) Terminate() error {
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return p.Kill()
	}
	return nil
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		for _, c := range p.closers {
			if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// ptyReader reports EIO from a PTY master as end of stream; Linux returns it
// once the last slave descriptor is gone.
type ptyReader struct {
	f *os.File
}

func (r ptyReader) Read(b []byte) (int, error) {
	n, err := r.f.Read(b)
	if err != nil && errors.Is(err, syscall.EIO) {
		return n, io.EOF
	}
	return n, err
}
