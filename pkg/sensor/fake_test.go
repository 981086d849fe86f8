package sensor

import (
	"io"
	"sync"
	"time"
)

// fakeProcess is an in-memory sensor driven by the test through pipes.
type fakeProcess struct {
	primaryR *io.PipeReader
	primaryW *io.PipeWriter
	diagR    *io.PipeReader
	diagW    *io.PipeWriter
	exit     chan int

	mu              sync.Mutex
	terminateCalls  int
	killCalls       int
	ignoreTerminate bool
	exitOnce        sync.Once
}

func newFakeProcess() *fakeProcess {
	pr, pw := io.Pipe()
	dr, dw := io.Pipe()
	return &fakeProcess{
		primaryR: pr,
		primaryW: pw,
		diagR:    dr,
		diagW:    dw,
		exit:     make(chan int, 1),
	}
}

func (p *fakeProcess) Pid() int              { return 4242 }
func (p *fakeProcess) Primary() io.Reader    { return p.primaryR }
func (p *fakeProcess) Diagnostic() io.Reader { return p.diagR }

func (p *fakeProcess) Wait() (int, error) {
	return <-p.exit, nil
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminateCalls++
	ignore := p.ignoreTerminate
	p.mu.Unlock()
	if !ignore {
		p.exitWith(143)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killCalls++
	p.mu.Unlock()
	p.exitWith(137)
	return nil
}

func (p *fakeProcess) Close() error {
	_ = p.primaryR.Close()
	_ = p.diagR.Close()
	return nil
}

// exitWith closes both streams and makes Wait return code.
func (p *fakeProcess) exitWith(code int) {
	p.exitOnce.Do(func() {
		_ = p.primaryW.Close()
		_ = p.diagW.Close()
		p.exit <- code
	})
}

func (p *fakeProcess) writePrimary(line string) {
	_, _ = p.primaryW.Write([]byte(line + "\n"))
}

func (p *fakeProcess) writeDiagnostic(line string) {
	_, _ = p.diagW.Write([]byte(line + "\n"))
}

func (p *fakeProcess) calls() (terminate, kill int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminateCalls, p.killCalls
}

// fakeLauncher hands out a fresh fakeProcess per launch.
type fakeLauncher struct {
	mu       sync.Mutex
	launched []*fakeProcess
	err      error
	prepare  func(*fakeProcess)
}

func (l *fakeLauncher) Launch(string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess()
	if l.prepare != nil {
		l.prepare(p)
	}
	l.launched = append(l.launched, p)
	return p, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launched)
}

func (l *fakeLauncher) last() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launched[len(l.launched)-1]
}

// phaseLog records phase transitions.
type phaseLog struct {
	mu     sync.Mutex
	phases []Phase
}

func (l *phaseLog) add(p Phase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phases = append(l.phases, p)
}

func (l *phaseLog) get() []Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Phase(nil), l.phases...)
}

// steppingClock returns a time that advances by step on every call, except
// that the times in back are handed out first.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
	back []time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.back) > 0 {
		t := c.back[0]
		c.back = c.back[1:]
		return t
	}
	c.now = c.now.Add(c.step)
	return c.now
}
