package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess delivers queued packets from a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor ticks the bridge.
	// Default: 1ms
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: time.Millisecond,
	}
}

// Pipe is an in-memory packet link between a host endpoint and a model
// endpoint, built on pion's test.Bridge. Host adapters use HostConn, model
// servers accept the other end from Listener.
type Pipe struct {
	bridge      *test.Bridge
	host, model *pipeConn

	mu              sync.Mutex
	closed          bool
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup

	acceptCh chan struct{}
	doneCh   chan struct{}
}

// NewPipe creates a pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	bridge := test.NewBridge()
	p := &Pipe{
		bridge:          bridge,
		host:            &pipeConn{Conn: bridge.GetConn0(), local: PipeAddr{ID: 0}, remote: PipeAddr{ID: 1}},
		model:           &pipeConn{Conn: bridge.GetConn1(), local: PipeAddr{ID: 1}, remote: PipeAddr{ID: 0}},
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
		acceptCh:        make(chan struct{}, 1),
		doneCh:          make(chan struct{}),
	}
	if p.processInterval == 0 {
		p.processInterval = time.Millisecond
	}
	p.acceptCh <- struct{}{}
	if p.autoProcess {
		p.startAutoProcess()
	}
	return p
}

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				// Drain everything queued so a round trip costs one interval.
				for p.bridge.Tick() > 0 {
				}
			}
		}
	}()
}

// SetAutoProcess enables or disables background delivery.
// When disabled, call Tick or Process to move packets.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.autoProcess == enabled {
		return
	}
	p.autoProcess = enabled
	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
		return
	}
	close(p.stopCh)
	p.wg.Wait()
}

// AutoProcess reports whether background delivery is enabled.
func (p *Pipe) AutoProcess() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoProcess
}

// HostConn returns the host end of the link.
func (p *Pipe) HostConn() net.Conn {
	return p.host
}

// Listener returns a net.Listener that yields the model end of the link
// once. Subsequent Accept calls block until the pipe is closed.
func (p *Pipe) Listener() net.Listener {
	return &pipeListener{pipe: p}
}

// Tick delivers at most one packet in each direction.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued packets and returns how many moved.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// Close closes both ends and stops auto-processing. Ends already closed by
// their users are skipped. Close is idempotent.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	close(p.doneCh)
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.host.Close()
	err1 := p.model.Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// PipeAddr implements net.Addr for pipe endpoints.
type PipeAddr struct {
	ID int // 0 host, 1 model
}

// Network implements net.Addr.
func (a PipeAddr) Network() string { return "pipe" }

func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// pipeConn closes its bridge end once; later calls return the first result.
type pipeConn struct {
	net.Conn
	local, remote PipeAddr

	closeOnce sync.Once
	closeErr  error
}

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.Conn.Close() })
	return c.closeErr
}

func (c *pipeConn) LocalAddr() net.Addr  { return c.local }
func (c *pipeConn) RemoteAddr() net.Addr { return c.remote }

type pipeListener struct {
	pipe *Pipe
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case <-l.pipe.acceptCh:
		return l.pipe.model, nil
	case <-l.pipe.doneCh:
		return nil, net.ErrClosed
	}
}

// Close closes the whole pipe; the listener owns no other resource.
func (l *pipeListener) Close() error { return l.pipe.Close() }

func (l *pipeListener) Addr() net.Addr { return PipeAddr{ID: 1} }

var (
	_ net.Conn     = (*pipeConn)(nil)
	_ net.Listener = (*pipeListener)(nil)
)
