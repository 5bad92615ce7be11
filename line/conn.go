package line

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labio/labline/internal/pool"
	"github.com/labio/labline/logger"
	"github.com/labio/labline/transport"
)

// pendingRequest is the bookkeeping for the single in-flight command.
//
// The reply channel has capacity one: the listener performs a non-blocking
// send into it, so a second frame arriving before the dispatcher wakes is
// dropped rather than queued.
type pendingRequest struct {
	replyChan chan []byte
	submitted time.Time
}

// Connection owns one transport endpoint, its background listener, and the
// single in-flight command slot. It implements the synchronous
// request/reply dispatch used by device layers.
//
// A Connection is safe for concurrent use; Send callers are serialized on
// the in-flight slot.
type Connection struct {
	pctx   context.Context
	cfg    *ConnectionConfig
	logger logger.Logger

	tr transport.Transport

	stateMgr *ConnStateMgr
	taskMgr  *TaskManager

	// ctx is recreated on every Open and cancelled on Close or fault,
	// waking any Send blocked on a reply.
	ctxMu     sync.Mutex
	ctx       context.Context
	ctxCancel context.CancelFunc

	// sendMu serializes Send/Transmit: at most one command is in flight,
	// later callers block until the previous command's reply or deadline.
	sendMu      sync.Mutex
	pending     atomic.Pointer[pendingRequest]
	lastCmdTime time.Time // guarded by sendMu
}

// NewConnection creates a Connection over the given transport.
//
// The transport must not be shared with any other Connection. cfg may be
// nil, in which case defaults are used. The connection starts in
// ClosedState; call Open to establish it.
func NewConnection(ctx context.Context, tr transport.Transport, cfg *ConnectionConfig) (*Connection, error) {
	if tr == nil {
		return nil, ErrTransportNil
	}

	if cfg == nil {
		var err error
		cfg, err = NewConnectionConfig()
		if err != nil {
			return nil, err
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}

	c := &Connection{
		pctx:   ctx,
		cfg:    cfg,
		logger: cfg.logger.With("endpoint", tr.String()),
		tr:     tr,
	}

	c.stateMgr = NewConnStateMgr(c.logger, cfg.stateHandlers...)
	c.taskMgr = NewTaskManager(ctx, c.logger)

	return c, nil
}

// State returns the current connection state.
func (c *Connection) State() ConnState {
	return c.stateMgr.State()
}

// StateMgr returns the connection's state manager, for registering state
// change handlers or waiting on a state.
func (c *Connection) StateMgr() *ConnStateMgr {
	return c.stateMgr
}

// GetLogger returns the logger associated with the connection.
func (c *Connection) GetLogger() logger.Logger {
	return c.logger
}

// Open acquires the transport resource and starts the listener.
//
// On success the connection is in OpenState. On failure the transport is
// released, the connection returns to ClosedState, and the error wraps
// ErrConnect. Opening a faulted connection fails; Close it first.
func (c *Connection) Open() error {
	if err := c.stateMgr.ToOpening(); err != nil {
		return fmt.Errorf("line: open in state %s: %w", c.stateMgr.State(), err)
	}

	if err := c.tr.Open(); err != nil {
		_ = c.stateMgr.ToClosed()

		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	c.createContext()

	if err := c.taskMgr.Start("listener", c.newListenerLoop()); err != nil {
		_ = c.tr.Close()
		_ = c.stateMgr.ToClosed()

		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	if err := c.stateMgr.ToOpen(); err != nil {
		// Lost a race with a concurrent Close.
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	c.logger.Info("connection opened")

	return nil
}

// Close stops the listener, releases the transport, and discards any
// in-flight command, waking its caller with ErrConnectionLost.
//
// Close is idempotent: closing a closed connection returns nil. Close is
// also the only way out of FaultedState.
func (c *Connection) Close() error {
	if err := c.stateMgr.ToClosing(); err != nil {
		if c.stateMgr.State().IsClosed() {
			return nil
		}

		return fmt.Errorf("line: close in state %s: %w", c.stateMgr.State(), err)
	}

	// Wake a Send blocked on a reply before tearing anything down.
	c.cancelContext()

	c.taskMgr.Stop()

	// Closing the transport unblocks the listener's poll read promptly.
	closeErr := c.tr.Close()

	c.taskMgr.Wait()

	if err := c.stateMgr.ToClosed(); err != nil {
		return fmt.Errorf("line: close: %w", err)
	}

	c.logger.Info("connection closed")

	return closeErr
}

// Send writes a command to the transport and blocks until the listener
// delivers the next reply frame, the timeout elapses, or the connection is
// closed or faults.
//
// The returned frame is the reply line with the terminator stripped,
// otherwise byte-for-byte as received. A non-positive timeout selects the
// configured default.
//
// Commands are strictly serialized: a concurrent Send blocks until the
// previous command's reply or deadline. Replies are matched to commands by
// temporal ordering only; see the package documentation for the implied
// limitation around late replies.
func (c *Connection) Send(cmd []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.cfg.replyTimeout
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	ctx := c.getContext()

	if !c.stateMgr.IsOpen() {
		return nil, fmt.Errorf("%w: connection is %s", ErrConnectionLost, c.stateMgr.State())
	}

	if err := c.applyCommandDelay(ctx); err != nil {
		return nil, err
	}

	// Register the pending slot before writing, so a fast reply cannot
	// slip past the dispatcher.
	p := &pendingRequest{
		replyChan: make(chan []byte, 1),
		submitted: time.Now(),
	}
	c.pending.Store(p)
	defer c.pending.Store(nil)

	if err := c.tr.Write(cmd); err != nil {
		c.fault(err)

		return nil, fmt.Errorf("line: send: %w", err)
	}

	c.lastCmdTime = time.Now()
	c.logger.Debug("sent command", "cmd", string(cmd))

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: connection is %s", ErrConnectionLost, c.stateMgr.State())

	case <-timer.C:
		c.logger.Warn("reply timeout", "cmd", string(cmd), "timeout", timeout)

		return nil, fmt.Errorf("%w: no reply within %v", ErrTimeout, timeout)

	case frame := <-p.replyChan:
		c.logger.Debug("received reply", "frame", string(frame),
			"latency", time.Since(p.submitted))

		return frame, nil
	}
}

// Transmit writes a command without waiting for a reply, for instrument
// operations that are specified as fire-and-forget. It obeys the same
// serialization and command-delay rules as Send.
func (c *Connection) Transmit(cmd []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	ctx := c.getContext()

	if !c.stateMgr.IsOpen() {
		return fmt.Errorf("%w: connection is %s", ErrConnectionLost, c.stateMgr.State())
	}

	if err := c.applyCommandDelay(ctx); err != nil {
		return err
	}

	if err := c.tr.Write(cmd); err != nil {
		c.fault(err)

		return fmt.Errorf("line: transmit: %w", err)
	}

	c.lastCmdTime = time.Now()
	c.logger.Debug("sent command (no reply expected)", "cmd", string(cmd))

	return nil
}

// --- Listener wiring ---

func (c *Connection) newListenerLoop() TaskFunc {
	ln := newListener(c.tr, c.cfg, c.logger, c.deliverFrame, c.fault)

	return ln.iteration
}

// deliverFrame hands a complete frame to the in-flight command, if any.
//
// Frames with no command in flight are logged and dropped (after the
// optional stray-frame handler has seen them) - never buffered, so a stale
// reply cannot satisfy a later unrelated command.
func (c *Connection) deliverFrame(frame []byte) {
	p := c.pending.Load()
	if p == nil {
		c.logger.Warn("discarding unsolicited frame", "frame", string(frame))

		if c.cfg.strayHandler != nil {
			c.cfg.strayHandler(frame)
		}

		return
	}

	select {
	case p.replyChan <- frame:
	default:
		// A frame is already waiting for this command; a device that
		// replies with multiple lines needs a device-layer read loop,
		// not silent queueing here.
		c.logger.Warn("delivery slot full, dropping frame", "frame", string(frame))
	}
}

// fault marks the connection Faulted after an unrecoverable transport error
// and wakes any blocked Send. Subsequent operations fail fast with
// ErrConnectionLost until the connection is closed and reopened.
func (c *Connection) fault(err error) {
	if faultErr := c.stateMgr.ToFaulted(); faultErr != nil {
		// Already closing or closed; nothing to mark.
		return
	}

	c.logger.Error("connection faulted", "error", err)
	c.cancelContext()
}

// --- Context management ---

func (c *Connection) createContext() {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()

	c.ctx, c.ctxCancel = context.WithCancel(c.pctx)
}

func (c *Connection) cancelContext() {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()

	if c.ctxCancel != nil {
		c.ctxCancel()
	}
}

func (c *Connection) getContext() context.Context {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()

	if c.ctx == nil {
		// Never opened; a pre-cancelled context keeps Send from blocking.
		ctx, cancel := context.WithCancel(c.pctx)
		cancel()

		return ctx
	}

	return c.ctx
}

// applyCommandDelay enforces the configured minimum spacing between
// consecutive commands, as simple flow control for instruments that cannot
// absorb back-to-back lines.
func (c *Connection) applyCommandDelay(ctx context.Context) error {
	if c.cfg.commandDelay <= 0 || c.lastCmdTime.IsZero() {
		return nil
	}

	elapsed := time.Since(c.lastCmdTime)
	if elapsed >= c.cfg.commandDelay {
		return nil
	}

	wait := c.cfg.commandDelay - elapsed
	c.logger.Debug("delaying command", "wait", wait)

	timer := pool.GetTimer(wait)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: connection is %s", ErrConnectionLost, c.stateMgr.State())
	case <-timer.C:
		return nil
	}
}
