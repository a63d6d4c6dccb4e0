// Package peersync moves a full snapshot from one device to another. The
// sender publishes a short pairing code, the receiver dials it, and the
// sender pushes one compact export which the receiver imports.
package peersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"resumate/internal/shared/metrics"
	"resumate/internal/shared/telemetry"
	"resumate/internal/snapshot"
)

const (
	StatusIdle      = "idle"
	StatusWaiting   = "waiting"
	StatusConnected = "connected"
	StatusSending   = "sending"
	StatusReceiving = "receiving"
	StatusComplete  = "complete"
	StatusError     = "error"
)

// DefaultTimeout bounds one transfer, waiting for the other device included.
const DefaultTimeout = 10 * time.Minute

// listenAttempts is how many codes the sender tries when an id is taken.
const listenAttempts = 3

var (
	ErrAlreadyStarted = errors.New("peer sync already started")
	ErrInvalidCode    = errors.New("pairing code must look like word-word-00")
)

// Status is the observable progress of a transfer.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Snapshots produces and applies the transfer payload.
type Snapshots interface {
	ExportJSON(ctx context.Context, indent bool) ([]byte, error)
	Import(ctx context.Context, data []byte) (snapshot.ImportReport, error)
}

// PeerSync runs one transfer in one role. Create a new instance per transfer.
type PeerSync struct {
	transport Transport
	data      Snapshots
	onStatus  func(Status)
	timeout   time.Duration

	mu       sync.Mutex
	status   Status
	started  bool
	closed   bool
	cancel   context.CancelFunc
	listener Listener
	conn     Conn
	done     chan struct{}
}

// New creates an idle PeerSync. onStatus may be nil.
func New(t Transport, data Snapshots, onStatus func(Status)) *PeerSync {
	return &PeerSync{
		transport: t,
		data:      data,
		onStatus:  onStatus,
		timeout:   DefaultTimeout,
		status:    Status{Status: StatusIdle},
	}
}

// SetTimeout overrides DefaultTimeout. It must be called before a role starts.
func (p *PeerSync) SetTimeout(d time.Duration) {
	p.mu.Lock()
	p.timeout = d
	p.mu.Unlock()
}

// Status returns the latest status.
func (p *PeerSync) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// StartSender claims a fresh pairing code and waits in the background for a
// receiver. It returns once the code is reserved.
func (p *PeerSync) StartSender(ctx context.Context) (string, error) {
	runCtx, err := p.begin()
	if err != nil {
		return "", err
	}

	code := NewCode()
	p.setStatus(Status{Status: StatusWaiting, Message: "Initializing...", Code: code})

	var l Listener
	for attempt := 0; attempt < listenAttempts; attempt++ {
		l, err = p.transport.Listen(ctx, code)
		if !errors.Is(err, ErrIDTaken) {
			break
		}
		code = NewCode()
	}
	if err != nil {
		p.fail("sender", "Failed to start sender", err)
		p.finish()
		return "", fmt.Errorf("listen: %w", err)
	}
	if !p.attach(l, nil) {
		l.Close()
		p.finish()
		return "", ErrClosed
	}

	p.setStatus(Status{Status: StatusWaiting, Message: "Ready! Share this code with the receiving device", Code: code})
	go p.runSender(runCtx, l, code)
	return code, nil
}

func (p *PeerSync) runSender(ctx context.Context, l Listener, code string) {
	defer p.finish()

	conn, err := l.Accept(ctx)
	if err != nil {
		p.fail("sender", "Connection failed", err)
		return
	}
	if !p.attach(nil, conn) {
		conn.Close()
		return
	}
	defer conn.Close()
	p.setStatus(Status{Status: StatusConnected, Message: "Device connected! Starting data transfer...", Code: code})

	p.setStatus(Status{Status: StatusSending, Message: "Exporting data...", Code: code})
	payload, err := p.data.ExportJSON(ctx, false)
	if err != nil {
		p.fail("sender", "Failed to send data", err)
		return
	}
	p.setStatus(Status{Status: StatusSending, Message: "Sending data to receiver...", Code: code})
	if err := conn.Send(ctx, payload); err != nil {
		p.fail("sender", "Failed to send data", err)
		return
	}
	p.setStatus(Status{Status: StatusComplete, Message: "Data sent successfully!", Code: code})
	metrics.PeerTransfersTotal.WithLabelValues("sender", StatusComplete).Inc()
	telemetry.Info("peer.sent", map[string]any{"code": code, "bytes": len(payload)})

	// Hold the channel until the receiver hangs up so nothing queued is dropped.
	_, _ = conn.Receive(ctx)
}

// ConnectToSender dials code and imports the snapshot the sender pushes. It
// returns once connected; the transfer continues in the background.
func (p *PeerSync) ConnectToSender(ctx context.Context, code string) error {
	code, ok := NormalizeCode(code)
	if !ok {
		return ErrInvalidCode
	}
	runCtx, err := p.begin()
	if err != nil {
		return err
	}

	p.setStatus(Status{Status: StatusWaiting, Message: "Connecting to sender..."})
	conn, err := p.transport.Dial(ctx, code)
	if err != nil {
		p.fail("receiver", "Failed to connect", err)
		p.finish()
		return fmt.Errorf("dial: %w", err)
	}
	if !p.attach(nil, conn) {
		conn.Close()
		p.finish()
		return ErrClosed
	}
	p.setStatus(Status{Status: StatusConnected, Message: "Connected! Waiting for data..."})
	go p.runReceiver(runCtx, conn)
	return nil
}

func (p *PeerSync) runReceiver(ctx context.Context, conn Conn) {
	defer p.finish()
	defer conn.Close()

	payload, err := conn.Receive(ctx)
	if err != nil {
		p.fail("receiver", "Connection failed", err)
		return
	}
	p.setStatus(Status{Status: StatusReceiving, Message: "Receiving and importing data..."})
	report, err := p.data.Import(ctx, payload)
	if err != nil {
		p.fail("receiver", "Failed to import data", err)
		return
	}
	p.setStatus(Status{Status: StatusComplete, Message: "Data received and imported successfully!"})
	metrics.PeerTransfersTotal.WithLabelValues("receiver", StatusComplete).Inc()
	telemetry.Info("peer.received", map[string]any{"bytes": len(payload), "records": report.Records})
}

// Close releases the channel and peer identity. It is safe to call at any
// time and more than once.
func (p *PeerSync) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel, l, conn, done := p.cancel, p.listener, p.conn, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if l != nil {
		l.Close()
	}
	if done != nil {
		<-done
	}
	return nil
}

func (p *PeerSync) begin() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.started {
		return nil, ErrAlreadyStarted
	}
	p.started = true
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	p.cancel = cancel
	p.done = make(chan struct{})
	return ctx, nil
}

// attach records resources for Close. It reports false once closed.
func (p *PeerSync) attach(l Listener, conn Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if l != nil {
		p.listener = l
	}
	if conn != nil {
		p.conn = conn
	}
	return true
}

// finish runs when the role's work ends, successfully or not.
func (p *PeerSync) finish() {
	p.mu.Lock()
	cancel, l, done := p.cancel, p.listener, p.done
	p.listener = nil
	p.mu.Unlock()

	if l != nil {
		l.Close()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		close(done)
	}
}

func (p *PeerSync) fail(role, message string, err error) {
	if p.isClosed() {
		return
	}
	metrics.PeerTransfersTotal.WithLabelValues(role, StatusError).Inc()
	telemetry.Warn("peer.failed", map[string]any{"role": role, "message": message, "error": err})
	p.setStatus(Status{Status: StatusError, Message: message, Error: err.Error()})
}

func (p *PeerSync) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// setStatus publishes s unless the instance was closed.
func (p *PeerSync) setStatus(s Status) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.status = s
	cb := p.onStatus
	p.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}
