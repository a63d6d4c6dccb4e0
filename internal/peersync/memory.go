package peersync

import (
	"context"
	"sync"
)

// MemoryHub is an in-process Transport. Both peers must share the hub.
type MemoryHub struct {
	mu        sync.Mutex
	listeners map[string]*memListener
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{listeners: make(map[string]*memListener)}
}

func (h *MemoryHub) Listen(ctx context.Context, id string) (Listener, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[id]; ok {
		return nil, ErrIDTaken
	}
	l := &memListener{hub: h, id: id, incoming: make(chan Conn, 1), done: make(chan struct{})}
	h.listeners[id] = l
	return l, nil
}

func (h *MemoryHub) Dial(ctx context.Context, id string) (Conn, error) {
	h.mu.Lock()
	l, ok := h.listeners[id]
	h.mu.Unlock()
	if !ok {
		return nil, ErrPeerNotFound
	}

	local, remote := memPipe()
	select {
	case l.incoming <- remote:
		return local, nil
	case <-l.done:
		return nil, ErrPeerNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memListener struct {
	hub      *MemoryHub
	id       string
	incoming chan Conn
	done     chan struct{}
	once     sync.Once
}

func (l *memListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.hub.mu.Lock()
		if l.hub.listeners[l.id] == l {
			delete(l.hub.listeners, l.id)
		}
		l.hub.mu.Unlock()
	})
	return nil
}

// memPipe returns the two ends of a buffered message pipe. Closing either end
// closes both.
func memPipe() (*memConn, *memConn) {
	ab := make(chan []byte, 8)
	ba := make(chan []byte, 8)
	done := make(chan struct{})
	once := &sync.Once{}
	return &memConn{in: ba, out: ab, done: done, once: once},
		&memConn{in: ab, out: ba, done: done, once: once}
}

type memConn struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
}

func (c *memConn) Send(ctx context.Context, data []byte) error {
	msg := append([]byte(nil), data...)
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive drains buffered messages before reporting a close.
func (c *memConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.done:
		select {
		case msg := <-c.in:
			return msg, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *memConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
