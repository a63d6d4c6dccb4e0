package peersync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport reaches peers through a Relay.
type WebSocketTransport struct {
	// BaseURL is the relay endpoint without the id,
	// e.g. ws://127.0.0.1:8080/api/v1/peer/relay.
	BaseURL string
	Dialer  *websocket.Dialer
}

func NewWebSocketTransport(baseURL string) *WebSocketTransport {
	return &WebSocketTransport{
		BaseURL: baseURL,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

func (t *WebSocketTransport) Listen(ctx context.Context, id string) (Listener, error) {
	c, err := t.open(ctx, id, "listen")
	if err != nil {
		return nil, err
	}
	return &wsListener{conn: c}, nil
}

func (t *WebSocketTransport) Dial(ctx context.Context, id string) (Conn, error) {
	return t.open(ctx, id, "dial")
}

func (t *WebSocketTransport) open(ctx context.Context, id, role string) (*wsConn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	target := strings.TrimRight(t.BaseURL, "/") + "/" + url.PathEscape(id) + "?role=" + role

	ws, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusNotFound:
				return nil, ErrPeerNotFound
			case http.StatusConflict:
				return nil, ErrIDTaken
			}
		}
		return nil, fmt.Errorf("relay %s: %w", role, err)
	}
	ws.SetReadLimit(maxRelayMessage)
	return newWSConn(ws), nil
}

type wsListener struct {
	conn *wsConn
	once sync.Once
}

// Accept waits for the relay to announce a dialer. A listener accepts once.
func (l *wsListener) Accept(ctx context.Context) (Conn, error) {
	accepted := false
	l.once.Do(func() { accepted = true })
	if !accepted {
		return nil, ErrClosed
	}
	for {
		f, err := l.conn.next(ctx)
		if err != nil {
			return nil, err
		}
		if f.kind == websocket.TextMessage && string(f.data) == peerConnected {
			return l.conn, nil
		}
	}
}

func (l *wsListener) Close() error {
	return l.conn.Close()
}

type wsFrame struct {
	kind int
	data []byte
}

type wsConn struct {
	ws      *websocket.Conn
	frames  chan wsFrame
	done    chan struct{}
	once    sync.Once
	writeMu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{ws: ws, frames: make(chan wsFrame, 4), done: make(chan struct{})}
	go c.pump()
	return c
}

func (c *wsConn) pump() {
	defer close(c.frames)
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.frames <- wsFrame{kind: kind, data: data}:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) next(ctx context.Context) (wsFrame, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return wsFrame{}, ErrClosed
		}
		return f, nil
	case <-c.done:
		return wsFrame{}, ErrClosed
	case <-ctx.Done():
		return wsFrame{}, ctx.Err()
	}
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
		defer c.ws.SetWriteDeadline(time.Time{})
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrClosed
		}
		return fmt.Errorf("relay send: %w", err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		f, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		if f.kind == websocket.BinaryMessage {
			return f.data, nil
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
