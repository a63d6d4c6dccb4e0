package peersync

import (
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"resumate/internal/shared/server/respond"
	"resumate/internal/shared/telemetry"
)

const (
	// peerConnected is sent to the listening side once a dialer joins.
	peerConnected = "peer-connected"

	maxRelayMessage = 64 << 20
	relayInbox      = 16
	closeGrace      = time.Second
)

var relayIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Relay pairs one listening and one dialing websocket per id and forwards
// binary messages between them.
type Relay struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*room
}

func NewRelay() *Relay {
	return &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
			// The API only listens on a local address and carries no credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: make(map[string]*room),
	}
}

// RegisterRoutes attaches the relay endpoint to the router group.
func (r *Relay) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/peer/relay/:id", r.serve)
}

// Rooms returns the number of open ids.
func (r *Relay) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Relay) serve(c *gin.Context) {
	id := c.Param("id")
	if !relayIDRe.MatchString(id) {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid peer id", nil)
		return
	}
	switch c.DefaultQuery("role", "dial") {
	case "listen":
		r.listen(c, id)
	case "dial":
		r.dial(c, id)
	default:
		respond.Error(c, http.StatusBadRequest, "validation_error", "role must be listen or dial", nil)
	}
}

func (r *Relay) listen(c *gin.Context, id string) {
	r.mu.Lock()
	if _, ok := r.rooms[id]; ok {
		r.mu.Unlock()
		respond.Error(c, http.StatusConflict, "peer_id_taken", "peer id already in use", nil)
		return
	}
	rm := newRoom()
	r.rooms[id] = rm
	r.mu.Unlock()
	defer r.remove(id, rm)

	ws, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		telemetry.Warn("peer.relay.upgrade_failed", map[string]any{"role": "listen", "error": err})
		return
	}
	telemetry.Debug("peer.relay.listening", map[string]any{"id": id})
	rm.run(ws, rm.listener)
}

func (r *Relay) dial(c *gin.Context, id string) {
	r.mu.Lock()
	rm, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		respond.Error(c, http.StatusNotFound, "peer_not_found", "no peer is listening on this id", nil)
		return
	}
	dialer := &relayPeer{inbox: make(chan relayFrame, relayInbox)}
	if !rm.dialer.CompareAndSwap(nil, dialer) {
		r.mu.Unlock()
		respond.Error(c, http.StatusConflict, "peer_busy", "peer already connected", nil)
		return
	}
	r.mu.Unlock()

	ws, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		telemetry.Warn("peer.relay.upgrade_failed", map[string]any{"role": "dial", "error": err})
		rm.close()
		return
	}

	select {
	case rm.listener.inbox <- relayFrame{kind: websocket.TextMessage, data: []byte(peerConnected)}:
	case <-rm.done:
	}
	telemetry.Debug("peer.relay.paired", map[string]any{"id": id})
	rm.run(ws, dialer)
}

func (r *Relay) remove(id string, rm *room) {
	rm.close()
	r.mu.Lock()
	if r.rooms[id] == rm {
		delete(r.rooms, id)
	}
	r.mu.Unlock()
}

type relayFrame struct {
	kind int
	data []byte
}

type relayPeer struct {
	inbox chan relayFrame
}

type room struct {
	listener *relayPeer
	dialer   atomic.Pointer[relayPeer]
	done     chan struct{}
	once     sync.Once
}

func newRoom() *room {
	return &room{
		listener: &relayPeer{inbox: make(chan relayFrame, relayInbox)},
		done:     make(chan struct{}),
	}
}

func (rm *room) close() {
	rm.once.Do(func() { close(rm.done) })
}

func (rm *room) peerOf(self *relayPeer) *relayPeer {
	if self == rm.listener {
		return rm.dialer.Load()
	}
	return rm.listener
}

// run owns ws: a reader goroutine forwards to the other side while this
// goroutine writes everything addressed to self. Either side leaving closes
// the room; frames already queued are still delivered.
func (rm *room) run(ws *websocket.Conn, self *relayPeer) {
	defer ws.Close()
	ws.SetReadLimit(maxRelayMessage)

	go func() {
		defer rm.close()
		for {
			kind, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			peer := rm.peerOf(self)
			if peer == nil {
				continue
			}
			select {
			case peer.inbox <- relayFrame{kind: kind, data: data}:
			case <-rm.done:
				return
			}
		}
	}()

	for {
		select {
		case f := <-self.inbox:
			if err := ws.WriteMessage(f.kind, f.data); err != nil {
				rm.close()
				return
			}
		case <-rm.done:
			for {
				select {
				case f := <-self.inbox:
					if err := ws.WriteMessage(f.kind, f.data); err != nil {
						return
					}
				default:
					_ = ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(closeGrace))
					return
				}
			}
		}
	}
}
