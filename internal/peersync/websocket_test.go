package peersync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newRelayServer(t *testing.T) (*Relay, *WebSocketTransport) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	relay := NewRelay()
	relay.RegisterRoutes(r.Group("/api/v1"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/peer/relay"
	return relay, NewWebSocketTransport(base)
}

func waitRooms(t *testing.T, relay *Relay, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for relay.Rooms() != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := relay.Rooms(); got != want {
		t.Fatalf("expected %d rooms, got %d", want, got)
	}
}

func TestRelayPairsPeers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	relay, transport := newRelayServer(t)

	l, err := transport.Listen(ctx, "star-wave-11")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()
	waitRooms(t, relay, 1)

	if _, err := transport.Listen(ctx, "star-wave-11"); !errors.Is(err, ErrIDTaken) {
		t.Fatalf("expected ErrIDTaken, got %v", err)
	}
	if _, err := transport.Dial(ctx, "star-wave-12"); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}

	client, err := transport.Dial(ctx, "star-wave-11")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	server, err := l.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := transport.Dial(ctx, "star-wave-11"); !errors.Is(err, ErrIDTaken) {
		t.Fatalf("expected busy room to refuse a second dialer, got %v", err)
	}

	if err := server.Send(ctx, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := client.Receive(ctx)
	if err != nil || string(got) != `{"a":1}` {
		t.Fatalf("Receive = %q, %v", got, err)
	}
	if err := client.Send(ctx, []byte("ack")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got, err := server.Receive(ctx); err != nil || string(got) != "ack" {
		t.Fatalf("Receive = %q, %v", got, err)
	}

	client.Close()
	if _, err := server.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after peer left, got %v", err)
	}
	waitRooms(t, relay, 0)
}

func TestRelayRejectsBadRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewRelay().RegisterRoutes(r.Group("/api/v1"))

	for _, target := range []string{
		"/api/v1/peer/relay/bad%20id",
		"/api/v1/peer/relay/moon-sun-01?role=watch",
	} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, resp.Code)
		}
	}
}

func TestTransferOverRelay(t *testing.T) {
	ctx := context.Background()
	relay, transport := newRelayServer(t)
	src, dst := newDevice(t), newDevice(t)
	src.saveProject(t, "Globex")

	sender := New(transport, src.snap, nil)
	defer sender.Close()
	code, err := sender.StartSender(ctx)
	if err != nil {
		t.Fatalf("StartSender: %v", err)
	}

	receiver := New(transport, dst.snap, nil)
	defer receiver.Close()
	if err := receiver.ConnectToSender(ctx, code); err != nil {
		t.Fatalf("ConnectToSender: %v", err)
	}
	waitFor(t, receiver, StatusComplete)

	if got := dst.state.Snapshot().JobName; got != "Globex" {
		t.Fatalf("expected imported state, got %q", got)
	}
	waitRooms(t, relay, 0)
}
