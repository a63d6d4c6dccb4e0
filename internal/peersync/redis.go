package peersync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/rueidis"

	"resumate/internal/shared/telemetry"
)

const (
	redisKeyPrefix = "resumate:peer:"

	frameHello = 'h'
	frameData  = 'd'
	frameClose = 'c'
)

// RedisTransport rendezvous peers over Redis pub/sub. The listener owns
// "<prefix><id>:owner"; dialers publish to "<id>:hello" and listeners to
// "<id>:data". Every frame carries a one byte kind prefix.
type RedisTransport struct {
	client rueidis.Client
	// OwnerTTL bounds how long an abandoned id stays reserved.
	OwnerTTL time.Duration
	// RetryInterval spaces publishes that reached no subscriber yet.
	RetryInterval time.Duration
}

// NewRedisTransport connects to the Redis server at addr.
func NewRedisTransport(addr string) (*RedisTransport, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return newRedisTransport(client), nil
}

func newRedisTransport(client rueidis.Client) *RedisTransport {
	return &RedisTransport{client: client, OwnerTTL: 10 * time.Minute, RetryInterval: 50 * time.Millisecond}
}

// Ping checks the connection to Redis.
func (t *RedisTransport) Ping(ctx context.Context) error {
	return t.client.Do(ctx, t.client.B().Ping().Build()).Error()
}

// Close shuts down the client.
func (t *RedisTransport) Close() {
	t.client.Close()
}

func ownerKey(id string) string     { return redisKeyPrefix + id + ":owner" }
func helloChannel(id string) string { return redisKeyPrefix + id + ":hello" }
func dataChannel(id string) string  { return redisKeyPrefix + id + ":data" }

func (t *RedisTransport) Listen(ctx context.Context, id string) (Listener, error) {
	cmd := t.client.B().Set().Key(ownerKey(id)).Value("1").Nx().ExSeconds(int64(t.OwnerTTL / time.Second)).Build()
	if err := t.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrIDTaken
		}
		return nil, fmt.Errorf("claim peer id: %w", err)
	}
	c := t.newConn(helloChannel(id), dataChannel(id), func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
		defer cancel()
		_ = t.client.Do(ctx, t.client.B().Del().Key(ownerKey(id)).Build()).Error()
	})
	return &redisListener{conn: c}, nil
}

func (t *RedisTransport) Dial(ctx context.Context, id string) (Conn, error) {
	n, err := t.client.Do(ctx, t.client.B().Exists().Key(ownerKey(id)).Build()).AsInt64()
	if err != nil {
		return nil, fmt.Errorf("look up peer id: %w", err)
	}
	if n == 0 {
		return nil, ErrPeerNotFound
	}
	c := t.newConn(dataChannel(id), helloChannel(id), nil)
	if err := c.publish(ctx, frameHello, nil); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

type redisListener struct {
	conn *redisConn
	once sync.Once
}

func (l *redisListener) Accept(ctx context.Context) (Conn, error) {
	accepted := false
	l.once.Do(func() { accepted = true })
	if !accepted {
		return nil, ErrClosed
	}
	for {
		kind, _, err := l.conn.next(ctx)
		if err != nil {
			return nil, err
		}
		if kind == frameHello {
			return l.conn, nil
		}
	}
}

func (l *redisListener) Close() error {
	return l.conn.Close()
}

type redisFrame struct {
	kind byte
	data []byte
}

type redisConn struct {
	t       *RedisTransport
	inbox   string
	outbox  string
	release func()

	frames chan redisFrame
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// newConn subscribes to inbox until Close.
func (t *RedisTransport) newConn(inbox, outbox string, release func()) *redisConn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &redisConn{
		t:       t,
		inbox:   inbox,
		outbox:  outbox,
		release: release,
		frames:  make(chan redisFrame, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.subscribe(ctx)
	return c
}

func (c *redisConn) subscribe(ctx context.Context) {
	defer close(c.frames)
	err := c.t.client.Receive(ctx, c.t.client.B().Subscribe().Channel(c.inbox).Build(), func(msg rueidis.PubSubMessage) {
		if msg.Message == "" {
			return
		}
		f := redisFrame{kind: msg.Message[0], data: []byte(msg.Message[1:])}
		select {
		case c.frames <- f:
		case <-ctx.Done():
		}
	})
	if err != nil && ctx.Err() == nil {
		telemetry.Warn("peer.redis.subscription_ended", map[string]any{"channel": c.inbox, "error": err})
	}
}

func (c *redisConn) next(ctx context.Context) (byte, []byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok || f.kind == frameClose {
			return 0, nil, ErrClosed
		}
		return f.kind, f.data, nil
	case <-c.done:
		return 0, nil, ErrClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// publish retries until at least one subscriber received the frame.
func (c *redisConn) publish(ctx context.Context, kind byte, data []byte) error {
	msg := string(append([]byte{kind}, data...))
	for {
		n, err := c.t.client.Do(ctx, c.t.client.B().Publish().Channel(c.outbox).Message(msg).Build()).AsInt64()
		if err != nil {
			return fmt.Errorf("publish to %s: %w", c.outbox, err)
		}
		if n > 0 {
			return nil
		}
		select {
		case <-time.After(c.t.RetryInterval):
		case <-c.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *redisConn) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.publish(ctx, frameData, data)
}

func (c *redisConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		kind, data, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		if kind == frameData {
			return data, nil
		}
	}
}

// Close tells the peer, ends the subscription and releases the id.
func (c *redisConn) Close() error {
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
		msg := string([]byte{frameClose})
		_ = c.t.client.Do(ctx, c.t.client.B().Publish().Channel(c.outbox).Message(msg).Build()).Error()
		cancel()

		close(c.done)
		c.cancel()
		if c.release != nil {
			c.release()
		}
	})
	return nil
}
