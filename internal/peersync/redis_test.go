package peersync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
)

func isCmd(name, arg string) gomock.Matcher {
	return mock.MatchFn(func(cmd []string) bool {
		return len(cmd) > 1 && cmd[0] == name && cmd[1] == arg
	})
}

func isPublish(channel string, kind byte) gomock.Matcher {
	return mock.MatchFn(func(cmd []string) bool {
		return len(cmd) == 3 && cmd[0] == "PUBLISH" && cmd[1] == channel && strings.HasPrefix(cmd[2], string([]byte{kind}))
	})
}

func TestRedisListenTaken(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), isCmd("SET", ownerKey("moon-moon-01"))).
		Return(mock.Result(mock.RedisNil()))

	if _, err := newRedisTransport(c).Listen(context.Background(), "moon-moon-01"); !errors.Is(err, ErrIDTaken) {
		t.Fatalf("expected ErrIDTaken, got %v", err)
	}
}

func TestRedisDialUnknown(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), isCmd("EXISTS", ownerKey("moon-moon-01"))).
		Return(mock.Result(mock.RedisInt64(0)))

	if _, err := newRedisTransport(c).Dial(context.Background(), "moon-moon-01"); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestRedisListenerAcceptAndSend(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	id := "tree-bird-05"

	c.EXPECT().
		Do(gomock.Any(), isCmd("SET", ownerKey(id))).
		Return(mock.Result(mock.RedisString("OK")))
	c.EXPECT().
		Receive(gomock.Any(), isCmd("SUBSCRIBE", helloChannel(id)), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ rueidis.Completed, fn func(rueidis.PubSubMessage)) error {
			fn(rueidis.PubSubMessage{Channel: helloChannel(id), Message: "h"})
			<-ctx.Done()
			return ctx.Err()
		})
	// The first publish reaches nobody and is retried.
	first := c.EXPECT().
		Do(gomock.Any(), isPublish(dataChannel(id), frameData)).
		Return(mock.Result(mock.RedisInt64(0)))
	c.EXPECT().
		Do(gomock.Any(), isPublish(dataChannel(id), frameData)).
		Return(mock.Result(mock.RedisInt64(1))).
		After(first)
	c.EXPECT().
		Do(gomock.Any(), isPublish(dataChannel(id), frameClose)).
		Return(mock.Result(mock.RedisInt64(1)))
	c.EXPECT().
		Do(gomock.Any(), isCmd("DEL", ownerKey(id))).
		Return(mock.Result(mock.RedisInt64(1)))

	transport := newRedisTransport(c)
	transport.RetryInterval = time.Millisecond

	l, err := transport.Listen(ctx, id)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	conn, err := l.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := conn.Send(ctx, []byte(`{"x":1}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := conn.Send(ctx, []byte("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRedisDialerReceives(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	id := "fish-star-90"

	c.EXPECT().
		Do(gomock.Any(), isCmd("EXISTS", ownerKey(id))).
		Return(mock.Result(mock.RedisInt64(1)))
	c.EXPECT().
		Receive(gomock.Any(), isCmd("SUBSCRIBE", dataChannel(id)), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ rueidis.Completed, fn func(rueidis.PubSubMessage)) error {
			fn(rueidis.PubSubMessage{Channel: dataChannel(id), Message: `d{"y":2}`})
			fn(rueidis.PubSubMessage{Channel: dataChannel(id), Message: "c"})
			<-ctx.Done()
			return ctx.Err()
		})
	c.EXPECT().
		Do(gomock.Any(), isPublish(helloChannel(id), frameHello)).
		Return(mock.Result(mock.RedisInt64(1)))
	c.EXPECT().
		Do(gomock.Any(), isPublish(helloChannel(id), frameClose)).
		Return(mock.Result(mock.RedisInt64(1)))

	conn, err := newRedisTransport(c).Dial(ctx, id)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	got, err := conn.Receive(ctx)
	if err != nil || string(got) != `{"y":2}` {
		t.Fatalf("Receive = %q, %v", got, err)
	}
	if _, err := conn.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close frame, got %v", err)
	}
}

func TestRedisPing(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	if err := newRedisTransport(c).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
