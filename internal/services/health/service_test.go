package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatus(t *testing.T) {
	svc := NewService()
	if r := svc.Status(context.Background()); !r.OK || r.Checks != nil {
		t.Fatalf("expected ok without checks, got %+v", r)
	}

	svc.Register("database", func(context.Context) error { return nil })
	svc.Register("redis", func(context.Context) error { return errors.New("connection refused") })
	r := svc.Status(context.Background())
	if r.OK {
		t.Fatal("expected failing report")
	}
	if r.Checks["database"] != "ok" || r.Checks["redis"] != "connection refused" {
		t.Fatalf("unexpected checks %+v", r.Checks)
	}

	svc.Register("redis", func(ctx context.Context) error { return ctx.Err() })
	if r := svc.Status(context.Background()); !r.OK {
		t.Fatalf("replaced check should pass, got %+v", r)
	}
}
