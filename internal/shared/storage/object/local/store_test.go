package local

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"resumate/internal/shared/storage/object"
)

func TestPutOpenList(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir())

	for _, key := range []string{"snapshots/b.json", "snapshots/a.json", "other/c.txt"} {
		n, err := store.Put(ctx, key, "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
		if n != 2 {
			t.Fatalf("expected 2 bytes written, got %d", n)
		}
	}

	rc, err := store.Open(ctx, "snapshots/a.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "{}" {
		t.Fatalf("unexpected content %q", data)
	}

	keys, err := store.List(ctx, "snapshots")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"snapshots/a.json", "snapshots/b.json"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("List = %v, want %v", keys, want)
	}

	keys, err = store.List(ctx, "missing")
	if err != nil || len(keys) != 0 {
		t.Fatalf("expected empty list for missing prefix, got %v %v", keys, err)
	}

	if _, err := store.Open(ctx, "snapshots/nope.json"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store := New(t.TempDir())
	for _, key := range []string{"../x", "/etc/passwd", "", "a/../../b"} {
		if _, err := store.Put(context.Background(), key, "", strings.NewReader("x")); !errors.Is(err, object.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}
