package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"resumate/internal/shared/storage/object"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "snapshots/a.json", want: "snapshots/a.json"},
		{name: "simple prefix", prefix: "root", key: "snapshots/a.json", want: "root/snapshots/a.json"},
		{name: "prefix trailing slash", prefix: "root/", key: "snapshots/a.json", want: "root/snapshots/a.json"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/snapshots/a.json", want: "root/snapshots/a.json"},
		{name: "nested prefix", prefix: "root/sub", key: "snapshots/a.json", want: "root/sub/snapshots/a.json"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

type fakeAPI struct {
	objects map[string][]byte
	put     *s3.PutObjectInput
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.put = in
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &fakeAPI{objects: map[string][]byte{}}
	store := newWithClient(fake, "bucket", "/resumate/")

	n, err := store.Put(ctx, "snapshots/a.json", "application/json", strings.NewReader(`{"a":1}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 bytes, got %d", n)
	}
	if aws.ToString(fake.put.Key) != "resumate/snapshots/a.json" || fake.put.ServerSideEncryption != s3types.ServerSideEncryptionAes256 {
		t.Fatalf("unexpected put input key=%s sse=%s", aws.ToString(fake.put.Key), fake.put.ServerSideEncryption)
	}
	if _, err := store.Put(ctx, "snapshots/b.json", "application/json", strings.NewReader(`{}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, err := store.Open(ctx, "snapshots/a.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != `{"a":1}` {
		t.Fatalf("unexpected data %s", data)
	}

	keys, err := store.List(ctx, "snapshots")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"snapshots/a.json", "snapshots/b.json"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("List = %v, want %v", keys, want)
	}

	if _, err := store.Put(ctx, "../escape", "", strings.NewReader("")); !errors.Is(err, object.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := store.Open(ctx, "snapshots/missing.json"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
