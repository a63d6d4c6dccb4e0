package peersync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"resumate/internal/appstate"
	"resumate/internal/projects"
	"resumate/internal/shared/storage/kv"
	"resumate/internal/snapshot"
)

type device struct {
	state *appstate.State
	snap  *snapshot.Service
}

func newDevice(t *testing.T) *device {
	t.Helper()
	store := kv.NewMemoryStore(projects.Schema, appstate.Schema)
	st, err := appstate.New(store, appstate.WithDebounce(0))
	if err != nil {
		t.Fatalf("appstate.New: %v", err)
	}
	repo, err := projects.NewKVRepo(store)
	if err != nil {
		t.Fatalf("NewKVRepo: %v", err)
	}
	return &device{
		state: st,
		snap:  &snapshot.Service{Store: store, State: st, Projects: projects.NewService(repo, st)},
	}
}

func (d *device) saveProject(t *testing.T, name string) {
	t.Helper()
	ctx := context.Background()
	if err := d.state.Update(ctx, func(v *appstate.Values) { v.JobName = name }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := d.snap.Projects.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

type recorder struct {
	mu   sync.Mutex
	seen []Status
}

func (r *recorder) record(s Status) {
	r.mu.Lock()
	r.seen = append(r.seen, s)
	r.mu.Unlock()
}

func (r *recorder) states() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.seen))
	for _, s := range r.seen {
		out = append(out, s.Status)
	}
	return out
}

func waitFor(t *testing.T, p *PeerSync, want string) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := p.Status()
		if st.Status == want {
			return st
		}
		if st.Status == StatusError && want != StatusError {
			t.Fatalf("transfer failed: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, last status %+v", want, p.Status())
	return Status{}
}

func equalStates(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

type fakeSnapshots struct {
	export    []byte
	exportErr error
	imported  chan []byte
}

func (f *fakeSnapshots) ExportJSON(context.Context, bool) ([]byte, error) {
	return f.export, f.exportErr
}

func (f *fakeSnapshots) Import(_ context.Context, data []byte) (snapshot.ImportReport, error) {
	if f.imported != nil {
		f.imported <- data
	}
	return snapshot.ImportReport{}, nil
}

func TestCodeShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := NewCode()
		if got, ok := NormalizeCode(code); !ok || got != code {
			t.Fatalf("generated code %q does not validate", code)
		}
	}

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: " Moon-Fish-07 ", want: "moon-fish-07", ok: true},
		{in: "moon-fish-7", want: "moon-fish-7"},
		{in: "moon-07", want: "moon-07"},
		{in: "moon-fish-077", want: "moon-fish-077"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		got, ok := NormalizeCode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("NormalizeCode(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestMemoryHub(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	l, err := hub.Listen(ctx, "cat-dog-01")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if _, err := hub.Listen(ctx, "cat-dog-01"); !errors.Is(err, ErrIDTaken) {
		t.Fatalf("expected ErrIDTaken, got %v", err)
	}
	if _, err := hub.Dial(ctx, "cat-dog-02"); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}

	client, err := hub.Dial(ctx, "cat-dog-01")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	server, err := l.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if err := client.Send(ctx, []byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := server.Receive(ctx)
	if err != nil || string(got) != "ping" {
		t.Fatalf("Receive = %q, %v", got, err)
	}

	if err := server.Send(ctx, []byte("last")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	server.Close()
	got, err = client.Receive(ctx)
	if err != nil || string(got) != "last" {
		t.Fatalf("expected buffered message before close, got %q, %v", got, err)
	}
	if _, err := client.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	l.Close()
	l.Close()
	if _, err := hub.Dial(ctx, "cat-dog-01"); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected id released, got %v", err)
	}
}

func TestTransferOverMemoryHub(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	src, dst := newDevice(t), newDevice(t)
	src.saveProject(t, "Acme")

	var sendLog, recvLog recorder
	sender := New(hub, src.snap, sendLog.record)
	defer sender.Close()
	code, err := sender.StartSender(ctx)
	if err != nil {
		t.Fatalf("StartSender: %v", err)
	}
	if st := sender.Status(); st.Status != StatusWaiting || st.Code != code {
		t.Fatalf("unexpected sender status %+v", st)
	}

	receiver := New(hub, dst.snap, recvLog.record)
	defer receiver.Close()
	if err := receiver.ConnectToSender(ctx, code); err != nil {
		t.Fatalf("ConnectToSender: %v", err)
	}
	waitFor(t, receiver, StatusComplete)
	waitFor(t, sender, StatusComplete)

	if got := dst.state.Snapshot().JobName; got != "Acme" {
		t.Fatalf("expected imported project state, got %q", got)
	}
	refs := dst.state.Snapshot().AvailableProjects
	if len(refs) != 1 || refs[0].Name != "Acme" {
		t.Fatalf("expected project index rebuilt, got %+v", refs)
	}

	wantSend := []string{StatusWaiting, StatusWaiting, StatusConnected, StatusSending, StatusSending, StatusComplete}
	if got := sendLog.states(); !equalStates(got, wantSend) {
		t.Fatalf("sender statuses = %v, want %v", got, wantSend)
	}
	wantRecv := []string{StatusWaiting, StatusConnected, StatusReceiving, StatusComplete}
	if got := recvLog.states(); !equalStates(got, wantRecv) {
		t.Fatalf("receiver statuses = %v, want %v", got, wantRecv)
	}
}

func TestConnectFailures(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	p := New(hub, &fakeSnapshots{}, nil)
	if err := p.ConnectToSender(ctx, "not a code"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	if err := p.ConnectToSender(ctx, "sun-rock-42"); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
	st := p.Status()
	if st.Status != StatusError || st.Message != "Failed to connect" || st.Error == "" {
		t.Fatalf("unexpected status %+v", st)
	}
	if err := p.ConnectToSender(ctx, "sun-rock-42"); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestImportFailureIsReported(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	sender := New(hub, &fakeSnapshots{export: []byte(`{"other":{}}`)}, nil)
	defer sender.Close()
	code, err := sender.StartSender(ctx)
	if err != nil {
		t.Fatalf("StartSender: %v", err)
	}

	receiver := New(hub, newDevice(t).snap, nil)
	defer receiver.Close()
	if err := receiver.ConnectToSender(ctx, code); err != nil {
		t.Fatalf("ConnectToSender: %v", err)
	}
	st := waitFor(t, receiver, StatusError)
	if st.Message != "Failed to import data" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSenderExportFailure(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	sender := New(hub, &fakeSnapshots{exportErr: errors.New("disk gone")}, nil)
	defer sender.Close()
	code, err := sender.StartSender(ctx)
	if err != nil {
		t.Fatalf("StartSender: %v", err)
	}
	conn, err := hub.Dial(ctx, code)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	st := waitFor(t, sender, StatusError)
	if st.Message != "Failed to send data" || st.Error != "disk gone" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestCloseReleasesCode(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	var log recorder
	sender := New(hub, &fakeSnapshots{}, log.record)
	code, err := sender.StartSender(ctx)
	if err != nil {
		t.Fatalf("StartSender: %v", err)
	}
	before := len(log.states())

	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := hub.Dial(ctx, code); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected code released, got %v", err)
	}
	if got := len(log.states()); got != before {
		t.Fatalf("no status may be published after Close, got %v", log.states())
	}
	if _, err := sender.StartSender(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	if err := New(hub, &fakeSnapshots{}, nil).Close(); err != nil {
		t.Fatalf("Close on idle instance: %v", err)
	}
}

func TestSenderTimeout(t *testing.T) {
	hub := NewMemoryHub()
	sender := New(hub, &fakeSnapshots{}, nil)
	sender.SetTimeout(20 * time.Millisecond)
	defer sender.Close()

	if _, err := sender.StartSender(context.Background()); err != nil {
		t.Fatalf("StartSender: %v", err)
	}
	st := waitFor(t, sender, StatusError)
	if st.Message != "Connection failed" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestManagerReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()
	m := NewManager(hub, &fakeSnapshots{})

	if st := m.Status(); st.Status != StatusIdle {
		t.Fatalf("expected idle, got %+v", st)
	}
	first, err := m.StartSender(ctx)
	if err != nil {
		t.Fatalf("StartSender: %v", err)
	}
	second, err := m.StartSender(ctx)
	if err != nil {
		t.Fatalf("StartSender: %v", err)
	}
	if first.Code != second.Code {
		if _, err := hub.Dial(ctx, first.Code); !errors.Is(err, ErrPeerNotFound) {
			t.Fatalf("expected previous sender torn down, got %v", err)
		}
	}
	if got := m.Status(); got.Code != second.Code {
		t.Fatalf("status should track the latest sender, got %+v", got)
	}

	if _, err := m.ConnectToSender(ctx, "bad"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if got := m.Status(); got.Code != second.Code {
		t.Fatalf("an invalid code must not tear down the sender, got %+v", got)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if st := m.Status(); st.Status != StatusIdle {
		t.Fatalf("expected idle after close, got %+v", st)
	}
}
