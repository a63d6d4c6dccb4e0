// Package tuning rewrites the resume through a streaming LLM call. At most one
// session runs at a time.
package tuning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"resumate/internal/appstate"
	"resumate/internal/llm"
	"resumate/internal/scoring"
	"resumate/internal/shared/metrics"
	"resumate/internal/shared/telemetry"
)

// DefaultFlushInterval is the minimum gap between two published partial results.
const DefaultFlushInterval = 100 * time.Millisecond

const (
	readChunkSize   = 4 << 10
	completionLimit = 4 << 20
)

var (
	ErrBusy           = errors.New("a tuning session is already running")
	ErrUpstreamStatus = llm.ErrUpstreamStatus
	ErrEmptyOutput    = errors.New("model returned no usable content")
	ErrCanceled       = errors.New("tuning canceled")
)

// Phase is the tuner's position in a session.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRequesting
	PhaseStreaming
	PhaseFinalizing
)

func (p Phase) String() string {
	switch p {
	case PhaseRequesting:
		return "requesting"
	case PhaseStreaming:
		return "streaming"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// Request carries per-session input beyond what the state holds.
type Request struct {
	Instructions string `json:"instructions"`
	// NoStream asks for one whole completion when the client supports it.
	NoStream bool `json:"noStream"`
}

// Result describes a finished session.
type Result struct {
	Content string           `json:"content"`
	Deltas  int              `json:"deltas"`
	Score   scoring.Snapshot `json:"score"`
}

// Tuner owns the single tuning slot.
type Tuner struct {
	LLM           llm.Client
	State         *appstate.State
	FlushInterval time.Duration

	running atomic.Bool
	phase   atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewTuner constructs a Tuner.
func NewTuner(client llm.Client, st *appstate.State, flush time.Duration) *Tuner {
	return &Tuner{LLM: client, State: st, FlushInterval: flush}
}

// Phase reports the current phase.
func (t *Tuner) Phase() Phase {
	return Phase(t.phase.Load())
}

// Running reports whether a session is in flight.
func (t *Tuner) Running() bool {
	return t.running.Load()
}

// Cancel aborts the running session. It reports whether one was running.
func (t *Tuner) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return false
	}
	t.cancel()
	return true
}

// Tune runs one session. onUpdate receives throttled partial content and the
// final content; it may be nil. The resume in state is replaced only when
// the session finishes with non-empty sanitized output.
func (t *Tuner) Tune(ctx context.Context, req Request, onUpdate func(string)) (res Result, err error) {
	if !t.running.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	t.setCancel(cancel)

	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("tune.panic", map[string]any{"panic": fmt.Sprint(r)})
			err = fmt.Errorf("tuning panicked: %v", r)
		}
		if err != nil && ctx.Err() != nil && !errors.Is(err, ErrCanceled) {
			err = fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		cancel()
		t.setCancel(nil)
		t.phase.Store(int32(PhaseIdle))
		t.running.Store(false)

		outcome := outcomeOf(err)
		metrics.TuneSessionsTotal.WithLabelValues(outcome).Inc()
		metrics.TuneSessionDuration.Observe(time.Since(start).Seconds())
		fields := map[string]any{
			"outcome":     outcome,
			"deltas":      res.Deltas,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if err != nil {
			fields["error"] = err
			telemetry.Warn("tune.finished", fields)
		} else {
			telemetry.Info("tune.finished", fields)
		}
	}()

	if onUpdate == nil {
		onUpdate = func(string) {}
	}

	t.phase.Store(int32(PhaseRequesting))
	v := t.State.Snapshot()
	system, user, err := BuildPrompts(v, req.Instructions)
	if err != nil {
		return Result{}, fmt.Errorf("build prompts: %w", err)
	}
	chat := llm.ChatRequest{
		APIKey: v.OpenRouterKey,
		Model:  v.OpenRouterAIModel,
		System: system,
		User:   user,
	}
	var raw string
	if completer, ok := t.LLM.(llm.Completer); ok && req.NoStream {
		raw, err = completer.Complete(ctx, chat)
		if err != nil {
			return Result{}, fmt.Errorf("complete: %w", err)
		}
	} else {
		raw, res.Deltas, err = t.stream(ctx, chat, onUpdate)
		if err != nil {
			return res, err
		}
	}

	t.phase.Store(int32(PhaseFinalizing))
	final := Sanitize(raw)
	if final == "" {
		telemetry.Warn("tune.empty_output", map[string]any{"raw_bytes": len(raw)})
		return res, ErrEmptyOutput
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if err := t.State.Update(ctx, func(v *appstate.Values) { v.ResumeMd = final }); err != nil {
		return res, fmt.Errorf("store tuned resume: %w", err)
	}
	if err := t.State.Flush(ctx); err != nil {
		return res, fmt.Errorf("flush tuned resume: %w", err)
	}
	res.Content = final
	onUpdate(final)

	snap, err := scoring.Rescore(ctx, t.State)
	if err != nil {
		return res, fmt.Errorf("rescore: %w", err)
	}
	res.Score = snap
	return res, nil
}

// stream opens a streaming completion and drains it. A JSON answer from an
// endpoint that ignored the stream flag is read whole.
func (t *Tuner) stream(ctx context.Context, chat llm.ChatRequest, onUpdate func(string)) (string, int, error) {
	resp, err := t.LLM.OpenStream(ctx, chat)
	if err != nil {
		return "", 0, fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	t.phase.Store(int32(PhaseStreaming))
	if isJSON(resp.ContentType) {
		raw, err := readCompletion(resp.Body)
		return raw, 0, err
	}
	return t.consume(ctx, resp.Body, onUpdate)
}

// consume reads an SSE body until [DONE] or EOF and returns the accumulated
// deltas.
func (t *Tuner) consume(ctx context.Context, body io.Reader, onUpdate func(string)) (string, int, error) {
	throttle := &rate.Sometimes{Interval: t.flushInterval()}
	if throttle.Interval <= 0 {
		throttle = &rate.Sometimes{Every: 1}
	}

	var (
		acc      strings.Builder
		deltas   int
		splitter lineSplitter
	)
	handle := func(line string) bool {
		kind, delta := parseFrame(line)
		switch kind {
		case frameDone:
			return true
		case frameDelta:
			acc.WriteString(delta)
			deltas++
			metrics.TuneDeltasTotal.Inc()
			throttle.Do(func() { onUpdate(lightSanitize(acc.String())) })
		}
		return false
	}

	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", deltas, err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			for _, line := range splitter.Feed(buf[:n]) {
				if handle(line) {
					return acc.String(), deltas, nil
				}
			}
		}
		if errors.Is(rerr, io.EOF) {
			if line, ok := splitter.Flush(); ok {
				handle(line)
			}
			return acc.String(), deltas, nil
		}
		if rerr != nil {
			return "", deltas, fmt.Errorf("read stream: %w", rerr)
		}
	}
}

func (t *Tuner) flushInterval() time.Duration {
	if t.FlushInterval < 0 {
		return 0
	}
	if t.FlushInterval == 0 {
		return DefaultFlushInterval
	}
	return t.FlushInterval
}

func (t *Tuner) setCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func readCompletion(body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, completionLimit))
	if err != nil {
		return "", fmt.Errorf("read completion: %w", err)
	}
	content, err := parseCompletion(data)
	if err != nil {
		return "", fmt.Errorf("parse completion: %w", err)
	}
	return content, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrEmptyOutput):
		return "empty"
	case errors.Is(err, ErrUpstreamStatus):
		return "upstream_status"
	default:
		return "error"
	}
}
