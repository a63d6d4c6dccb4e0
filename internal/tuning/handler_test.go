package tuning

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"resumate/internal/llm"
)

func newTuneRouter(t *Tuner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(t).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestHandlerStreamsEvents(t *testing.T) {
	body := sseFrame("## Skills\n") + sseFrame("- Go\n") + "data: [DONE]\n"
	tuner := NewTuner(streamingClient([]byte(body), 8), newState(t), -1)
	router := newTuneRouter(tuner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tune", strings.NewReader(`{"instructions":"short"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	out := resp.Body.String()
	if !strings.Contains(out, "event:partial") || !strings.Contains(out, "event:done") {
		t.Fatalf("missing events in %q", out)
	}
	if !strings.Contains(resp.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}
}

func TestHandlerMapsUpstreamFailure(t *testing.T) {
	client := &fakeClient{open: func(_ context.Context, _ llm.ChatRequest) (*llm.Response, error) {
		return nil, llm.ErrUpstreamStatus
	}}
	router := newTuneRouter(NewTuner(client, newState(t), -1))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tune", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `"code":"upstream_error"`) {
		t.Fatalf("unexpected body %s", data)
	}
}

func TestHandlerStatusAndCancel(t *testing.T) {
	router := newTuneRouter(NewTuner(streamingClient(nil, 1), newState(t), -1))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/tune", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"phase":"idle"`) {
		t.Fatalf("unexpected status response %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/api/v1/tune", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"canceled":false`) {
		t.Fatalf("unexpected cancel response %d %s", resp.Code, resp.Body.String())
	}
}
