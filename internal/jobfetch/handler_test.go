package jobfetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"resumate/internal/appstate"
	"resumate/internal/shared/storage/kv"
)

func TestHandlerFetchStoresAndScores(t *testing.T) {
	ctx := context.Background()
	srv := newPostingServer(t)
	st, err := appstate.New(kv.NewMemoryStore(appstate.Schema), appstate.WithDebounce(0))
	if err != nil {
		t.Fatalf("appstate.New: %v", err)
	}
	if err := st.Update(ctx, func(v *appstate.Values) {
		v.Keywords = []string{"kubernetes", "docker", "go"}
		v.ResumeMd = "Shipped Go services on Docker."
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(NewFetcher(0), st).RegisterRoutes(r.Group("/api/v1"))

	body := `{"url":"` + srv.URL + `/posting"}`
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/fetch", strings.NewReader(body)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Score struct {
			Overlap []string `json:"overlap"`
			Score   float64  `json:"score"`
		} `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	v := st.Snapshot()
	if v.JobURL != srv.URL+"/posting" || !strings.Contains(v.JobDescription, "Backend Engineer") {
		t.Fatalf("job fields not stored: %q %q", v.JobURL, v.JobDescription)
	}
	if len(v.JobKeywords) != 3 || v.CombinedScore != out.Score.Score {
		t.Fatalf("expected rescore to publish, got %v %.2f", v.JobKeywords, v.CombinedScore)
	}
	if len(out.Score.Overlap) != 2 {
		t.Fatalf("expected docker and go to overlap, got %v", out.Score.Overlap)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/fetch", strings.NewReader(`{"url":"nope"}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/fetch", strings.NewReader(`{"url":"`+srv.URL+`/gone"}`)))
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	if st.Snapshot().JobURL != srv.URL+"/posting" {
		t.Fatalf("failed fetch must not touch state")
	}
}
