package scoring

import (
	"context"
	"math"
	"reflect"
	"testing"

	"resumate/internal/appstate"
	"resumate/internal/shared/storage/kv"
)

func TestScore(t *testing.T) {
	dictionary := []string{"python", "docker", "sql", "kubernetes", "go"}

	tests := []struct {
		name       string
		job        string
		resume     string
		wantJob    []string
		wantResume []string
		wantOver   []string
		wantScore  float64
	}{
		{
			name:       "partial overlap",
			job:        "We need SQL, Python and Docker experience.",
			resume:     "Shipped python services in docker containers",
			wantJob:    []string{"docker", "python", "sql"},
			wantResume: []string{"docker", "python"},
			wantOver:   []string{"docker", "python"},
			wantScore:  200.0 / 3.0,
		},
		{
			name:       "overlap promoted ahead of sorted rest",
			job:        "kubernetes and sql",
			resume:     "sql and go",
			wantJob:    []string{"sql", "kubernetes"},
			wantResume: []string{"sql", "go"},
			wantOver:   []string{"sql"},
			wantScore:  50,
		},
		{
			name:       "no job keywords",
			job:        "we like friendly people",
			resume:     "python",
			wantJob:    []string{},
			wantResume: []string{"python"},
			wantOver:   []string{},
			wantScore:  0,
		},
		{
			name:       "empty inputs",
			wantJob:    []string{},
			wantResume: []string{},
			wantOver:   []string{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.job, tt.resume, dictionary)
			if !reflect.DeepEqual(got.JobKeywords, tt.wantJob) {
				t.Fatalf("job keywords = %v, want %v", got.JobKeywords, tt.wantJob)
			}
			if !reflect.DeepEqual(got.ResumeKeywords, tt.wantResume) {
				t.Fatalf("resume keywords = %v, want %v", got.ResumeKeywords, tt.wantResume)
			}
			if !reflect.DeepEqual(got.Overlap, tt.wantOver) {
				t.Fatalf("overlap = %v, want %v", got.Overlap, tt.wantOver)
			}
			if math.Abs(got.Score-tt.wantScore) > 1e-9 {
				t.Fatalf("score = %v, want %v", got.Score, tt.wantScore)
			}
		})
	}
}

func TestScoreClampsFullOverlap(t *testing.T) {
	dictionary := []string{"a1", "b2", "c3", "d4", "e5", "f6", "g7"}
	text := "a1 b2 c3 d4 e5 f6 g7"
	for n := 1; n <= len(dictionary); n++ {
		got := Score(text, text, dictionary[:n])
		if got.Score != 100 {
			t.Fatalf("with %d keywords expected exactly 100, got %v", n, got.Score)
		}
	}
}

func TestScoreOverlapIsSubsetOfBoth(t *testing.T) {
	dictionary := []string{"c++", "python", "machine learning", ".net", "go"}
	got := Score("C++ and .NET with machine learning", "python, c++ and machine learning.", dictionary)
	job := map[string]bool{}
	for _, k := range got.JobKeywords {
		job[k] = true
	}
	resume := map[string]bool{}
	for _, k := range got.ResumeKeywords {
		resume[k] = true
	}
	for _, k := range got.Overlap {
		if !job[k] || !resume[k] {
			t.Fatalf("overlap %q is not in both lists: %+v", k, got)
		}
	}
	if len(got.Overlap) != 2 {
		t.Fatalf("expected two overlapping keywords, got %v", got.Overlap)
	}
}

func TestPromoteIsStable(t *testing.T) {
	got := promote([]string{"a", "b", "c", "d", "e"}, []string{"D", "b"})
	want := []string{"b", "d", "a", "c", "e"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("promote = %v, want %v", got, want)
	}
}

func TestRescorePublishesToState(t *testing.T) {
	ctx := context.Background()
	st, err := appstate.New(kv.NewMemoryStore(appstate.Schema), appstate.WithDebounce(0))
	if err != nil {
		t.Fatalf("appstate.New: %v", err)
	}
	if err := st.Update(ctx, func(v *appstate.Values) {
		v.Keywords = []string{"python", "docker", "sql"}
		v.JobDescription = "python docker sql"
		v.ResumeMd = "# Me\n\npython and sql"
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	snap, err := Rescore(ctx, st)
	if err != nil {
		t.Fatalf("Rescore: %v", err)
	}
	v := st.Snapshot()
	if v.CombinedScore != snap.Score || math.Abs(v.CombinedScore-200.0/3.0) > 1e-9 {
		t.Fatalf("unexpected published score %v", v.CombinedScore)
	}
	if !reflect.DeepEqual(v.OverlappingKeywords, []string{"python", "sql"}) {
		t.Fatalf("unexpected overlap %v", v.OverlappingKeywords)
	}
	if !reflect.DeepEqual(v.JobKeywords, []string{"python", "sql", "docker"}) {
		t.Fatalf("unexpected job keywords %v", v.JobKeywords)
	}
}
