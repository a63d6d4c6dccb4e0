package scoring

import (
	"context"

	"resumate/internal/appstate"
	"resumate/internal/shared/metrics"
)

// Publish writes the four score fields into the application state.
func Publish(ctx context.Context, st *appstate.State, snap Snapshot) error {
	return st.Update(ctx, func(v *appstate.Values) {
		v.JobKeywords = snap.JobKeywords
		v.ResumeKeywords = snap.ResumeKeywords
		v.OverlappingKeywords = snap.Overlap
		v.CombinedScore = snap.Score
	})
}

// Rescore scores the current resume against the current job description
// using the state's keyword list and publishes the result.
func Rescore(ctx context.Context, st *appstate.State) (Snapshot, error) {
	v := st.Snapshot()
	snap := Score(v.JobDescription, v.ResumeMd, v.Keywords)

	metrics.ScoreComputationsTotal.Inc()
	metrics.ScoreValue.Observe(snap.Score)

	if err := Publish(ctx, st, snap); err != nil {
		return snap, err
	}
	return snap, nil
}
