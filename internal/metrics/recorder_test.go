package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/nbhugo/internal/watch"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestRecorder_CountsActions(t *testing.T) {
	r := NewRecorder(nil)
	r.Observe(watch.Report{Action: watch.ActionRender, Duration: 10 * time.Millisecond})
	r.Observe(watch.Report{Action: watch.ActionRender, Duration: 20 * time.Millisecond})
	r.Observe(watch.Report{Action: watch.ActionStamp, Err: errors.New("boom")})

	body := scrape(t, r)
	require.Contains(t, body, `nbhugo_watch_actions_total{action="render",result="success"} 2`)
	require.Contains(t, body, `nbhugo_watch_actions_total{action="stamp",result="failed"} 1`)
	require.Contains(t, body, `nbhugo_watch_action_duration_seconds_count{action="render"} 2`)
}

func TestRecorder_TrackStates(t *testing.T) {
	r := NewRecorder(nil)
	r.TrackStates(watch.NewCoordinator(nil))

	body := scrape(t, r)
	require.Contains(t, body, `nbhugo_notebooks{state="rendered"} 0`)
	require.Contains(t, body, `nbhugo_notebooks{state="metadata-pending"} 0`)
}
