package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/genstudio/internal/catalog"
	"github.com/georgeshao/genstudio/internal/config"
	"github.com/georgeshao/genstudio/internal/extract"
	"github.com/georgeshao/genstudio/internal/provider"
	"github.com/georgeshao/genstudio/pkg/types"
)

type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// scriptedQuerier answers status queries from a fixed script; the last
// entry repeats once the script is exhausted.
type scriptedQuerier struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	paths   []string
}

func (q *scriptedQuerier) GetJSON(ctx context.Context, cred config.Credential, path string) (extract.Node, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.paths = append(q.paths, path)
	i := len(q.paths) - 1
	if i < len(q.errs) && q.errs[i] != nil {
		return extract.Node{}, q.errs[i]
	}
	if i >= len(q.replies) {
		i = len(q.replies) - 1
	}
	if q.replies[i] == "panic" {
		panic("decoder exploded")
	}
	return extract.Parse([]byte(q.replies[i]))
}

type harness struct {
	sup     *Supervisor
	tickers chan *manualTicker
	updates chan Update
	cell    *config.Cell
	now     time.Time
}

func newHarness(t *testing.T, q Querier) *harness {
	t.Helper()
	return newHarnessAt(t, q, "http://backend")
}

func newHarnessAt(t *testing.T, q Querier, baseURL string) *harness {
	t.Helper()

	h := &harness{
		tickers: make(chan *manualTicker, 4),
		updates: make(chan Update, 8),
		cell:    config.NewCell(baseURL, "sk-test"),
		now:     time.Unix(1700000000, 0),
	}
	h.sup = New(q, h.cell, func(u Update) { h.updates <- u }, Options{
		Now: func() time.Time { return h.now },
		NewTicker: func(time.Duration) Ticker {
			mt := &manualTicker{ch: make(chan time.Time)}
			h.tickers <- mt
			return mt
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(h.sup.Close)
	return h
}

func (h *harness) ticker(t *testing.T) *manualTicker {
	t.Helper()
	select {
	case mt := <-h.tickers:
		return mt
	case <-time.After(time.Second):
		t.Fatal("ticker was never created")
		return nil
	}
}

func (h *harness) update(t *testing.T) Update {
	t.Helper()
	select {
	case u := <-h.updates:
		return u
	case <-time.After(time.Second):
		t.Fatal("no update received")
		return Update{}
	}
}

func (h *harness) noUpdate(t *testing.T) {
	t.Helper()
	select {
	case u := <-h.updates:
		t.Fatalf("unexpected update %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func videoJob(taskID string, started time.Time) Job {
	return Job{
		TaskID:    taskID,
		RecordID:  "rec-" + taskID,
		ModelID:   "veo_3_1-fast",
		Family:    catalog.VideoQueryFamily,
		StartedAt: started,
	}
}

func TestVideoJobProcessingThenCompleted(t *testing.T) {
	q := &scriptedQuerier{replies: []string{
		`{"status": "processing"}`,
		`{"status": "completed", "video_url": "http://v/1.mp4"}`,
	}}
	h := newHarness(t, q)

	require.True(t, h.sup.Start(videoJob("j1", h.now)))
	mt := h.ticker(t)

	mt.ch <- h.now
	u := h.update(t)
	assert.Equal(t, types.StatusProcessing, u.Status)

	h.now = h.now.Add(12 * time.Second)
	mt.ch <- h.now
	u = h.update(t)
	assert.Equal(t, types.StatusCompleted, u.Status)
	assert.Equal(t, "http://v/1.mp4", u.MediaURL)
	assert.Regexp(t, `^\d+s$`, u.Label)
	assert.Equal(t, "12s", u.Label)
	assert.Equal(t, "rec-j1", u.Job.RecordID)

	assert.Eventually(t, func() bool { return !h.sup.Active("j1") && mt.isStopped() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/v1/video/query?id=j1", "/v1/video/query?id=j1"}, q.paths)
}

func TestProcessingReportedOnce(t *testing.T) {
	q := &scriptedQuerier{replies: []string{`{"status": "in_progress"}`}}
	h := newHarness(t, q)

	require.True(t, h.sup.Start(videoJob("j2", h.now)))
	mt := h.ticker(t)

	mt.ch <- h.now
	assert.Equal(t, types.StatusProcessing, h.update(t).Status)
	mt.ch <- h.now
	mt.ch <- h.now
	h.noUpdate(t)
	assert.True(t, h.sup.Active("j2"))
}

func TestRemoteFailureCarriesMessage(t *testing.T) {
	q := &scriptedQuerier{replies: []string{`{"status": "FAILED", "fail_reason": "content policy"}`}}
	h := newHarness(t, q)

	require.True(t, h.sup.Start(videoJob("j3", h.now)))
	mt := h.ticker(t)

	mt.ch <- h.now
	u := h.update(t)
	assert.Equal(t, types.StatusFailed, u.Status)
	assert.Equal(t, "failed", u.Label)
	assert.Equal(t, "content policy", u.Message)
	assert.Eventually(t, func() bool { return h.sup.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestFailureWithErrorMemberIsTerminal(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"j9","status":"failed","error":{"code":"moderation","message":"content policy"}}`))
	}))
	defer backend.Close()

	client := provider.NewClient(provider.Config{Timeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := newHarnessAt(t, client, backend.URL)

	require.True(t, h.sup.Start(videoJob("j9", h.now)))
	mt := h.ticker(t)

	mt.ch <- h.now
	u := h.update(t)
	assert.Equal(t, types.StatusFailed, u.Status)
	assert.Equal(t, "content policy", u.Message)
	assert.Eventually(t, func() bool { return !h.sup.Active("j9") }, time.Second, 5*time.Millisecond)
}

func TestErrorReplyWithoutStatusIsTransient(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"completed","video_url":"http://v/9.mp4"}`))
	}))
	defer backend.Close()

	client := provider.NewClient(provider.Config{Timeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := newHarnessAt(t, client, backend.URL)

	require.True(t, h.sup.Start(videoJob("j10", h.now)))
	mt := h.ticker(t)

	mt.ch <- h.now
	h.noUpdate(t)
	assert.True(t, h.sup.Active("j10"))

	mt.ch <- h.now
	u := h.update(t)
	assert.Equal(t, types.StatusCompleted, u.Status)
	assert.Equal(t, "http://v/9.mp4", u.MediaURL)
}

func TestTransientErrorsAndPanicsAreSwallowed(t *testing.T) {
	q := &scriptedQuerier{
		replies: []string{`{}`, `panic`, `not json`, `{"status": "done", "url": "http://v/2.mp4"}`},
		errs:    []error{errors.New("connection reset")},
	}
	h := newHarness(t, q)

	require.True(t, h.sup.Start(videoJob("j4", h.now)))
	mt := h.ticker(t)

	for range 3 {
		mt.ch <- h.now
	}
	h.noUpdate(t)
	assert.True(t, h.sup.Active("j4"))

	mt.ch <- h.now
	u := h.update(t)
	assert.Equal(t, types.StatusCompleted, u.Status)
	assert.Equal(t, "http://v/2.mp4", u.MediaURL)
}

func TestMissingCredentialIsSoftStop(t *testing.T) {
	q := &scriptedQuerier{replies: []string{`{"status": "completed", "url": "http://v/3.mp4"}`}}
	h := newHarness(t, q)
	h.cell = config.NewCell("http://backend", "")
	h.sup.creds = h.cell

	require.True(t, h.sup.Start(videoJob("j5", h.now)))
	mt := h.ticker(t)

	mt.ch <- h.now
	h.noUpdate(t)
	assert.Eventually(t, func() bool { return !h.sup.Active("j5") }, time.Second, 5*time.Millisecond)
	assert.Empty(t, q.paths)
}

func TestOmniImageSuccessWithoutURLFails(t *testing.T) {
	q := &scriptedQuerier{replies: []string{`{"data": {"task_status": "succeed", "task_result": {"images": []}}}`}}
	h := newHarness(t, q)

	job := Job{TaskID: "k1", RecordID: "rec-k1", ModelID: "kling-image-o1", Family: catalog.OmniImageFamily, StartedAt: h.now}
	require.True(t, h.sup.Start(job))
	mt := h.ticker(t)

	mt.ch <- h.now
	u := h.update(t)
	assert.Equal(t, types.StatusFailed, u.Status)
	assert.Equal(t, "no image", u.Label)
	assert.Equal(t, []string{"/kling/v1/images/omni-image/k1"}, q.paths)
}

func TestVideoSuccessWithoutURLKeepsPolling(t *testing.T) {
	q := &scriptedQuerier{replies: []string{
		`{"status": "completed"}`,
		`{"status": "completed", "data": {"url": "http://v/4.mp4"}}`,
	}}
	h := newHarness(t, q)

	job := videoJob("s1", h.now)
	job.Family = catalog.SoraFamily
	require.True(t, h.sup.Start(job))
	mt := h.ticker(t)

	mt.ch <- h.now
	h.noUpdate(t)

	mt.ch <- h.now
	u := h.update(t)
	assert.Equal(t, types.StatusCompleted, u.Status)
	assert.Equal(t, "http://v/4.mp4", u.MediaURL)
}

func TestStartIsIdempotentPerTask(t *testing.T) {
	h := newHarness(t, &scriptedQuerier{replies: []string{`{}`}})

	assert.True(t, h.sup.Start(videoJob("dup", h.now)))
	assert.False(t, h.sup.Start(videoJob("dup", h.now)))
	assert.Equal(t, 1, h.sup.Len())

	assert.False(t, h.sup.Start(Job{TaskID: "nofamily"}))
	assert.False(t, h.sup.Start(Job{Family: catalog.SoraFamily}))
}

func TestStopDiscardsLaterResults(t *testing.T) {
	q := &scriptedQuerier{replies: []string{`{"status": "completed", "url": "http://v/5.mp4"}`}}
	h := newHarness(t, q)

	require.True(t, h.sup.Start(videoJob("gone", h.now)))
	mt := h.ticker(t)

	assert.True(t, h.sup.Stop("gone"))
	assert.False(t, h.sup.Stop("gone"))
	assert.Eventually(t, mt.isStopped, time.Second, 5*time.Millisecond)
	h.noUpdate(t)
}

func TestElapsedLabel(t *testing.T) {
	assert.Equal(t, "0s", ElapsedLabel(-time.Second))
	assert.Equal(t, "2s", ElapsedLabel(1500*time.Millisecond))
	assert.Equal(t, "90s", ElapsedLabel(90*time.Second))
}
