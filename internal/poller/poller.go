// Package poller observes asynchronous generation jobs until the backend
// reports a terminal status. Each job gets its own ticker, keyed by the
// remote task id, and emits exactly one terminal Update before stopping.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/georgeshao/genstudio/internal/catalog"
	"github.com/georgeshao/genstudio/internal/config"
	"github.com/georgeshao/genstudio/internal/extract"
	"github.com/georgeshao/genstudio/internal/provider"
	"github.com/georgeshao/genstudio/internal/telemetry"
	"github.com/georgeshao/genstudio/pkg/types"
)

type Querier interface {
	GetJSON(ctx context.Context, cred config.Credential, path string) (extract.Node, error)
}

// Credentials is read on every tick so a newly saved key takes effect
// without restarting pollers.
type Credentials interface {
	Current() config.Credential
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type Job struct {
	TaskID    string
	RecordID  string
	ModelID   string
	Family    *catalog.Family
	StartedAt time.Time
}

// Update is a status change observed for a job. Only processing, completed
// and failed are ever reported.
type Update struct {
	Job      Job
	Status   types.Status
	MediaURL string
	// Label is the elapsed time on completion and the failure reason otherwise.
	Label   string
	Message string
}

// PollError is a transient failure of a single status query. It is logged
// and the job is polled again at the next tick.
type PollError struct {
	TaskID string
	Err    error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s: %v", e.TaskID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// RemoteFailure is the terminal failure reported by the backend for a job.
type RemoteFailure struct {
	TaskID  string
	Status  string
	Message string
}

func (e *RemoteFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("task %s reported %s", e.TaskID, e.Status)
	}
	return fmt.Sprintf("task %s reported %s: %s", e.TaskID, e.Status, e.Message)
}

var errSoftStop = errors.New("no credential, polling stopped")

type Options struct {
	Now       func() time.Time
	NewTicker func(time.Duration) Ticker
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
}

type task struct {
	job        Job
	cancel     context.CancelFunc
	processing bool
}

type Supervisor struct {
	querier Querier
	creds   Credentials
	notify  func(Update)

	now       func() time.Time
	newTicker func(time.Duration) Ticker
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer

	mu     sync.Mutex
	tasks  map[string]*task
	wg     sync.WaitGroup
	closed bool
}

// New creates a supervisor that delivers updates to notify. notify is called
// from poller goroutines without any supervisor lock held.
func New(querier Querier, creds Credentials, notify func(Update), opts Options) *Supervisor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Supervisor{
		querier:   querier,
		creds:     creds,
		notify:    notify,
		now:       opts.Now,
		newTicker: opts.NewTicker,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracer:    telemetry.Tracer(),
		tasks:     make(map[string]*task),
	}
}

// Start begins polling job. It returns false when the task id is already
// being polled, the job has no status family, or the supervisor is closed.
func (s *Supervisor) Start(job Job) bool {
	if job.TaskID == "" || job.Family == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, ok := s.tasks[job.TaskID]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{job: job, cancel: cancel}
	s.tasks[job.TaskID] = t

	s.wg.Add(1)
	go s.run(ctx, t)

	s.logger.Info("polling started", "task_id", job.TaskID, "record_id", job.RecordID,
		"model_id", job.ModelID, "interval", job.Family.Interval)
	return true
}

// Stop cancels the poller for taskID. Results of an in-flight query are
// discarded.
func (s *Supervisor) Stop(taskID string) bool {
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if ok {
		delete(s.tasks, taskID)
	}
	s.mu.Unlock()

	if ok {
		t.cancel()
	}
	return ok
}

func (s *Supervisor) Active(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[taskID]
	return ok
}

func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close stops every poller and waits for their goroutines to exit.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	tasks := s.tasks
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	s.wg.Wait()
}

func (s *Supervisor) run(ctx context.Context, t *task) {
	defer s.wg.Done()
	defer s.release(t)

	ticker := s.newTicker(t.job.Family.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			update, done := s.tick(ctx, t)
			if ctx.Err() != nil {
				return
			}
			if update != nil {
				s.notify(*update)
			}
			if done {
				return
			}
		}
	}
}

// release drops t from the active set unless a newer poller replaced it.
func (s *Supervisor) release(t *task) {
	s.mu.Lock()
	if cur, ok := s.tasks[t.job.TaskID]; ok && cur == t {
		delete(s.tasks, t.job.TaskID)
	}
	s.mu.Unlock()
	t.cancel()
}

// tick issues one status query. A panic is recovered and treated like a
// transient error so the ticker keeps running.
func (s *Supervisor) tick(ctx context.Context, t *task) (update *Update, done bool) {
	job := t.job
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("poll panicked", "task_id", job.TaskID, "panic", r)
			update, done = nil, false
		}
	}()

	cred := s.creds.Current()
	if !cred.Valid() {
		s.logger.Warn("polling stopped", "task_id", job.TaskID, "record_id", job.RecordID, "reason", errSoftStop)
		s.metrics.Polled(ctx, job.Family.Name, "soft_stop")
		return nil, true
	}

	ctx, span := s.tracer.Start(ctx, "poller.tick", trace.WithAttributes(
		attribute.String("task_id", job.TaskID),
		attribute.String("family", job.Family.Name),
	))
	defer span.End()

	body, err := s.querier.GetJSON(ctx, cred, job.Family.StatusURL(job.TaskID))
	raw := body.FirstText(job.Family.StatusFields...)
	// A reply carrying an error member still counts when it reports a status.
	var apiErr *provider.APIError
	if err != nil && errors.As(err, &apiErr) && raw != "" {
		err = nil
	}
	if err != nil {
		perr := &PollError{TaskID: job.TaskID, Err: err}
		span.RecordError(perr)
		s.logger.Debug("poll failed, retrying at next tick", "task_id", job.TaskID, "error", perr)
		s.metrics.Polled(ctx, job.Family.Name, "error")
		return nil, false
	}

	switch job.Family.Classify(raw) {
	case catalog.PhaseSucceeded:
		if mediaURL := body.FirstText(job.Family.URLFields...); mediaURL != "" {
			s.metrics.Polled(ctx, job.Family.Name, "completed")
			return &Update{
				Job:      job,
				Status:   types.StatusCompleted,
				MediaURL: mediaURL,
				Label:    ElapsedLabel(s.now().Sub(job.StartedAt)),
			}, true
		}
		if job.Family.FailOnMissingURL {
			s.metrics.Polled(ctx, job.Family.Name, "failed")
			span.SetStatus(codes.Error, job.Family.MissingURLLabel)
			return &Update{Job: job, Status: types.StatusFailed, Label: job.Family.MissingURLLabel}, true
		}
		s.logger.Debug("job succeeded without a url yet", "task_id", job.TaskID, "status", raw)

	case catalog.PhaseFailed:
		failure := &RemoteFailure{TaskID: job.TaskID, Status: raw, Message: body.FirstText(job.Family.MessageFields...)}
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		s.logger.Info("job failed remotely", "task_id", job.TaskID, "record_id", job.RecordID, "error", failure)
		s.metrics.Polled(ctx, job.Family.Name, "failed")
		return &Update{Job: job, Status: types.StatusFailed, Label: job.Family.FailureLabel, Message: failure.Message}, true

	case catalog.PhaseRunning:
		if !t.processing {
			t.processing = true
			s.metrics.Polled(ctx, job.Family.Name, "processing")
			return &Update{Job: job, Status: types.StatusProcessing}, false
		}
	}

	s.metrics.Polled(ctx, job.Family.Name, "pending")
	return nil, false
}

// ElapsedLabel renders d as whole seconds, e.g. "42s".
func ElapsedLabel(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%ds", int64(math.Round(d.Seconds())))
}
