// Package lifecycle owns the in-memory set of generation records and moves
// each one along loading → queued → processing → completed/failed, writing
// every change through to the store.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/georgeshao/genstudio/internal/catalog"
	"github.com/georgeshao/genstudio/internal/config"
	"github.com/georgeshao/genstudio/internal/dispatcher"
	"github.com/georgeshao/genstudio/internal/poller"
	"github.com/georgeshao/genstudio/internal/storage"
	"github.com/georgeshao/genstudio/internal/telemetry"
	"github.com/georgeshao/genstudio/pkg/types"
)

// MaxBatch is the largest number of outputs one submission may request.
const MaxBatch = 8

var ErrClosed = errors.New("coordinator is closed")

type Dispatcher interface {
	Dispatch(ctx context.Context, cred config.Credential, req dispatcher.Request) (dispatcher.Outcome, error)
}

type Poller interface {
	Start(job poller.Job) bool
	Stop(taskID string) bool
	Close()
}

type Credentials interface {
	Current() config.Credential
}

type BalanceRefresher interface {
	Refresh(ctx context.Context) types.Balance
}

type Config struct {
	Store       *storage.BestEffort
	Dispatcher  Dispatcher
	Catalog     *catalog.Catalog
	Credentials Credentials
	Balance     BalanceRefresher
	Logger      *slog.Logger
	Metrics     *telemetry.Metrics
	MaxWorkers  int
	Now         func() time.Time
	NewID       func() string
}

type entry struct {
	rec *storage.AssetRecord
	seq uint64
}

type Coordinator struct {
	store      *storage.BestEffort
	dispatcher Dispatcher
	catalog    *catalog.Catalog
	creds      Credentials
	balance    BalanceRefresher
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	maxWorkers int
	now        func() time.Time
	newID      func() string
	poller     Poller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	records map[string]*entry
	seq     uint64
	// resumed holds task ids that already had a poller in this process.
	resumed map[string]struct{}
	notice  *types.Notice
	closed  bool
}

func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = MaxBatch
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		catalog:    cfg.Catalog,
		creds:      cfg.Credentials,
		balance:    cfg.Balance,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		maxWorkers: cfg.MaxWorkers,
		now:        cfg.Now,
		newID:      cfg.NewID,
		ctx:        ctx,
		cancel:     cancel,
		records:    make(map[string]*entry),
		resumed:    make(map[string]struct{}),
	}
}

// UsePoller attaches the supervisor. It is set after construction because
// the supervisor delivers its updates to Apply.
func (c *Coordinator) UsePoller(p Poller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poller = p
}

// Submit validates req, creates one loading placeholder per requested
// output and returns them. Dispatch continues in the background.
func (c *Coordinator) Submit(ctx context.Context, req types.SubmitRequest) ([]*storage.AssetRecord, error) {
	model, ok := c.catalog.Lookup(req.ModelID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", dispatcher.ErrValidation, req.ModelID)
	}

	count := req.Count
	if count == 0 {
		count = 1
	}
	if count < 0 || count > MaxBatch {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", dispatcher.ErrValidation, MaxBatch)
	}

	dreq, snapshot, durationLabel, err := c.prepare(model, req)
	if err != nil {
		return nil, err
	}

	cred := c.creds.Current()
	if !cred.Valid() {
		return nil, fmt.Errorf("%w: API key is not configured", dispatcher.ErrValidation)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	created := make([]*storage.AssetRecord, 0, count)
	for range count {
		rec := &storage.AssetRecord{
			ID:            c.newID(),
			Kind:          model.Kind,
			ModelID:       model.ID,
			ModelName:     model.Name,
			Prompt:        dreq.Prompt,
			Status:        types.StatusLoading,
			CreatedAt:     c.now(),
			DurationLabel: durationLabel,
			Config:        snapshot,
		}
		c.insertLocked(rec)
		c.store.Put(ctx, rec)
		created = append(created, rec.Clone())
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.metrics.Submitted(ctx, model.ID, count)
	c.logger.Info("generation submitted", "model_id", model.ID, "count", count)

	go func() {
		defer c.wg.Done()

		var g errgroup.Group
		g.SetLimit(c.maxWorkers)
		for _, rec := range created {
			id := rec.ID
			g.Go(func() error {
				c.dispatchOne(c.ctx, cred, model, dreq, id)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return created, nil
}

// prepare resolves defaults for req against model and validates the result.
func (c *Coordinator) prepare(model *catalog.Model, req types.SubmitRequest) (dispatcher.Request, types.RequestConfig, string, error) {
	dreq := dispatcher.Request{
		Model:       model,
		Prompt:      strings.TrimSpace(req.Prompt),
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
		References:  req.ReferenceImages,
	}
	if dreq.AspectRatio == "" && len(model.AspectRatios) > 0 {
		dreq.AspectRatio = model.AspectRatios[0]
	}

	var durationLabel string
	switch model.Kind {
	case types.KindVideo:
		opt, ok := model.VideoOption(req.VideoOption)
		if ok {
			dreq.Duration = opt.Seconds
			dreq.Resolution = opt.Quality
			durationLabel = fmt.Sprintf("%ds", opt.Seconds)
		}
	default:
		if dreq.Resolution == "" && len(model.Resolutions) > 0 {
			dreq.Resolution = model.Resolutions[0]
		}
		if len(model.Resolutions) > 0 && !model.SupportsResolution(dreq.Resolution) {
			return dispatcher.Request{}, types.RequestConfig{}, "", fmt.Errorf("%w: %s does not support resolution %s",
				dispatcher.ErrValidation, model.Name, dreq.Resolution)
		}
		durationLabel = dreq.Resolution
	}

	if err := dispatcher.Validate(dreq); err != nil {
		return dispatcher.Request{}, types.RequestConfig{}, "", err
	}

	snapshot := types.RequestConfig{
		ModelID:         model.ID,
		Kind:            model.Kind,
		Prompt:          dreq.Prompt,
		AspectRatio:     dreq.AspectRatio,
		Resolution:      dreq.Resolution,
		VideoOption:     req.VideoOption,
		ReferenceImages: append([]types.ReferenceImage(nil), req.ReferenceImages...),
	}
	return dreq, snapshot, durationLabel, nil
}

func (c *Coordinator) dispatchOne(ctx context.Context, cred config.Credential, model *catalog.Model, req dispatcher.Request, id string) {
	started := c.now()
	out, err := c.dispatcher.Dispatch(ctx, cred, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.finish(id, types.StatusFailed, func(r *storage.AssetRecord) {
			r.ElapsedLabel = dispatcher.Reason(err)
		})
		c.raise(err.Error())
		return
	}

	if out.MediaURL != "" {
		c.finish(id, types.StatusCompleted, func(r *storage.AssetRecord) {
			r.MediaURL = out.MediaURL
			r.ElapsedLabel = poller.ElapsedLabel(c.now().Sub(started))
		})
		return
	}
	if out.JobID == "" {
		c.finish(id, types.StatusFailed, func(r *storage.AssetRecord) {
			r.ElapsedLabel = dispatcher.Reason(dispatcher.ErrMissingJobID)
		})
		c.raise(dispatcher.ErrMissingJobID.Error())
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.transitionLocked(id, types.StatusQueued, func(r *storage.AssetRecord) {
		r.RemoteTaskID = out.JobID
	})
	if !ok {
		return
	}
	c.startPollerLocked(model, rec)
}

// Apply folds a poller update into the record it belongs to. Updates for
// deleted records, or for a task the record no longer tracks, are dropped.
func (c *Coordinator) Apply(u poller.Update) {
	c.mu.Lock()
	e, ok := c.records[u.Job.RecordID]
	if !ok || e.rec.RemoteTaskID != u.Job.TaskID {
		c.mu.Unlock()
		c.logger.Debug("dropping update for unknown record", "record_id", u.Job.RecordID, "task_id", u.Job.TaskID)
		return
	}
	c.mu.Unlock()

	switch u.Status {
	case types.StatusProcessing:
		c.mu.Lock()
		c.transitionLocked(u.Job.RecordID, types.StatusProcessing, nil)
		c.mu.Unlock()
	case types.StatusCompleted:
		c.finish(u.Job.RecordID, types.StatusCompleted, func(r *storage.AssetRecord) {
			r.MediaURL = u.MediaURL
			r.ElapsedLabel = u.Label
		})
	case types.StatusFailed:
		c.finish(u.Job.RecordID, types.StatusFailed, func(r *storage.AssetRecord) {
			r.ElapsedLabel = u.Label
			if u.Message != "" {
				r.ElapsedLabel = u.Message
			}
		})
	}
}

// finish moves a record into a terminal status and refreshes the balance.
func (c *Coordinator) finish(id string, to types.Status, mutate func(*storage.AssetRecord)) {
	c.mu.Lock()
	rec, ok := c.transitionLocked(id, to, mutate)
	c.mu.Unlock()
	if !ok {
		return
	}

	c.metrics.Finished(c.ctx, rec.ModelID, string(to))
	c.logger.Info("generation finished", "record_id", id, "model_id", rec.ModelID, "status", to, "label", rec.ElapsedLabel)
	c.refreshBalance()
}

// transitionLocked replaces the record with a transformed copy and writes it
// through. It refuses edges the state machine does not allow.
func (c *Coordinator) transitionLocked(id string, to types.Status, mutate func(*storage.AssetRecord)) (*storage.AssetRecord, bool) {
	e, ok := c.records[id]
	if !ok {
		return nil, false
	}
	if !CanTransition(e.rec.Status, to) {
		c.logger.Debug("ignoring transition", "record_id", id, "from", e.rec.Status, "to", to)
		return nil, false
	}

	next := e.rec.Clone()
	if mutate != nil {
		mutate(next)
	}
	next.Status = to
	e.rec = next

	c.store.Put(c.ctx, next)
	return next.Clone(), true
}

func (c *Coordinator) startPollerLocked(model *catalog.Model, rec *storage.AssetRecord) {
	if c.poller == nil || model == nil || model.Family == nil {
		return
	}
	if _, done := c.resumed[rec.RemoteTaskID]; done {
		return
	}
	c.resumed[rec.RemoteTaskID] = struct{}{}
	c.poller.Start(poller.Job{
		TaskID:    rec.RemoteTaskID,
		RecordID:  rec.ID,
		ModelID:   rec.ModelID,
		Family:    model.Family,
		StartedAt: rec.CreatedAt,
	})
}

func (c *Coordinator) insertLocked(rec *storage.AssetRecord) {
	c.seq++
	c.records[rec.ID] = &entry{rec: rec, seq: c.seq}
}

func (c *Coordinator) refreshBalance() {
	if c.balance == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.balance.Refresh(c.ctx)
	}()
}

// Delete forgets the record and stops its poller. Results that arrive later
// for it are ignored.
func (c *Coordinator) Delete(ctx context.Context, id string) bool {
	c.mu.Lock()
	e, ok := c.records[id]
	if ok {
		delete(c.records, id)
		c.store.Delete(ctx, id)
	}
	p := c.poller
	c.mu.Unlock()

	if !ok {
		return false
	}
	if taskID := e.rec.RemoteTaskID; taskID != "" && p != nil {
		p.Stop(taskID)
	}
	c.logger.Info("generation deleted", "record_id", id)
	return true
}

// List returns every record, newest first.
func (c *Coordinator) List() []*storage.AssetRecord {
	c.mu.Lock()
	entries := make([]*entry, 0, len(c.records))
	for _, e := range c.records {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]*storage.AssetRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec.Clone()
	}
	return out
}

func (c *Coordinator) Get(id string) (*storage.AssetRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.records[id]
	if !ok {
		return nil, false
	}
	return e.rec.Clone(), true
}

func (c *Coordinator) Stats() types.GenerationStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stats types.GenerationStats
	for _, e := range c.records {
		stats.Total++
		switch e.rec.Status {
		case types.StatusLoading:
			stats.Loading++
		case types.StatusQueued:
			stats.Queued++
		case types.StatusProcessing:
			stats.Processing++
		case types.StatusCompleted:
			stats.Completed++
		case types.StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// Restore loads persisted records and attaches a poller to every queued or
// processing record that has a remote task id. Records still loading are
// left as they are. Calling it again only picks up records not seen before.
// It returns the number of pollers started.
func (c *Coordinator) Restore(ctx context.Context) int {
	recs := c.store.All(ctx)
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	started := 0
	// Insert oldest first so seq keeps the same tiebreak as live inserts.
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		if _, ok := c.records[rec.ID]; !ok {
			c.insertLocked(rec.Clone())
		}
		e := c.records[rec.ID]

		if e.rec.Status.Terminal() || e.rec.Status == types.StatusLoading || e.rec.RemoteTaskID == "" {
			continue
		}
		if _, done := c.resumed[e.rec.RemoteTaskID]; done {
			continue
		}
		model, ok := c.catalog.Lookup(e.rec.ModelID)
		if !ok || model.Family == nil {
			c.logger.Warn("cannot resume record", "record_id", e.rec.ID, "model_id", e.rec.ModelID)
			continue
		}
		c.startPollerLocked(model, e.rec)
		started++
	}

	c.logger.Info("records restored", "records", len(recs), "pollers", started)
	return started
}

// Notice returns the pending top-level notice, if any.
func (c *Coordinator) Notice() (types.Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return types.Notice{}, false
	}
	return *c.notice, true
}

func (c *Coordinator) DismissNotice() {
	c.mu.Lock()
	c.notice = nil
	c.mu.Unlock()
}

func (c *Coordinator) raise(msg string) {
	c.mu.Lock()
	c.notice = &types.Notice{Message: msg, RaisedAt: c.now().UTC().Format(time.RFC3339)}
	c.mu.Unlock()
}

// Wait blocks until every background dispatch and balance refresh started
// so far has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close stops all pollers and waits for in-flight dispatches to give up.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	p := c.poller
	c.mu.Unlock()

	if p != nil {
		p.Close()
	}
	c.cancel()
	c.wg.Wait()
}
