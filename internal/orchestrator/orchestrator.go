package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"passforge/internal/card"
	"passforge/internal/encoder"
	"passforge/internal/store"
)

// ErrCancelled marks a request that was cancelled before reaching a
// terminal state on its own.
var ErrCancelled = errors.New("request cancelled")

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("orchestrator is closed")

// Config tunes the queue. Zero values fall back to the defaults below.
type Config struct {
	// MaxConcurrent bounds simultaneously processing requests.
	MaxConcurrent int
	// CompletedRetention / FailedRetention cap the terminal buckets;
	// oldest entries are evicted first.
	CompletedRetention int
	FailedRetention    int
	// RequestTimeout, when positive, deadlines each dequeued request.
	RequestTimeout time.Duration
	// Retry governs artifact-store writes. Encode failures are
	// deterministic and never retried.
	Retry RetryPolicy
}

// RetryPolicy is exponential backoff: BaseDelay, 2*BaseDelay, 4*BaseDelay...
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

const (
	defaultMaxConcurrent      = 3
	defaultCompletedRetention = 100
	defaultFailedRetention    = 50
	defaultRetryAttempts      = 3
	defaultRetryBaseDelay     = 200 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = defaultCompletedRetention
	}
	if c.FailedRetention <= 0 {
		c.FailedRetention = defaultFailedRetention
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryAttempts
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = defaultRetryBaseDelay
	}
	return c
}

// Orchestrator owns the four queue buckets. A single mutex guards them;
// per-request work runs on goroutines gated by a weighted semaphore so the
// processing bucket never exceeds MaxConcurrent.
type Orchestrator struct {
	cfg       Config
	builder   *card.Builder
	enc       *encoder.Encoder
	artifacts store.ArtifactStore
	resultLog store.ResultLog // optional durable history
	log       *zap.Logger

	sem *semaphore.Weighted

	mu           sync.Mutex
	pending      []*Request
	processing   map[string]*Request
	completed    []*Result
	completedIdx map[string]*Result
	failed       []*Failure
	failedIdx    map[string]*Failure
	cancels      map[string]context.CancelFunc
	closed       bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New builds an Orchestrator. resultLog may be nil; everything else is
// required.
func New(cfg Config, builder *card.Builder, enc *encoder.Encoder, artifacts store.ArtifactStore, resultLog store.ResultLog, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:          cfg,
		builder:      builder,
		enc:          enc,
		artifacts:    artifacts,
		resultLog:    resultLog,
		log:          log,
		sem:          semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		processing:   make(map[string]*Request),
		completedIdx: make(map[string]*Result),
		failedIdx:    make(map[string]*Failure),
		cancels:      make(map[string]context.CancelFunc),
		rootCtx:      ctx,
		rootCancel:   cancel,
	}
}

// Capacity reports the configured concurrency bound.
func (o *Orchestrator) Capacity() int { return o.cfg.MaxConcurrent }

// Accepting reports whether Enqueue would take new work.
func (o *Orchestrator) Accepting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed
}

// EnqueueParams is the caller-facing request shape before an id and
// timestamp are assigned.
type EnqueueParams struct {
	CardID     string
	CustomerID string
	Platforms  []encoder.Platform
	Priority   Priority
	Metadata   map[string]string
}

// Enqueue appends a request to the pending bucket and returns its id
// immediately; processing happens asynchronously. Callers poll GetResult.
func (o *Orchestrator) Enqueue(params EnqueueParams) (string, error) {
	if params.CardID == "" {
		return "", fmt.Errorf("enqueue: card id is required")
	}
	if len(params.Platforms) == 0 {
		return "", fmt.Errorf("enqueue: at least one platform is required")
	}
	for _, p := range params.Platforms {
		if !p.Valid() {
			return "", fmt.Errorf("enqueue: unknown platform %q", p)
		}
	}
	if params.Priority == "" {
		params.Priority = PriorityNormal
	}

	req := &Request{
		ID:         uuid.NewString(),
		CardID:     params.CardID,
		CustomerID: params.CustomerID,
		Platforms:  append([]encoder.Platform(nil), params.Platforms...),
		Priority:   params.Priority,
		Metadata:   params.Metadata,
		CreatedAt:  time.Now().UTC(),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", ErrClosed
	}
	o.pending = append(o.pending, req)
	o.mu.Unlock()

	o.log.Debug("request enqueued",
		zap.String("request_id", req.ID),
		zap.String("card_id", req.CardID),
		zap.String("priority", string(req.Priority)))

	o.dispatch()
	return req.ID, nil
}

// dispatch moves pending requests into processing while permits remain.
// It re-arms after every finished request until pending drains.
func (o *Orchestrator) dispatch() {
	for {
		if !o.sem.TryAcquire(1) {
			return
		}

		o.mu.Lock()
		req := o.popPendingLocked()
		if req == nil {
			o.mu.Unlock()
			o.sem.Release(1)
			return
		}
		o.processing[req.ID] = req
		ctx, cancel := o.requestContext()
		o.cancels[req.ID] = cancel
		o.mu.Unlock()

		o.wg.Add(1)
		go func(req *Request, ctx context.Context) {
			// LIFO: release the permit, then re-arm dispatch, then
			// mark done, so Wait only returns once pending drains.
			defer o.wg.Done()
			defer o.dispatch()
			defer o.sem.Release(1)
			o.run(ctx, req)
		}(req, ctx)
	}
}

// popPendingLocked removes and returns the highest-priority oldest request.
func (o *Orchestrator) popPendingLocked() *Request {
	if len(o.pending) == 0 {
		return nil
	}
	best := 0
	for i, req := range o.pending {
		if req.Priority.rank() < o.pending[best].Priority.rank() {
			best = i
		}
	}
	req := o.pending[best]
	o.pending = append(o.pending[:best], o.pending[best+1:]...)
	return req
}

func (o *Orchestrator) requestContext() (context.Context, context.CancelFunc) {
	if o.cfg.RequestTimeout > 0 {
		return context.WithTimeout(o.rootCtx, o.cfg.RequestTimeout)
	}
	return context.WithCancel(o.rootCtx)
}

// run executes one request to a terminal state. A panic anywhere inside is
// converted into a failed terminal state; callers never see it.
func (o *Orchestrator) run(ctx context.Context, req *Request) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.fail(req, fmt.Errorf("panic during generation: %v", r))
		}
	}()

	c, err := o.builder.Build(ctx, req.CardID, req.CustomerID)
	if err != nil {
		// A build that died because the request context was cancelled is a
		// cancellation, not a lookup failure.
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		o.fail(req, err)
		return
	}
	if ok, verrs := card.Validate(c); !ok {
		o.fail(req, &ValidationError{CardID: req.CardID, Errors: verrs})
		return
	}

	platforms := make(map[encoder.Platform]PlatformResult, len(req.Platforms))
	success := true
	for _, p := range req.Platforms {
		if err := ctx.Err(); err != nil {
			o.fail(req, fmt.Errorf("%w: %v", ErrCancelled, err))
			return
		}
		res := o.generatePlatform(ctx, c, p)
		platforms[p] = res
		success = success && res.Success
	}

	if err := ctx.Err(); err != nil {
		o.fail(req, fmt.Errorf("%w: %v", ErrCancelled, err))
		return
	}

	result := &Result{
		RequestID:      req.ID,
		Success:        success,
		Platforms:      platforms,
		Card:           c,
		GeneratedAt:    time.Now().UTC(),
		ProcessingTime: time.Since(started),
	}
	o.complete(req, result)
}

// generatePlatform encodes and persists one platform. Failures are scoped
// to the returned result; the sibling platforms keep going.
func (o *Orchestrator) generatePlatform(ctx context.Context, c *card.UnifiedCardData, p encoder.Platform) PlatformResult {
	payload, err := o.enc.Encode(p, c)
	if err != nil {
		o.log.Warn("encoding failed",
			zap.String("platform", string(p)),
			zap.String("card_id", c.ID),
			zap.Error(err))
		return PlatformResult{Platform: p, Error: err.Error()}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return PlatformResult{Platform: p, Error: fmt.Sprintf("marshal %s artifact: %v", p, err)}
	}

	ref, err := o.persistWithRetry(ctx, c.SerialNumber, p, raw)
	if err != nil {
		perr := &PersistenceError{Platform: p, Err: err}
		o.log.Warn("artifact persistence failed", zap.String("platform", string(p)), zap.Error(perr))
		return PlatformResult{Platform: p, Error: perr.Error()}
	}
	return PlatformResult{Platform: p, Success: true, Artifact: &ref}
}

// persistWithRetry writes the artifact with exponential backoff. The retry
// budget comes from config; a cancelled context stops immediately.
func (o *Orchestrator) persistWithRetry(ctx context.Context, serial string, p encoder.Platform, raw []byte) (store.ArtifactRef, error) {
	var lastErr error
	delay := o.cfg.Retry.BaseDelay
	for attempt := 1; attempt <= o.cfg.Retry.MaxAttempts; attempt++ {
		ref, err := o.artifacts.StoreArtifact(ctx, serial, string(p), raw)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		if attempt == o.cfg.Retry.MaxAttempts {
			break
		}
		o.log.Debug("artifact write retry",
			zap.String("platform", string(p)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return store.ArtifactRef{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return store.ArtifactRef{}, fmt.Errorf("after %d attempts: %w", o.cfg.Retry.MaxAttempts, lastErr)
}

// complete moves a processing request to completed. The terminal state is
// set exactly once; a request already failed (e.g. by Cancel) stays failed.
func (o *Orchestrator) complete(req *Request, res *Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.processing[req.ID]; !ok {
		return
	}
	o.releaseLocked(req.ID)

	o.completed = append(o.completed, res)
	o.completedIdx[req.ID] = res
	for len(o.completed) > o.cfg.CompletedRetention {
		evicted := o.completed[0]
		o.completed = o.completed[1:]
		delete(o.completedIdx, evicted.RequestID)
	}

	o.log.Info("request completed",
		zap.String("request_id", req.ID),
		zap.String("card_id", req.CardID),
		zap.Bool("success", res.Success),
		zap.Duration("took", res.ProcessingTime))

	o.saveResultLocked(res)
}

// fail moves a request (pending or processing) to failed exactly once.
func (o *Orchestrator) fail(req *Request, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failLocked(req, err)
}

func (o *Orchestrator) failLocked(req *Request, err error) {
	if _, terminal := o.completedIdx[req.ID]; terminal {
		return
	}
	if _, terminal := o.failedIdx[req.ID]; terminal {
		return
	}
	o.releaseLocked(req.ID)

	f := &Failure{Request: *req, Error: err.Error(), FailedAt: time.Now().UTC()}
	o.failed = append(o.failed, f)
	o.failedIdx[req.ID] = f
	for len(o.failed) > o.cfg.FailedRetention {
		evicted := o.failed[0]
		o.failed = o.failed[1:]
		delete(o.failedIdx, evicted.Request.ID)
	}

	o.log.Warn("request failed",
		zap.String("request_id", req.ID),
		zap.String("card_id", req.CardID),
		zap.Error(err))
}

func (o *Orchestrator) releaseLocked(id string) {
	delete(o.processing, id)
	if cancel, ok := o.cancels[id]; ok {
		cancel()
		delete(o.cancels, id)
	}
}

func (o *Orchestrator) saveResultLocked(res *Result) {
	if o.resultLog == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		o.log.Warn("marshal result for durable log", zap.Error(err))
		return
	}
	// Best effort: durable history must not fail the request.
	if err := o.resultLog.SaveResult(context.Background(), res.RequestID, res.Success, raw, res.GeneratedAt); err != nil {
		o.log.Warn("save result to durable log", zap.Error(err))
	}
}

// Cancel fails a pending request immediately or signals an in-flight one.
// Requests already terminal cannot be cancelled.
func (o *Orchestrator) Cancel(requestID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, req := range o.pending {
		if req.ID == requestID {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			o.failLocked(req, ErrCancelled)
			return nil
		}
	}
	if _, ok := o.processing[requestID]; ok {
		if cancel, ok := o.cancels[requestID]; ok {
			cancel()
		}
		return nil
	}
	return fmt.Errorf("cancel %s: request is not pending or processing", requestID)
}

// GetResult returns the result for a completed request, or nil. It never
// blocks; failed requests show up in QueueStatus, not here.
func (o *Orchestrator) GetResult(requestID string) *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completedIdx[requestID]
}

// GetFailure returns the failure record for a failed request, or nil.
func (o *Orchestrator) GetFailure(requestID string) *Failure {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failedIdx[requestID]
}

// QueueStatus snapshots the four buckets. The returned slices are copies;
// mutating them does not touch queue state.
func (o *Orchestrator) QueueStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Pending:    make([]Request, 0, len(o.pending)),
		Processing: make([]Request, 0, len(o.processing)),
		Completed:  make([]Result, 0, len(o.completed)),
		Failed:     make([]Failure, 0, len(o.failed)),
	}
	for _, req := range o.pending {
		st.Pending = append(st.Pending, *req)
	}
	for _, req := range o.processing {
		st.Processing = append(st.Processing, *req)
	}
	for _, res := range o.completed {
		st.Completed = append(st.Completed, *res)
	}
	for _, f := range o.failed {
		st.Failed = append(st.Failed, *f)
	}
	return st
}

// Wait blocks until every in-flight request has reached a terminal state.
// Pending requests keep dispatching while any worker is running.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close stops accepting work, cancels in-flight requests, and waits for
// workers to finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.rootCancel()
	o.wg.Wait()
}
