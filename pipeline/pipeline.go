// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline orchestrates asynchronous tile retrieval: fetch and
// decode run on a worker pool, completions are handed to the render
// thread once per frame, and at most one fetch is ever in flight per
// resource key.
//
// State machine per pending request:
//
//	Queued → InFlight → {Done, Failed}
//
// Transient failures loop back to Queued with exponential backoff until
// the retry limit; permanent failures are recorded per key and never
// retried for the remainder of the session.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/globe"
	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/resource"
	"github.com/gogpu/globe/source"
)

// Default pipeline parameters.
const (
	// DefaultRequestTimeout is the per-request fetch deadline.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultRetryLimit is the number of fetch attempts for a key
	// before a transient failure becomes permanent for the session.
	DefaultRetryLimit = 3

	// DefaultRetryBaseDelay is the first retry backoff.
	DefaultRetryBaseDelay = 250 * time.Millisecond

	// DefaultRetryMaxDelay caps the exponential backoff.
	DefaultRetryMaxDelay = 5 * time.Second

	// DefaultStaleFrameLimit is how many consecutive frames a queued
	// request may go unwanted before Sweep cancels it.
	DefaultStaleFrameLimit = 60
)

// State is the lifecycle state of a pending request.
type State uint8

const (
	// StateQueued means the request waits for a worker (or a retry
	// backoff).
	StateQueued State = iota

	// StateInFlight means a worker is fetching or decoding.
	StateInFlight

	// StateDone means the result awaits draining by the render thread.
	StateDone

	// StateFailed means the request failed permanently.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "Queued"
	case StateInFlight:
		return "InFlight"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Completion is one finished retrieval, drained by the render thread.
// Exactly one of Image or Elevation is non-nil on success; Err is
// non-nil on permanent failure.
type Completion struct {
	Address   pyramid.Address
	Key       resource.Key
	Source    source.TileSource
	Image     *image.NRGBA
	Elevation *Elevation
	Err       error
}

// request is the pipeline's bookkeeping for one (source, address) pair.
// state, attempts and lastWanted are guarded by the pipeline mutex.
type request struct {
	id   string // trace ID for log correlation
	key  resource.Key
	addr pyramid.Address
	src  source.TileSource

	state      State
	attempts   int
	lastWanted uint64 // frame number of the most recent Request call

	cancelled atomic.Bool
}

// Config holds configuration for creating a Pipeline.
// Zero fields fall back to the package defaults.
type Config struct {
	// Workers is the worker pool size. Defaults to GOMAXPROCS.
	Workers int

	// TileSize is the pixel size decoded images are normalized to.
	// Defaults to pyramid.DefaultTileSize.
	TileSize int

	// RequestTimeout is the per-request fetch deadline after which the
	// attempt fails with a transient timeout.
	RequestTimeout time.Duration

	// RetryLimit bounds fetch attempts per key.
	RetryLimit int

	// RetryBaseDelay and RetryMaxDelay shape the exponential backoff.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// StaleFrameLimit is how many consecutive frames a queued request
	// may go unwanted before Sweep cancels it.
	StaleFrameLimit int
}

func (c *Config) applyDefaults() {
	if c.TileSize <= 0 {
		c.TileSize = pyramid.DefaultTileSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = DefaultRetryLimit
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.StaleFrameLimit <= 0 {
		c.StaleFrameLimit = DefaultStaleFrameLimit
	}
}

// Pipeline coordinates fetch → decode → hand-off for pending tiles
// without ever blocking the render thread.
//
// The de-duplication table is the only state shared with the workers;
// its mutex is held only for short check-and-insert critical sections.
// Completions cross back to the render thread exclusively through
// DrainCompleted.
type Pipeline struct {
	cfg  Config
	pool *workerPool

	mu      sync.Mutex
	pending map[resource.Key]*request
	failed  map[resource.Key]error // permanent failures, session-lifetime

	doneMu sync.Mutex
	done   []Completion

	frame   atomic.Uint64
	fetches atomic.Uint64 // total fetch attempts, for diagnostics
	closed  atomic.Bool
}

// New creates a pipeline and starts its worker pool.
func New(cfg Config) *Pipeline {
	cfg.applyDefaults()
	p := &Pipeline{
		cfg:     cfg,
		pool:    newWorkerPool(cfg.Workers),
		pending: make(map[resource.Key]*request),
		failed:  make(map[resource.Key]error),
	}
	globe.Logger().Info("pipeline: started", "workers", p.pool.workers)
	return p
}

// SetFrame records the render loop's current frame number, used for
// staleness bookkeeping. Called once per frame, before Request calls.
func (p *Pipeline) SetFrame(frame uint64) {
	p.frame.Store(frame)
}

// Request asks for the tile at addr from src. If a request for the same
// key is already queued, in flight or awaiting drain, the existing one
// is returned — the pipeline never issues two concurrent fetches for
// one key. A key recorded as permanently failed, or any request on a
// closed pipeline, returns StateFailed without scheduling anything.
//
// Safe for concurrent use.
func (p *Pipeline) Request(addr pyramid.Address, src source.TileSource) State {
	key := src.Key(addr)
	frame := p.frame.Load()

	// A closed pipeline schedules nothing; inserting a pending entry
	// here would leave the key queued forever.
	if p.closed.Load() {
		return StateFailed
	}

	p.mu.Lock()
	if _, ok := p.failed[key]; ok {
		p.mu.Unlock()
		return StateFailed
	}
	if r, ok := p.pending[key]; ok {
		r.lastWanted = frame
		state := r.state
		p.mu.Unlock()
		return state
	}

	r := &request{
		id:         uuid.NewString(),
		key:        key,
		addr:       addr,
		src:        src,
		state:      StateQueued,
		lastWanted: frame,
	}
	p.pending[key] = r
	p.mu.Unlock()

	globe.Logger().Debug("pipeline: queued", "req", r.id, "key", key, "addr", addr.String())
	p.pool.submit(func() { p.run(r) })
	return StateQueued
}

// run executes one fetch attempt for the request on a worker.
func (p *Pipeline) run(r *request) {
	if r.cancelled.Load() || p.closed.Load() {
		p.discard(r)
		return
	}

	p.mu.Lock()
	r.state = StateInFlight
	r.attempts++
	attempt := r.attempts
	p.mu.Unlock()

	p.fetches.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RequestTimeout)
	payload, err := r.src.Fetch(ctx, r.addr)
	cancel()

	if err == nil {
		p.complete(r, p.decode(r, payload))
		return
	}
	p.fail(r, err, attempt)
}

// decode turns a payload into a completion on the worker thread.
func (p *Pipeline) decode(r *request, payload source.Payload) Completion {
	c := Completion{Address: r.addr, Key: r.key, Source: r.src}
	switch payload.Kind {
	case source.KindImage:
		c.Image, c.Err = decodeImage(payload.Bytes, p.cfg.TileSize)
	default:
		c.Elevation, c.Err = decodeElevation(payload.Bytes, payload.Kind)
	}
	return c
}

// complete finishes a request. A decode error inside the completion is
// routed through the failure path; cancelled results are discarded.
func (p *Pipeline) complete(r *request, c Completion) {
	if c.Err != nil {
		p.fail(r, c.Err, p.cfg.RetryLimit) // decode errors are permanent
		return
	}
	if r.cancelled.Load() {
		p.discard(r)
		return
	}

	p.mu.Lock()
	r.state = StateDone
	p.mu.Unlock()

	p.enqueue(c)
	globe.Logger().Debug("pipeline: done", "req", r.id, "key", r.key)
}

// fail handles a failed attempt: transient failures under the retry
// limit are re-queued with exponential backoff, everything else becomes
// a permanent failure for the session.
func (p *Pipeline) fail(r *request, err error, attempt int) {
	if source.Transient(err) && attempt < p.cfg.RetryLimit && !r.cancelled.Load() && !p.closed.Load() {
		p.mu.Lock()
		r.state = StateQueued
		p.mu.Unlock()

		delay := p.backoff(attempt)
		globe.Logger().Debug("pipeline: retrying", "req", r.id, "key", r.key,
			"attempt", attempt, "delay", delay, "err", err)
		time.AfterFunc(delay, func() {
			if p.closed.Load() {
				p.discard(r)
				return
			}
			p.pool.submit(func() { p.run(r) })
		})
		return
	}

	p.mu.Lock()
	r.state = StateFailed
	p.failed[r.key] = err
	p.mu.Unlock()

	globe.Logger().Warn("pipeline: failed", "req", r.id, "key", r.key,
		"attempts", attempt, "err", err)

	if r.cancelled.Load() {
		p.discard(r)
		return
	}
	p.enqueue(Completion{Address: r.addr, Key: r.key, Source: r.src, Err: err})
}

// backoff returns the delay before the given retry attempt (1-based).
func (p *Pipeline) backoff(attempt int) time.Duration {
	d := p.cfg.RetryBaseDelay << uint(attempt-1)
	if d > p.cfg.RetryMaxDelay || d <= 0 {
		d = p.cfg.RetryMaxDelay
	}
	return d
}

// discard drops a cancelled or shutdown request without producing a
// completion.
func (p *Pipeline) discard(r *request) {
	p.mu.Lock()
	if p.pending[r.key] == r {
		delete(p.pending, r.key)
	}
	p.mu.Unlock()
}

// enqueue appends a completion for the next drain.
func (p *Pipeline) enqueue(c Completion) {
	p.doneMu.Lock()
	p.done = append(p.done, c)
	p.doneMu.Unlock()
}

// DrainCompleted returns all completions accumulated since the previous
// drain and retires their pending entries. The render loop calls this
// once per frame and performs the GPU uploads itself; DrainCompleted
// never blocks.
func (p *Pipeline) DrainCompleted() []Completion {
	p.doneMu.Lock()
	out := p.done
	p.done = nil
	p.doneMu.Unlock()

	if len(out) == 0 {
		return nil
	}

	p.mu.Lock()
	for i := range out {
		delete(p.pending, out[i].Key)
	}
	p.mu.Unlock()
	return out
}

// Sweep cancels requests that are still queued but have not been wanted
// for more than the stale frame limit. In-flight requests are left to
// complete and are discarded on arrival if cancelled. The render loop
// calls Sweep once per frame with its current frame number.
func (p *Pipeline) Sweep(frame uint64) int {
	limit := uint64(p.cfg.StaleFrameLimit)

	p.mu.Lock()
	var cancelled int
	for key, r := range p.pending {
		if r.state != StateQueued {
			continue
		}
		if frame-r.lastWanted > limit {
			r.cancelled.Store(true)
			delete(p.pending, key)
			cancelled++
		}
	}
	p.mu.Unlock()

	if cancelled > 0 {
		globe.Logger().Debug("pipeline: swept stale requests", "count", cancelled, "frame", frame)
	}
	return cancelled
}

// FailureFor returns the recorded permanent failure for the key, if
// any. Diagnostic side channel; the hot path only ever observes
// "resource absent".
func (p *Pipeline) FailureFor(key resource.Key) (error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	err, ok := p.failed[key]
	return err, ok
}

// PendingState returns the state of the pending request for the key.
func (p *Pipeline) PendingState(key resource.Key) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.pending[key]
	if !ok {
		return 0, false
	}
	return r.state, true
}

// PendingCount returns the number of tracked pending requests.
func (p *Pipeline) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// FetchCount returns the total number of fetch attempts issued.
func (p *Pipeline) FetchCount() uint64 {
	return p.fetches.Load()
}

// Close stops the pipeline: no new requests are scheduled, queued work
// drains, and the worker pool shuts down. Safe to call multiple times.
func (p *Pipeline) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.pool.close()
	globe.Logger().Info("pipeline: stopped")
}
