// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package layer

import (
	"errors"
	"time"

	"github.com/gogpu/globe"
	"github.com/gogpu/globe/cache"
	"github.com/gogpu/globe/pipeline"
	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/source"
)

// ErrNilLevelSet is returned when constructing a Globe without a pyramid.
var ErrNilLevelSet = errors.New("layer: level set is nil")

// frameLayer is the contract a layer fulfills toward the Globe's frame
// loop. The set of layer kinds is closed within this package.
type frameLayer interface {
	Name() string
	beginFrame(frame uint64)
	handleCompletion(c pipeline.Completion)
}

// Option configures a Globe during creation.
//
// Example:
//
//	g, err := layer.NewGlobe(levels,
//	    layer.WithCacheBudgetMB(512),
//	    layer.WithWorkers(8),
//	)
type Option func(*options)

// options holds optional configuration for Globe creation.
type options struct {
	cacheBudgetMB   int
	workers         int
	requestTimeout  time.Duration
	retryLimit      int
	retryBaseDelay  time.Duration
	staleFrameLimit int
}

// WithCacheBudgetMB sets the GPU resource cache byte budget in
// megabytes. Defaults to cache.DefaultBudgetMB.
func WithCacheBudgetMB(mb int) Option {
	return func(o *options) { o.cacheBudgetMB = mb }
}

// WithWorkers sets the retrieval worker pool size.
// Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request fetch deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithRetryLimit bounds fetch attempts per key before a transient
// failure becomes permanent for the session.
func WithRetryLimit(n int) Option {
	return func(o *options) { o.retryLimit = n }
}

// WithRetryBaseDelay sets the first retry backoff.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(o *options) { o.retryBaseDelay = d }
}

// WithStaleFrameLimit sets how many consecutive frames a queued request
// may go unwanted before it is cancelled.
func WithStaleFrameLimit(n int) Option {
	return func(o *options) { o.staleFrameLimit = n }
}

// Globe owns the lifecycle of one rendering context's tile machinery:
// the pyramid, the shared resource cache, the retrieval pipeline and
// the layers consuming them. The cache and pipeline are injected into
// every layer by reference; there is no process-wide shared state.
//
// Globe methods are render-thread only, with the usual exception that
// the pipeline's workers run concurrently underneath.
type Globe struct {
	levels *pyramid.LevelSet
	cache  *cache.Cache
	pipe   *pipeline.Pipeline

	layers   []frameLayer
	bySource map[string]frameLayer

	frame uint64
}

// NewGlobe creates the tile machinery over the given pyramid.
func NewGlobe(levels *pyramid.LevelSet, opts ...Option) (*Globe, error) {
	if levels == nil {
		return nil, ErrNilLevelSet
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &Globe{
		levels: levels,
		cache:  cache.New(cache.Config{BudgetMB: o.cacheBudgetMB}),
		pipe: pipeline.New(pipeline.Config{
			Workers:         o.workers,
			TileSize:        levels.TileSize(),
			RequestTimeout:  o.requestTimeout,
			RetryLimit:      o.retryLimit,
			RetryBaseDelay:  o.retryBaseDelay,
			StaleFrameLimit: o.staleFrameLimit,
		}),
		bySource: make(map[string]frameLayer),
	}, nil
}

// AddImageLayer creates an imagery layer over the source and registers
// it with the frame loop.
func (g *Globe) AddImageLayer(src source.TileSource) *ImageLayer {
	l := newImageLayer(g.levels, g.cache, g.pipe, src)
	g.register(l)
	return l
}

// AddElevationLayer creates an elevation layer over the source and
// registers it with the frame loop.
func (g *Globe) AddElevationLayer(src source.TileSource) *ElevationLayer {
	l := newElevationLayer(g.levels, g.cache, g.pipe, src)
	g.register(l)
	return l
}

func (g *Globe) register(l frameLayer) {
	g.layers = append(g.layers, l)
	g.bySource[l.Name()] = l
	globe.Logger().Info("globe: layer added", "layer", l.Name())
}

// BeginFrame starts a new frame on the render thread: advances the
// cache and pipeline frame counters, drains completed retrievals and
// performs their GPU uploads, and sweeps stale queued requests.
// Call once per frame before any layer Pick.
func (g *Globe) BeginFrame(frame uint64) {
	g.frame = frame
	g.cache.SetFrame(frame)
	g.pipe.SetFrame(frame)

	for _, c := range g.pipe.DrainCompleted() {
		if l, ok := g.bySource[c.Source.Name()]; ok {
			l.handleCompletion(c)
		}
	}

	for _, l := range g.layers {
		l.beginFrame(frame)
	}

	g.pipe.Sweep(frame)
}

// Frame returns the current frame number.
func (g *Globe) Frame() uint64 { return g.frame }

// Levels returns the pyramid description.
func (g *Globe) Levels() *pyramid.LevelSet { return g.levels }

// Cache returns the shared resource cache.
func (g *Globe) Cache() *cache.Cache { return g.cache }

// Pipeline returns the retrieval pipeline.
func (g *Globe) Pipeline() *pipeline.Pipeline { return g.pipe }

// Reset drops all memoized tiles and releases every cached resource.
// Retrieval state is kept; in-flight requests complete normally.
func (g *Globe) Reset() {
	g.levels.Reset()
	g.cache.Clear()
}

// Close shuts down the pipeline and releases all cached resources.
// Safe to call multiple times.
func (g *Globe) Close() {
	g.pipe.Close()
	g.cache.Close()
}
