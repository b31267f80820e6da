// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/resource"
	"github.com/gogpu/globe/source"
)

// fakeSource counts fetches per address and plays back scripted errors,
// standing in for a network tile service.
type fakeSource struct {
	name    string
	payload source.Payload
	errs    []error       // consumed one per fetch; nil entries succeed
	block   chan struct{} // when non-nil, Fetch waits until closed

	mu      sync.Mutex
	fetches map[pyramid.Address]int
	total   int
}

func newFakeSource(name string, payload source.Payload, errs ...error) *fakeSource {
	return &fakeSource{
		name:    name,
		payload: payload,
		errs:    errs,
		fetches: make(map[pyramid.Address]int),
	}
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Key(a pyramid.Address) resource.Key {
	return resource.Key(s.name + "/" + a.String())
}

func (s *fakeSource) Fetch(ctx context.Context, a pyramid.Address) (source.Payload, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return source.Payload{}, source.ErrTimeout
		}
	}

	s.mu.Lock()
	s.fetches[a]++
	n := s.total
	s.total++
	s.mu.Unlock()

	if n < len(s.errs) && s.errs[n] != nil {
		return source.Payload{}, s.errs[n]
	}
	return s.payload, nil
}

func (s *fakeSource) fetchCount(a pyramid.Address) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[a]
}

// pngPayload encodes a small solid image for image-kind fetches.
func pngPayload(t *testing.T) source.Payload {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return source.Payload{Bytes: buf.Bytes(), Kind: source.KindImage}
}

// fastConfig keeps retry backoff out of test wall time.
func fastConfig() Config {
	return Config{
		Workers:        2,
		TileSize:       8,
		RequestTimeout: time.Second,
		RetryLimit:     3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  4 * time.Millisecond,
	}
}

// drainOne polls DrainCompleted until a completion arrives.
func drainOne(t *testing.T, p *Pipeline) Completion {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cs := p.DrainCompleted(); len(cs) > 0 {
			if len(cs) > 1 {
				t.Fatalf("drained %d completions, want 1", len(cs))
			}
			return cs[0]
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a completion")
	return Completion{}
}

func TestRequestCompletes(t *testing.T) {
	p := New(fastConfig())
	defer p.Close()

	src := newFakeSource("fake", pngPayload(t))
	addr := pyramid.Address{Level: 1, Row: 0, Column: 2}

	if state := p.Request(addr, src); state != StateQueued {
		t.Errorf("first Request = %v, want Queued", state)
	}

	c := drainOne(t, p)
	if c.Err != nil {
		t.Fatalf("completion error: %v", c.Err)
	}
	if c.Address != addr || c.Key != src.Key(addr) || c.Source != source.TileSource(src) {
		t.Errorf("completion identity = %+v", c)
	}
	if c.Image == nil || c.Elevation != nil {
		t.Fatal("image fetch should decode to an image")
	}
	if b := c.Image.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
		t.Errorf("decoded image = %dx%d, want 8x8", b.Dx(), b.Dy())
	}

	if src.fetchCount(addr) != 1 {
		t.Errorf("fetches = %d, want 1", src.fetchCount(addr))
	}
	if p.PendingCount() != 0 {
		t.Errorf("PendingCount after drain = %d, want 0", p.PendingCount())
	}
}

func TestRequestDeduplicates(t *testing.T) {
	p := New(fastConfig())
	defer p.Close()

	src := newFakeSource("fake", pngPayload(t))
	src.block = make(chan struct{})
	addr := pyramid.Address{Level: 2, Row: 1, Column: 1}

	// Hammer the same key from many goroutines while the fetch is
	// held open.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				p.Request(addr, src)
			}
		}()
	}
	wg.Wait()

	if n := p.PendingCount(); n != 1 {
		t.Errorf("PendingCount = %d, want 1", n)
	}

	close(src.block)
	c := drainOne(t, p)
	if c.Err != nil {
		t.Fatalf("completion error: %v", c.Err)
	}

	if got := src.fetchCount(addr); got != 1 {
		t.Errorf("fetches = %d, want exactly 1", got)
	}
}

func TestNotFoundNeverRetried(t *testing.T) {
	p := New(fastConfig())
	defer p.Close()

	src := newFakeSource("fake", source.Payload{}, source.ErrNotFound)
	addr := pyramid.Address{Level: 0, Row: 0, Column: 0}

	p.Request(addr, src)

	c := drainOne(t, p)
	if !errors.Is(c.Err, source.ErrNotFound) {
		t.Fatalf("completion err = %v, want ErrNotFound", c.Err)
	}
	if got := src.fetchCount(addr); got != 1 {
		t.Errorf("fetches = %d, want 1 (permanent failures must not retry)", got)
	}

	// The failure is recorded for the session.
	if err, ok := p.FailureFor(src.Key(addr)); !ok || !errors.Is(err, source.ErrNotFound) {
		t.Errorf("FailureFor = %v, %v", err, ok)
	}

	// Re-requesting reports the failure without a new fetch.
	if state := p.Request(addr, src); state != StateFailed {
		t.Errorf("re-Request = %v, want Failed", state)
	}
	time.Sleep(20 * time.Millisecond)
	if got := src.fetchCount(addr); got != 1 {
		t.Errorf("fetches after re-request = %d, want 1", got)
	}
}

func TestTransientRetriesToLimit(t *testing.T) {
	p := New(fastConfig())
	defer p.Close()

	src := newFakeSource("fake", source.Payload{},
		source.ErrTimeout, source.ErrTimeout, source.ErrTimeout)
	addr := pyramid.Address{Level: 0, Row: 0, Column: 1}

	p.Request(addr, src)

	c := drainOne(t, p)
	if !errors.Is(c.Err, source.ErrTimeout) {
		t.Fatalf("completion err = %v, want ErrTimeout", c.Err)
	}
	if got := src.fetchCount(addr); got != 3 {
		t.Errorf("fetches = %d, want 3 (retry limit)", got)
	}
	if _, ok := p.FailureFor(src.Key(addr)); !ok {
		t.Error("exhausted retries should be recorded as permanent")
	}
}

func TestTransientThenSuccess(t *testing.T) {
	p := New(fastConfig())
	defer p.Close()

	src := newFakeSource("fake", pngPayload(t), source.ErrNetworkUnavailable, nil)
	addr := pyramid.Address{Level: 0, Row: 1, Column: 0}

	p.Request(addr, src)

	c := drainOne(t, p)
	if c.Err != nil {
		t.Fatalf("completion err = %v, want success after retry", c.Err)
	}
	if c.Image == nil {
		t.Fatal("expected decoded image")
	}
	if got := src.fetchCount(addr); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
	if _, ok := p.FailureFor(src.Key(addr)); ok {
		t.Error("recovered key must not be recorded as failed")
	}
}

func TestDecodeFailurePermanent(t *testing.T) {
	p := New(fastConfig())
	defer p.Close()

	src := newFakeSource("fake", source.Payload{Bytes: []byte("not a png"), Kind: source.KindImage})
	addr := pyramid.Address{Level: 0, Row: 1, Column: 1}

	p.Request(addr, src)

	c := drainOne(t, p)
	if !errors.Is(c.Err, source.ErrDecode) {
		t.Fatalf("completion err = %v, want ErrDecode", c.Err)
	}
	if got := src.fetchCount(addr); got != 1 {
		t.Errorf("fetches = %d, want 1 (decode failures must not retry)", got)
	}
	if state := p.Request(addr, src); state != StateFailed {
		t.Errorf("re-Request = %v, want Failed", state)
	}
}

func TestElevationCompletion(t *testing.T) {
	p := New(fastConfig())
	defer p.Close()

	// 2x2 int16 grid.
	grid := []byte{0x00, 0x0a, 0x00, 0x14, 0x00, 0x1e, 0x00, 0x28}
	src := newFakeSource("dem", source.Payload{Bytes: grid, Kind: source.KindElevationInt16})
	addr := pyramid.Address{Level: 0, Row: 0, Column: 3}

	p.Request(addr, src)

	c := drainOne(t, p)
	if c.Err != nil {
		t.Fatalf("completion error: %v", c.Err)
	}
	if c.Image != nil || c.Elevation == nil {
		t.Fatal("elevation fetch should decode to an elevation grid")
	}
	if c.Elevation.Width != 2 || c.Elevation.Height != 2 {
		t.Errorf("grid = %dx%d, want 2x2", c.Elevation.Width, c.Elevation.Height)
	}
	if c.Elevation.Values[0] != 10 || c.Elevation.Values[3] != 40 {
		t.Errorf("values = %v", c.Elevation.Values)
	}
}

func TestSweepCancelsStaleQueued(t *testing.T) {
	cfg := fastConfig()
	cfg.Workers = 1
	cfg.StaleFrameLimit = 5
	p := New(cfg)
	defer p.Close()

	// Occupy the single worker with a held-open fetch so the next
	// request stays queued.
	blocker := newFakeSource("blocker", pngPayload(t))
	blocker.block = make(chan struct{})
	p.SetFrame(1)
	p.Request(pyramid.Address{Level: 0, Row: 0, Column: 0}, blocker)

	// Wait for the worker to pick it up.
	deadline := time.Now().Add(time.Second)
	for blocker.fetchCount(pyramid.Address{}) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	stale := newFakeSource("stale", pngPayload(t))
	staleAddr := pyramid.Address{Level: 1, Row: 1, Column: 1}
	p.Request(staleAddr, stale)

	if state, ok := p.PendingState(stale.Key(staleAddr)); !ok || state != StateQueued {
		t.Fatalf("stale request state = %v, %v; want Queued", state, ok)
	}

	// Not yet past the limit: nothing swept.
	if n := p.Sweep(6); n != 0 {
		t.Errorf("Sweep(6) = %d, want 0", n)
	}

	// Past the limit: the queued request is cancelled.
	if n := p.Sweep(7); n != 1 {
		t.Errorf("Sweep(7) = %d, want 1", n)
	}
	if _, ok := p.PendingState(stale.Key(staleAddr)); ok {
		t.Error("swept request still pending")
	}

	// Release the worker; the cancelled job must never fetch.
	close(blocker.block)
	drainOne(t, p)
	time.Sleep(20 * time.Millisecond)
	if got := stale.fetchCount(staleAddr); got != 0 {
		t.Errorf("cancelled request fetched %d times, want 0", got)
	}
}

func TestRequestWantedKeepsFresh(t *testing.T) {
	cfg := fastConfig()
	cfg.Workers = 1
	cfg.StaleFrameLimit = 5
	p := New(cfg)
	defer p.Close()

	blocker := newFakeSource("blocker", pngPayload(t))
	blocker.block = make(chan struct{})
	defer close(blocker.block)
	p.Request(pyramid.Address{Level: 0, Row: 0, Column: 0}, blocker)

	deadline := time.Now().Add(time.Second)
	for blocker.fetchCount(pyramid.Address{}) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	src := newFakeSource("fresh", pngPayload(t))
	addr := pyramid.Address{Level: 1, Row: 0, Column: 0}

	// Re-requesting every frame keeps the request alive forever.
	for frame := uint64(1); frame <= 20; frame++ {
		p.SetFrame(frame)
		p.Request(addr, src)
		if n := p.Sweep(frame); n != 0 {
			t.Fatalf("frame %d: swept %d wanted requests", frame, n)
		}
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{RetryBaseDelay: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	p := New(cfg)
	defer p.Close()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // capped
		{20, time.Second},
	}
	for _, tc := range cases {
		if got := p.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestCloseStopsScheduling(t *testing.T) {
	p := New(fastConfig())

	src := newFakeSource("fake", pngPayload(t))
	addr := pyramid.Address{Level: 0, Row: 0, Column: 0}

	p.Close()
	p.Close() // idempotent

	// A request after Close fails immediately and leaves no pending
	// entry behind.
	if st := p.Request(addr, src); st != StateFailed {
		t.Errorf("Request after Close = %v, want StateFailed", st)
	}
	if n := p.PendingCount(); n != 0 {
		t.Errorf("PendingCount after Close = %d, want 0", n)
	}
	time.Sleep(20 * time.Millisecond)
	if got := src.fetchCount(addr); got != 0 {
		t.Errorf("fetches after Close = %d, want 0", got)
	}
}
