// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package source defines the tile producer contract and its
// implementations: WMS imagery, WCS elevation coverages, static image
// overlays and textures extracted from loaded 3-D scenes.
//
// A TileSource produces raw bytes for a tile address asynchronously. The
// wire format behind a source is its own business; the retrieval pipeline
// only sees bytes plus a declared content kind for the decode stage.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/resource"
)

// Failure taxonomy. Permanent failures are never retried; transient
// failures retry with bounded exponential backoff.
var (
	// ErrNotFound means no data exists at this address. Permanent.
	ErrNotFound = errors.New("source: no data at this address")

	// ErrDecode means the payload is corrupt. Permanent.
	ErrDecode = errors.New("source: payload corrupt")

	// ErrTimeout means the per-request deadline fired. Transient.
	ErrTimeout = errors.New("source: request deadline exceeded")

	// ErrNetworkUnavailable means the transport failed. Transient.
	ErrNetworkUnavailable = errors.New("source: network unavailable")
)

// Permanent reports whether the failure should never be retried.
func Permanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrDecode)
}

// Transient reports whether the failure is eligible for retry.
func Transient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetworkUnavailable)
}

// Kind declares how a payload's bytes are to be decoded.
type Kind uint8

const (
	// KindImage is an encoded raster image (PNG, JPEG).
	KindImage Kind = iota

	// KindElevationInt16 is a raw grid of big-endian int16 meters.
	KindElevationInt16

	// KindElevationFloat32 is a raw grid of big-endian float32 meters.
	KindElevationFloat32
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindElevationInt16:
		return "elevation-int16"
	case KindElevationFloat32:
		return "elevation-float32"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Payload is the raw result of a fetch: undecoded bytes plus the content
// kind the decode stage needs.
type Payload struct {
	Bytes []byte
	Kind  Kind
}

// TileSource produces raw bytes for a tile address. Implementations must
// be safe for concurrent Fetch calls on different addresses and must
// honor context cancellation and deadlines.
//
// The set of implementations is closed by design: WMS imagery, WCS
// elevation, static single-image overlays and scene-extracted textures.
// New producers implement this interface rather than extending a base
// type.
type TileSource interface {
	// Name returns the source's namespace discriminator. Keys from
	// sources with different names never collide.
	Name() string

	// Key returns the deterministic cache key for the address, unique
	// within this source's namespace. Pure function.
	Key(a pyramid.Address) resource.Key

	// Fetch retrieves the raw payload for the address. Failures are
	// classified against the package taxonomy via errors.Is.
	Fetch(ctx context.Context, a pyramid.Address) (Payload, error)
}

// classifyTransport maps a transport error onto the failure taxonomy.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
}
