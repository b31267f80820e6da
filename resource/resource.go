// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource defines the identity and ownership contracts for
// GPU-resident data managed by the cache: opaque keys, the Resource
// interface, and the concrete texture, elevation-raster and mesh-buffer
// resources produced by tile retrieval.
package resource

// Key is an opaque identity token for one cached GPU-resident resource.
//
// A key is uniquely owned by exactly one cache entry at a time and is
// never reused for semantically different content: source-derived keys
// are deterministic per (source, address, parameters), generated keys
// are issued monotonically. The cache model is a lease, not
// content-addressed de-duplication.
type Key string

// Resource is data resident on (or destined for) the GPU whose lifetime
// is owned by the cache. The cache releases a resource when the entry is
// evicted, replaced or removed; consumers hold only borrowed references
// and must never call Release themselves.
//
// Release must be idempotent. GPU handles are created and released only
// on the render thread.
type Resource interface {
	// SizeBytes returns the resident size used for cache accounting.
	SizeBytes() uint64

	// Release frees the underlying GPU objects.
	Release()
}
