// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// MeshBuffer is a composited vertex/index buffer pair produced by mesh
// assembly (for example a scene's terrain skirt or an extruded vector
// overlay). Mesh buffers have no natural deterministic key; they are
// cached under generated keys from the cache's key generator.
//
// MeshBuffer implements [Resource]. The hal handles may be nil for
// logical buffers that have not been created on a device yet; Release
// destroys them through the owning device when present.
type MeshBuffer struct {
	mu sync.Mutex

	device   hal.Device
	vertices hal.Buffer
	indices  hal.Buffer

	vertexBytes uint64
	indexBytes  uint64
	vertexCount int
	indexCount  int

	label    string
	released atomic.Bool
}

// MeshBufferConfig holds configuration for registering a mesh buffer.
type MeshBufferConfig struct {
	// Device is the hal device owning the buffers; may be nil for
	// logical buffers.
	Device hal.Device

	// Vertices and Indices are the created hal buffers; may be nil.
	Vertices hal.Buffer
	Indices  hal.Buffer

	// VertexBytes and IndexBytes are the buffer sizes for cache
	// accounting.
	VertexBytes uint64
	IndexBytes  uint64

	// VertexCount and IndexCount describe the mesh for draw calls.
	VertexCount int
	IndexCount  int

	// Label is an optional debug label.
	Label string
}

// NewMeshBuffer registers an assembled mesh for cache ownership.
func NewMeshBuffer(config MeshBufferConfig) *MeshBuffer {
	return &MeshBuffer{
		device:      config.Device,
		vertices:    config.Vertices,
		indices:     config.Indices,
		vertexBytes: config.VertexBytes,
		indexBytes:  config.IndexBytes,
		vertexCount: config.VertexCount,
		indexCount:  config.IndexCount,
		label:       config.Label,
	}
}

// Vertices returns the vertex buffer handle, or nil after release.
func (m *MeshBuffer) Vertices() hal.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vertices
}

// Indices returns the index buffer handle, or nil after release.
func (m *MeshBuffer) Indices() hal.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indices
}

// VertexCount returns the number of vertices in the mesh.
func (m *MeshBuffer) VertexCount() int { return m.vertexCount }

// IndexCount returns the number of indices in the mesh.
func (m *MeshBuffer) IndexCount() int { return m.indexCount }

// Label returns the debug label.
func (m *MeshBuffer) Label() string { return m.label }

// SizeBytes returns the combined buffer size for cache accounting.
func (m *MeshBuffer) SizeBytes() uint64 { return m.vertexBytes + m.indexBytes }

// IsReleased returns true if the buffers have been released.
func (m *MeshBuffer) IsReleased() bool { return m.released.Load() }

// Release destroys the hal buffers. Idempotent; render-thread only.
func (m *MeshBuffer) Release() {
	if !m.released.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	device := m.device
	vertices := m.vertices
	indices := m.indices
	m.device = nil
	m.vertices = nil
	m.indices = nil
	m.mu.Unlock()

	if device == nil {
		return
	}
	if vertices != nil {
		device.DestroyBuffer(vertices)
	}
	if indices != nil {
		device.DestroyBuffer(indices)
	}
}
