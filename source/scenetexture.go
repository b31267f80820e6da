// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/resource"
)

// SceneTexture serves textures extracted from a loaded 3-D scene (for
// example the material images of a Collada model draped on the globe).
// The scene loader registers each extracted texture under the tile
// address it drapes; retrieval then flows through the same pipeline and
// cache as network imagery, so scene textures compete for the same GPU
// budget.
//
// Each tile's textures load and fall back independently; a scene is
// revealed progressively as its textures arrive, not all-or-nothing.
//
// Safe for concurrent use.
type SceneTexture struct {
	name string

	mu       sync.RWMutex
	textures map[pyramid.Address][]byte
}

// NewSceneTexture creates an empty scene texture source. The scene name
// namespaces the keys; one source per loaded scene.
func NewSceneTexture(sceneName string) *SceneTexture {
	return &SceneTexture{
		name:     "scene/" + sceneName,
		textures: make(map[pyramid.Address][]byte),
	}
}

// Name returns the source's namespace discriminator.
func (s *SceneTexture) Name() string { return s.name }

// Key returns the deterministic cache key for the address.
func (s *SceneTexture) Key(a pyramid.Address) resource.Key {
	return resource.Key(fmt.Sprintf("%s/%s", s.name, a))
}

// Register stores an extracted texture (encoded image bytes) under the
// address it drapes. Re-registering an address replaces its bytes; the
// caller is expected to Remove the stale cache entry so the next frame
// re-requests it.
func (s *SceneTexture) Register(a pyramid.Address, encoded []byte) {
	s.mu.Lock()
	s.textures[a] = encoded
	s.mu.Unlock()
}

// Unregister removes the texture for the address, if any.
func (s *SceneTexture) Unregister(a pyramid.Address) {
	s.mu.Lock()
	delete(s.textures, a)
	s.mu.Unlock()
}

// Len returns the number of registered textures.
func (s *SceneTexture) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.textures)
}

// Fetch returns the registered texture bytes for the address.
func (s *SceneTexture) Fetch(ctx context.Context, a pyramid.Address) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return Payload{}, classifyTransport(err)
	}

	s.mu.RLock()
	encoded, ok := s.textures[a]
	s.mu.RUnlock()

	if !ok {
		return Payload{}, fmt.Errorf("%w: no scene texture at %v", ErrNotFound, a)
	}
	return Payload{Bytes: encoded, Kind: KindImage}, nil
}
