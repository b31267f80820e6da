// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/core"
)

// Texture-related errors.
var (
	// ErrTextureReleased is returned when operating on a released texture.
	ErrTextureReleased = errors.New("resource: texture has been released")

	// ErrInvalidDimensions is returned for non-positive texture dimensions.
	ErrInvalidDimensions = errors.New("resource: invalid texture dimensions")

	// ErrNilImage is returned when an image is nil.
	ErrNilImage = errors.New("resource: image is nil")

	// ErrSizeMismatch is returned when image size doesn't match the texture.
	ErrSizeMismatch = errors.New("resource: image size does not match texture")
)

// Format represents the pixel format of a tile texture.
type Format uint8

const (
	// FormatRGBA8 is the standard RGBA format with 8 bits per channel.
	FormatRGBA8 Format = iota

	// FormatBGRA8 is BGRA format, often used for surface presentation.
	FormatBGRA8

	// FormatR8 is single-channel 8-bit format, used for masks.
	FormatR8
)

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatBGRA8:
		return "BGRA8"
	case FormatR8:
		return "R8"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// BytesPerPixel returns the number of bytes per pixel for the format.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGBA8, FormatBGRA8:
		return 4
	case FormatR8:
		return 1
	default:
		return 4
	}
}

// ToWGPUFormat converts to the wgpu gputypes.TextureFormat used when the
// texture is bound to a real device.
func (f Format) ToWGPUFormat() gputypes.TextureFormat {
	switch f {
	case FormatRGBA8:
		return gputypes.TextureFormatRGBA8Unorm
	case FormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	case FormatR8:
		return gputypes.TextureFormatR8Unorm
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// Texture is a tile image resident in the resource cache. It wraps the
// wgpu texture handles together with the CPU-side pixel copy uploaded to
// them, and implements [Resource].
//
// A texture starts as a logical texture with zero handles; the render
// loop binds real wgpu IDs with BindGPU once the upload has been
// submitted to the device. Texture is safe for concurrent read access;
// Upload, BindGPU and Release are render-thread operations.
type Texture struct {
	mu sync.RWMutex

	// GPU resource IDs; zero until BindGPU.
	textureID core.TextureID
	viewID    core.TextureViewID

	width  int
	height int
	format Format

	// pixels is the tightly packed CPU-side copy, len = w*h*bpp.
	pixels []byte

	sizeBytes uint64
	released  atomic.Bool
	label     string
}

// TextureConfig holds configuration for creating a new texture.
type TextureConfig struct {
	// Width and Height are the texture dimensions in pixels.
	Width  int
	Height int

	// Format is the pixel format.
	Format Format

	// Label is an optional debug label.
	Label string
}

// NewTexture creates an uninitialized logical texture. Fill it with
// Upload (or use NewTextureFromImage) before handing it to the cache.
func NewTexture(config TextureConfig) (*Texture, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, ErrInvalidDimensions
	}

	//nolint:gosec // G115: dimensions validated positive above
	sizeBytes := uint64(config.Width * config.Height * config.Format.BytesPerPixel())

	return &Texture{
		width:     config.Width,
		height:    config.Height,
		format:    config.Format,
		sizeBytes: sizeBytes,
		label:     config.Label,
	}, nil
}

// NewTextureFromImage creates an RGBA8 texture and uploads the image's
// pixels immediately.
func NewTextureFromImage(img *image.NRGBA, label string) (*Texture, error) {
	if img == nil {
		return nil, ErrNilImage
	}

	b := img.Bounds()
	tex, err := NewTexture(TextureConfig{
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: FormatRGBA8,
		Label:  label,
	})
	if err != nil {
		return nil, err
	}

	if err := tex.Upload(img); err != nil {
		tex.Release()
		return nil, err
	}
	return tex, nil
}

// Upload copies the image's pixel data into the texture. The image
// dimensions must match the texture dimensions.
func (t *Texture) Upload(img *image.NRGBA) error {
	if img == nil {
		return ErrNilImage
	}
	if t.released.Load() {
		return ErrTextureReleased
	}

	b := img.Bounds()
	if b.Dx() != t.width || b.Dy() != t.height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d",
			ErrSizeMismatch, b.Dx(), b.Dy(), t.width, t.height)
	}

	// Repack row by row; img.Stride may exceed the row length.
	rowLen := t.width * 4
	pixels := make([]byte, t.height*rowLen)
	for y := 0; y < t.height; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+rowLen]
		copy(pixels[y*rowLen:], src)
	}

	t.mu.Lock()
	t.pixels = pixels
	t.mu.Unlock()
	return nil
}

// BindGPU records the wgpu handles created for this texture by the
// render loop's device. Render-thread only.
func (t *Texture) BindGPU(textureID core.TextureID, viewID core.TextureViewID) error {
	if t.released.Load() {
		return ErrTextureReleased
	}
	t.mu.Lock()
	t.textureID = textureID
	t.viewID = viewID
	t.mu.Unlock()
	return nil
}

// Width returns the texture width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() int { return t.height }

// Format returns the texture format.
func (t *Texture) Format() Format { return t.format }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// SizeBytes returns the texture size in bytes.
func (t *Texture) SizeBytes() uint64 { return t.sizeBytes }

// Pixels returns the CPU-side pixel copy, or nil if none was uploaded.
// The returned slice must not be modified.
func (t *Texture) Pixels() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pixels
}

// TextureID returns the underlying wgpu texture ID.
// Returns a zero ID for unbound logical textures.
func (t *Texture) TextureID() core.TextureID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.textureID
}

// ViewID returns the texture view ID.
// Returns a zero ID for unbound logical textures.
func (t *Texture) ViewID() core.TextureViewID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.viewID
}

// IsReleased returns true if the texture has been released.
func (t *Texture) IsReleased() bool { return t.released.Load() }

// Release frees the texture. Idempotent; render-thread only.
func (t *Texture) Release() {
	if !t.released.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	t.textureID = core.TextureID{}
	t.viewID = core.TextureViewID{}
	t.pixels = nil
	t.mu.Unlock()
}
