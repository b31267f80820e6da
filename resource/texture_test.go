// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestNewTexture(t *testing.T) {
	tex, err := NewTexture(TextureConfig{
		Width:  256,
		Height: 256,
		Format: FormatRGBA8,
		Label:  "tile",
	})
	if err != nil {
		t.Fatalf("NewTexture: %v", err)
	}

	if tex.Width() != 256 || tex.Height() != 256 {
		t.Errorf("dimensions = %dx%d, want 256x256", tex.Width(), tex.Height())
	}
	if tex.Format() != FormatRGBA8 {
		t.Errorf("Format = %v, want RGBA8", tex.Format())
	}
	if tex.Label() != "tile" {
		t.Errorf("Label = %q, want tile", tex.Label())
	}
	if tex.SizeBytes() != 256*256*4 {
		t.Errorf("SizeBytes = %d, want %d", tex.SizeBytes(), 256*256*4)
	}
	if tex.Pixels() != nil {
		t.Error("logical texture should have no pixels yet")
	}
}

func TestNewTextureInvalid(t *testing.T) {
	cases := []TextureConfig{
		{Width: 0, Height: 256},
		{Width: 256, Height: 0},
		{Width: -1, Height: 256},
	}
	for i, cfg := range cases {
		if _, err := NewTexture(cfg); !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("case %d: err = %v, want ErrInvalidDimensions", i, err)
		}
	}
}

func TestNewTextureFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(3, 1, color.NRGBA{B: 255, A: 255})

	tex, err := NewTextureFromImage(img, "test")
	if err != nil {
		t.Fatalf("NewTextureFromImage: %v", err)
	}

	if tex.Width() != 4 || tex.Height() != 2 {
		t.Errorf("dimensions = %dx%d, want 4x2", tex.Width(), tex.Height())
	}
	pix := tex.Pixels()
	if len(pix) != 4*2*4 {
		t.Fatalf("pixel length = %d, want %d", len(pix), 4*2*4)
	}
	if pix[0] != 255 || pix[3] != 255 {
		t.Errorf("first pixel = %v, want opaque red", pix[:4])
	}
	last := pix[len(pix)-4:]
	if last[2] != 255 || last[3] != 255 {
		t.Errorf("last pixel = %v, want opaque blue", last)
	}

	if _, err := NewTextureFromImage(nil, ""); !errors.Is(err, ErrNilImage) {
		t.Errorf("nil image: err = %v, want ErrNilImage", err)
	}
}

func TestTextureUploadRepacksStride(t *testing.T) {
	// A subimage carries its parent's wider stride.
	parent := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			parent.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	sub, ok := parent.SubImage(image.Rect(2, 2, 6, 6)).(*image.NRGBA)
	if !ok {
		t.Fatal("SubImage did not return *image.NRGBA")
	}

	tex, err := NewTexture(TextureConfig{Width: 4, Height: 4, Format: FormatRGBA8})
	if err != nil {
		t.Fatalf("NewTexture: %v", err)
	}
	if err := tex.Upload(sub); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	pix := tex.Pixels()
	if len(pix) != 4*4*4 {
		t.Fatalf("pixel length = %d, want %d", len(pix), 4*4*4)
	}
	// Top-left of the subimage is parent pixel (2,2).
	if pix[0] != 2 || pix[1] != 2 {
		t.Errorf("first pixel = %v, want R=2 G=2", pix[:4])
	}
}

func TestTextureUploadSizeMismatch(t *testing.T) {
	tex, _ := NewTexture(TextureConfig{Width: 4, Height: 4, Format: FormatRGBA8})
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))

	if err := tex.Upload(img); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("err = %v, want ErrSizeMismatch", err)
	}
	if err := tex.Upload(nil); !errors.Is(err, ErrNilImage) {
		t.Errorf("nil upload: err = %v, want ErrNilImage", err)
	}
}

func TestTextureRelease(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	tex, err := NewTextureFromImage(img, "")
	if err != nil {
		t.Fatalf("NewTextureFromImage: %v", err)
	}

	if tex.IsReleased() {
		t.Error("fresh texture should not be released")
	}

	tex.Release()

	if !tex.IsReleased() {
		t.Error("IsReleased = false after Release")
	}
	if tex.Pixels() != nil {
		t.Error("pixels should be dropped on release")
	}
	if err := tex.Upload(img); !errors.Is(err, ErrTextureReleased) {
		t.Errorf("Upload after release: err = %v, want ErrTextureReleased", err)
	}

	// Idempotent.
	tex.Release()
}

func TestFormat(t *testing.T) {
	if FormatRGBA8.BytesPerPixel() != 4 || FormatR8.BytesPerPixel() != 1 {
		t.Error("unexpected bytes per pixel")
	}
	if FormatRGBA8.String() != "RGBA8" || FormatBGRA8.String() != "BGRA8" || FormatR8.String() != "R8" {
		t.Error("unexpected format names")
	}
}

func TestElevationRaster(t *testing.T) {
	// 2x2 grid: south row 10, 20; north row 30, 40.
	r, err := NewElevationRaster(2, 2, []float32{10, 20, 30, 40})
	if err != nil {
		t.Fatalf("NewElevationRaster: %v", err)
	}

	if r.SizeBytes() != 16 {
		t.Errorf("SizeBytes = %d, want 16", r.SizeBytes())
	}

	cases := []struct {
		s, t float64
		want float32
	}{
		{0, 0, 10},
		{1, 0, 20},
		{0, 1, 30},
		{1, 1, 40},
		{0.5, 0, 15},
		{0, 0.5, 20},
		{0.5, 0.5, 25},
		{-1, -1, 10}, // clamped
		{2, 2, 40},   // clamped
	}
	for _, tc := range cases {
		if got := r.Sample(tc.s, tc.t); got != tc.want {
			t.Errorf("Sample(%v, %v) = %v, want %v", tc.s, tc.t, got, tc.want)
		}
	}
}

func TestElevationRasterInvalid(t *testing.T) {
	if _, err := NewElevationRaster(0, 2, nil); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("zero width: err = %v", err)
	}
	if _, err := NewElevationRaster(2, 2, []float32{1, 2, 3}); !errors.Is(err, ErrRasterSize) {
		t.Errorf("short values: err = %v", err)
	}
}

func TestElevationRasterRelease(t *testing.T) {
	r, _ := NewElevationRaster(1, 1, []float32{7})

	r.Release()

	if !r.IsReleased() {
		t.Error("IsReleased = false after Release")
	}
	if got := r.Sample(0.5, 0.5); got != 0 {
		t.Errorf("Sample after release = %v, want 0", got)
	}
	r.Release()
}

func TestMeshBuffer(t *testing.T) {
	m := NewMeshBuffer(MeshBufferConfig{
		VertexBytes: 1024,
		IndexBytes:  256,
		VertexCount: 64,
		IndexCount:  96,
		Label:       "terrain",
	})

	if m.SizeBytes() != 1280 {
		t.Errorf("SizeBytes = %d, want 1280", m.SizeBytes())
	}
	if m.VertexCount() != 64 || m.IndexCount() != 96 {
		t.Errorf("counts = %d/%d, want 64/96", m.VertexCount(), m.IndexCount())
	}
	if m.Label() != "terrain" {
		t.Errorf("Label = %q", m.Label())
	}

	// Release with nil device and buffers must not panic.
	m.Release()
	if !m.IsReleased() {
		t.Error("IsReleased = false after Release")
	}
	if m.Vertices() != nil || m.Indices() != nil {
		t.Error("handles should be nil after release")
	}
	m.Release()
}
