// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package layer_test

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/gogpu/globe/layer"
	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/source"
)

// ExampleNewGlobe demonstrates streaming imagery through the tile
// machinery: a scene-texture source stands in for a network service so
// the example runs without one.
func ExampleNewGlobe() {
	levels, err := pyramid.NewLevelSet(pyramid.LevelSetConfig{
		NumLevels: 4,
		TileSize:  16,
	})
	if err != nil {
		fmt.Println("bad pyramid:", err)
		return
	}

	g, err := layer.NewGlobe(levels, layer.WithCacheBudgetMB(64))
	if err != nil {
		fmt.Println("bad globe:", err)
		return
	}
	defer g.Close()

	// Register one texture for the tile we are going to view.
	src := source.NewSceneTexture("demo")
	addr := pyramid.Address{Level: 1, Row: 2, Column: 3}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 16, 16))); err != nil {
		fmt.Println("bad fixture:", err)
		return
	}
	src.Register(addr, buf.Bytes())

	imagery := g.AddImageLayer(src)
	view := levels.SectorFor(addr)
	target := levels.Resolution(1)

	// Drive frames until retrieval lands; a render loop does this
	// once per frame.
	var drawables []layer.Drawable
	for frame := uint64(1); frame < 1000; frame++ {
		g.BeginFrame(frame)
		drawables = imagery.Pick(view, target)
		if len(drawables) > 0 && !drawables[0].FromAncestor {
			break
		}
		time.Sleep(time.Millisecond)
	}

	fmt.Printf("drew %d tile(s) at %v\n", len(drawables), drawables[0].Tile.Address)
	// Output: drew 1 tile(s) at 1/2/3
}
