// Package globe provides the tile-streaming core of a virtual globe:
// a level-of-detail tile pyramid, an asynchronous retrieval pipeline and
// a byte-budgeted GPU resource cache.
//
// # Overview
//
// A virtual globe composites heterogeneous geospatial sources (satellite
// imagery, elevation rasters, static overlays, textures extracted from 3-D
// scenes) as a pyramid of tiles streamed on demand. This module owns the
// machinery between "the camera looks at this sector" and "these textures
// are resident on the GPU":
//
//   - pyramid:  tile addressing and level selection for a viewing sector
//   - source:   pluggable asynchronous tile producers (WMS, WCS, ...)
//   - pipeline: fetch/decode workers with de-duplication, retry and
//     per-frame completion draining
//   - cache:    the bounded, LRU-evicted store of GPU-resident resources
//   - layer:    frame-driven consumers that always have something to draw,
//     falling back to coarser ancestor tiles while finer data loads
//
// # Quick Start
//
//	levels, _ := pyramid.NewLevelSet(pyramid.LevelSetConfig{})
//	g, _ := layer.NewGlobe(levels,
//	    layer.WithCacheBudgetMB(256),
//	    layer.WithWorkers(4),
//	)
//	defer g.Close()
//
//	imagery := g.AddImageLayer(source.NewWMS(levels, wmsConfig))
//
//	// Each frame, on the render thread:
//	g.BeginFrame(frame)
//	for _, d := range imagery.Pick(viewSector, targetResolution) {
//	    draw(d.Texture, d.Tile.Sector, d.TexCoords)
//	}
//
// # Threading Model
//
// One render thread owns all GPU state. Fetch and decode run on a worker
// pool that never touches the graphics context; the sole cross-thread
// hand-off is the pipeline's completion queue, drained once per frame by
// the render thread, which then performs uploads and cache mutations
// synchronously.
//
// # Logging
//
// The module is silent by default. Call [SetLogger] to enable structured
// logging via log/slog.
package globe
