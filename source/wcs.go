// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/resource"
)

// WCSConfig configures a WCS elevation source.
type WCSConfig struct {
	// Endpoint is the service base URL.
	Endpoint string

	// Coverage is the WCS coverage identifier.
	Coverage string

	// RasterKind declares how the coverage bytes decode.
	// Defaults to KindElevationInt16.
	RasterKind Kind

	// RasterSize is the per-tile sample grid edge length.
	// Defaults to the pyramid's tile size.
	RasterSize int

	// Client is the HTTP client used for requests.
	// Defaults to http.DefaultClient.
	Client *http.Client
}

// WCS fetches elevation rasters from a WCS service, one GetCoverage
// request per tile. Safe for concurrent use.
type WCS struct {
	cfg    WCSConfig
	levels *pyramid.LevelSet
	client *http.Client
	name   string
	size   int
}

// NewWCS creates a WCS elevation source over the given pyramid.
func NewWCS(levels *pyramid.LevelSet, cfg WCSConfig) *WCS {
	if cfg.RasterKind == KindImage {
		cfg.RasterKind = KindElevationInt16
	}
	size := cfg.RasterSize
	if size <= 0 {
		size = levels.TileSize()
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &WCS{
		cfg:    cfg,
		levels: levels,
		client: client,
		name:   "wcs/" + cfg.Coverage,
		size:   size,
	}
}

// Name returns the source's namespace discriminator.
func (s *WCS) Name() string { return s.name }

// Key returns the deterministic cache key for the address.
func (s *WCS) Key(a pyramid.Address) resource.Key {
	return resource.Key(fmt.Sprintf("%s/%d/%s", s.name, s.size, a))
}

// RasterSize returns the per-tile sample grid edge length.
func (s *WCS) RasterSize() int { return s.size }

// Fetch issues a GetCoverage request for the tile's sector.
func (s *WCS) Fetch(ctx context.Context, a pyramid.Address) (Payload, error) {
	if !s.levels.Valid(a) {
		return Payload{}, fmt.Errorf("%w: %v outside pyramid", ErrNotFound, a)
	}

	sector := s.levels.SectorFor(a)

	q := url.Values{}
	q.Set("SERVICE", "WCS")
	q.Set("VERSION", "1.0.0")
	q.Set("REQUEST", "GetCoverage")
	q.Set("COVERAGE", s.cfg.Coverage)
	q.Set("CRS", "EPSG:4326")
	q.Set("FORMAT", "GeoTIFF_Float")
	q.Set("WIDTH", fmt.Sprintf("%d", s.size))
	q.Set("HEIGHT", fmt.Sprintf("%d", s.size))
	q.Set("BBOX", fmt.Sprintf("%f,%f,%f,%f",
		sector.MinLon, sector.MinLat, sector.MaxLon, sector.MaxLat))

	body, err := fetchHTTP(ctx, s.client, s.cfg.Endpoint+"?"+q.Encode())
	if err != nil {
		return Payload{}, err
	}

	// Sanity-check the grid length up front so corrupt coverages fail
	// as decode errors, not later in the pipeline.
	want := s.size * s.size * bytesPerSample(s.cfg.RasterKind)
	if len(body) != want {
		return Payload{}, fmt.Errorf("%w: coverage %d bytes, want %d", ErrDecode, len(body), want)
	}
	return Payload{Bytes: body, Kind: s.cfg.RasterKind}, nil
}

// bytesPerSample returns the encoded sample width for elevation kinds.
func bytesPerSample(k Kind) int {
	if k == KindElevationFloat32 {
		return 4
	}
	return 2
}
