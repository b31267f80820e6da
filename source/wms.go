// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gogpu/globe/pyramid"
	"github.com/gogpu/globe/resource"
)

// DefaultWMSFormat is the image format requested from WMS services.
const DefaultWMSFormat = "image/png"

// WMSConfig configures a WMS imagery source.
type WMSConfig struct {
	// Endpoint is the service base URL, e.g.
	// "https://wms.example.com/mapserv".
	Endpoint string

	// Layers is the comma-separated WMS layer list.
	Layers string

	// Format is the requested image MIME type.
	// Defaults to DefaultWMSFormat.
	Format string

	// Styles is the optional WMS STYLES parameter.
	Styles string

	// Client is the HTTP client used for requests.
	// Defaults to http.DefaultClient. Credentials and transport tuning
	// belong to the injected client, not to this package.
	Client *http.Client
}

// WMS fetches imagery tiles from a WMS 1.3.0 service, one GetMap request
// per tile. Safe for concurrent use.
type WMS struct {
	cfg    WMSConfig
	levels *pyramid.LevelSet
	client *http.Client
	name   string
}

// NewWMS creates a WMS imagery source over the given pyramid.
func NewWMS(levels *pyramid.LevelSet, cfg WMSConfig) *WMS {
	if cfg.Format == "" {
		cfg.Format = DefaultWMSFormat
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &WMS{
		cfg:    cfg,
		levels: levels,
		client: client,
		name:   "wms/" + cfg.Layers,
	}
}

// Name returns the source's namespace discriminator.
func (s *WMS) Name() string { return s.name }

// Key returns the deterministic cache key for the address.
func (s *WMS) Key(a pyramid.Address) resource.Key {
	return resource.Key(fmt.Sprintf("%s/%s/%s", s.name, s.cfg.Format, a))
}

// Fetch issues a GetMap request for the tile's sector.
func (s *WMS) Fetch(ctx context.Context, a pyramid.Address) (Payload, error) {
	if !s.levels.Valid(a) {
		return Payload{}, fmt.Errorf("%w: %v outside pyramid", ErrNotFound, a)
	}

	sector := s.levels.SectorFor(a)
	size := s.levels.TileSize()

	q := url.Values{}
	q.Set("SERVICE", "WMS")
	q.Set("VERSION", "1.3.0")
	q.Set("REQUEST", "GetMap")
	q.Set("LAYERS", s.cfg.Layers)
	q.Set("STYLES", s.cfg.Styles)
	q.Set("CRS", "CRS:84")
	q.Set("FORMAT", s.cfg.Format)
	q.Set("TRANSPARENT", "TRUE")
	q.Set("WIDTH", fmt.Sprintf("%d", size))
	q.Set("HEIGHT", fmt.Sprintf("%d", size))
	q.Set("BBOX", fmt.Sprintf("%f,%f,%f,%f",
		sector.MinLon, sector.MinLat, sector.MaxLon, sector.MaxLat))

	body, err := fetchHTTP(ctx, s.client, s.cfg.Endpoint+"?"+q.Encode())
	if err != nil {
		return Payload{}, err
	}
	return Payload{Bytes: body, Kind: KindImage}, nil
}

// fetchHTTP performs one GET and classifies failures against the
// package taxonomy. Shared by the WMS and WCS transports.
func fetchHTTP(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrNetworkUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}
	return body, nil
}
