// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

// Package config provides layered configuration loading and validation for
// the boundary processing engine.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/boundarytiles/internal/mvt"
)

// ErrInvalidConfig marks configuration that fails validation. Batch
// processing must reject such configuration synchronously, before any
// session state is created.
var ErrInvalidConfig = errors.New("invalid configuration")

// Concurrency and zoom bounds enforced on processing configuration.
const (
	MinConcurrency = 1
	MaxConcurrency = 8
	MinTileZoom    = 8
	MaxTileZoom    = 18
)

// Config is the root configuration for the engine.
type Config struct {
	NodeID     string           `koanf:"node_id" json:"nodeId"`
	Processing ProcessingConfig `koanf:"processing" json:"processing"`
	Download   DownloadConfig   `koanf:"download" json:"download"`
	Simplify   SimplifyConfig   `koanf:"simplify" json:"simplify"`
	Topology   TopologyConfig   `koanf:"topology" json:"topology"`
	Tiles      TilesConfig      `koanf:"tiles" json:"tiles"`
	Store      StoreConfig      `koanf:"store" json:"store"`
	Cache      CacheConfig      `koanf:"cache" json:"cache"`
	Cleanup    CleanupConfig    `koanf:"cleanup" json:"cleanup"`
	Logging    LoggingConfig    `koanf:"logging" json:"logging"`
}

// ProcessingConfig controls batch expansion and scheduling. Its bounds are
// validated synchronously when a batch is started.
type ProcessingConfig struct {
	ConcurrentDownloads    int     `koanf:"concurrent_downloads" json:"concurrentDownloads" validate:"min=1,max=8"`
	ConcurrentProcesses    int     `koanf:"concurrent_processes" json:"concurrentProcesses" validate:"min=1,max=8"`
	MaxZoomLevel           int     `koanf:"max_zoom_level" json:"maxZoomLevel" validate:"min=8,max=18"`
	CORSProxyBaseURL       string  `koanf:"cors_proxy_base_url" json:"corsProxyBaseUrl" validate:"omitempty,url"`
	EnableFeatureFiltering bool    `koanf:"enable_feature_filtering" json:"enableFeatureFiltering"`
	FeatureFilterMethod    string  `koanf:"feature_filter_method" json:"featureFilterMethod" validate:"oneof=area complexity none"`
	FeatureAreaThreshold   float64 `koanf:"feature_area_threshold" json:"featureAreaThreshold" validate:"min=0"`
}

// UrlMetadata describes one boundary dataset to download. Continent and
// LastUpdated are informational; EstimatedSize feeds the batch session's
// space accounting used by cleanup stats.
type UrlMetadata struct {
	URL           string    `koanf:"url" json:"url" validate:"required,url"`
	DataSource    string    `koanf:"data_source" json:"dataSource" validate:"required"`
	CountryCode   string    `koanf:"country_code" json:"countryCode" validate:"required"`
	AdminLevel    int       `koanf:"admin_level" json:"adminLevel" validate:"min=0"`
	Continent     string    `koanf:"continent" json:"continent,omitempty"`
	EstimatedSize int64     `koanf:"estimated_size" json:"estimatedSize,omitempty" validate:"min=0"`
	LastUpdated   time.Time `koanf:"last_updated" json:"lastUpdated,omitempty"`
}

// DownloadConfig tunes the fetch path: HTTP timeout, the client rate limit
// and the circuit breaker. RetryAttempts and RetryDelay are hints surfaced
// to callers on failure; the worker performs a single attempt per task.
type DownloadConfig struct {
	Timeout            time.Duration `koanf:"timeout" json:"timeout"`
	RetryAttempts      int           `koanf:"retry_attempts" json:"retryAttempts" validate:"min=0,max=10"`
	RetryDelay         time.Duration `koanf:"retry_delay" json:"retryDelay"`
	RateLimitPerSecond float64       `koanf:"rate_limit_per_second" json:"rateLimitPerSecond" validate:"min=0"`
	RateLimitBurst     int           `koanf:"rate_limit_burst" json:"rateLimitBurst" validate:"min=0"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures" json:"breakerMaxFailures"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout" json:"breakerOpenTimeout"`
}

// SimplifyConfig carries Douglas-Peucker defaults for the first
// simplification stage.
type SimplifyConfig struct {
	Tolerance        float64 `koanf:"tolerance" json:"tolerance" validate:"min=0"`
	PreserveTopology bool    `koanf:"preserve_topology" json:"preserveTopology"`
	MinimumArea      float64 `koanf:"minimum_area" json:"minimumArea" validate:"min=0"`
	MaxVertices      int     `koanf:"max_vertices" json:"maxVertices" validate:"min=0"`
}

// TopologyConfig carries defaults for the shared-arc topology stage.
type TopologyConfig struct {
	Quantization float64 `koanf:"quantization" json:"quantization" validate:"min=0"`
	Presimplify  bool    `koanf:"presimplify" json:"presimplify"`
}

// TilesConfig declares the tile extent and the layer set tiles are built
// from.
type TilesConfig struct {
	Extent int               `koanf:"extent" json:"extent" validate:"min=256"`
	Layers []mvt.LayerConfig `koanf:"layers" json:"layers" validate:"min=1,dive"`
}

// StoreConfig locates the ephemeral badger store.
type StoreConfig struct {
	Path     string `koanf:"path" json:"path"`
	InMemory bool   `koanf:"in_memory" json:"inMemory"`
}

// CacheConfig sizes the download byte cache.
type CacheConfig struct {
	Capacity int `koanf:"capacity" json:"capacity" validate:"min=1"`
}

// CleanupConfig tunes the ephemeral data cleanup service.
type CleanupConfig struct {
	Interval time.Duration `koanf:"interval" json:"interval"`
	TTL      time.Duration `koanf:"ttl" json:"ttl"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" json:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller" json:"caller"`
}

var validate = validator.New()

// Validate checks struct tags plus the explicit processing bounds. All
// violations are wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Processing.Validate(); err != nil {
		return err
	}
	if c.Cleanup.TTL <= 0 {
		return fmt.Errorf("%w: cleanup ttl must be positive, got %s", ErrInvalidConfig, c.Cleanup.TTL)
	}
	if c.Cleanup.Interval <= 0 {
		return fmt.Errorf("%w: cleanup interval must be positive, got %s", ErrInvalidConfig, c.Cleanup.Interval)
	}
	return nil
}

// Validate enforces the processing bounds explicitly so callers holding only
// a ProcessingConfig (batch start requests) get the same errors.
func (p ProcessingConfig) Validate() error {
	if p.ConcurrentDownloads < MinConcurrency || p.ConcurrentDownloads > MaxConcurrency {
		return fmt.Errorf("%w: concurrentDownloads must be in [%d, %d], got %d",
			ErrInvalidConfig, MinConcurrency, MaxConcurrency, p.ConcurrentDownloads)
	}
	if p.ConcurrentProcesses < MinConcurrency || p.ConcurrentProcesses > MaxConcurrency {
		return fmt.Errorf("%w: concurrentProcesses must be in [%d, %d], got %d",
			ErrInvalidConfig, MinConcurrency, MaxConcurrency, p.ConcurrentProcesses)
	}
	if p.MaxZoomLevel < MinTileZoom || p.MaxZoomLevel > MaxTileZoom {
		return fmt.Errorf("%w: maxZoomLevel must be in [%d, %d], got %d",
			ErrInvalidConfig, MinTileZoom, MaxTileZoom, p.MaxZoomLevel)
	}
	return nil
}

// ValidateURLs checks every download descriptor in a batch request.
func ValidateURLs(urls []UrlMetadata) error {
	if len(urls) == 0 {
		return fmt.Errorf("%w: at least one download url is required", ErrInvalidConfig)
	}
	for i, u := range urls {
		if err := validate.Struct(u); err != nil {
			return fmt.Errorf("%w: url %d: %w", ErrInvalidConfig, i, err)
		}
	}
	return nil
}
