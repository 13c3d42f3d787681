// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/boundarytiles/internal/mvt"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/boundarytiles/config.yaml",
	"/etc/boundarytiles/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. File and env
// layers override these.
func defaultConfig() *Config {
	return &Config{
		NodeID: "",
		Processing: ProcessingConfig{
			ConcurrentDownloads:    4,
			ConcurrentProcesses:    4,
			MaxZoomLevel:           12,
			CORSProxyBaseURL:       "",
			EnableFeatureFiltering: false,
			FeatureFilterMethod:    "none",
			FeatureAreaThreshold:   0,
		},
		Download: DownloadConfig{
			Timeout:            30 * time.Second,
			RetryAttempts:      3,
			RetryDelay:         2 * time.Second,
			RateLimitPerSecond: 5,
			RateLimitBurst:     5,
			BreakerMaxFailures: 5,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Simplify: SimplifyConfig{
			Tolerance:        0.001,
			PreserveTopology: true,
			MinimumArea:      0,
			MaxVertices:      0, // 0 = uncapped
		},
		Topology: TopologyConfig{
			Quantization: 1e4,
			Presimplify:  false,
		},
		Tiles: TilesConfig{
			Extent: mvt.DefaultExtent,
			Layers: []mvt.LayerConfig{
				{Name: "admin_1", AdminLevel: 1, MinZoom: 0, MaxZoom: 8, Properties: []string{"name", "admin_level"}},
				{Name: "admin_2", AdminLevel: 2, MinZoom: 6, MaxZoom: 12, Properties: []string{"name", "admin_level"}},
				{Name: "admin_3", AdminLevel: 3, MinZoom: 10, MaxZoom: 16, Properties: []string{"name", "admin_level"}},
			},
		},
		Store: StoreConfig{
			Path:     "/data/boundarytiles/store",
			InMemory: false,
		},
		Cache: CacheConfig{
			Capacity: 10,
		},
		Cleanup: CleanupConfig{
			Interval: time.Hour,
			TTL:      24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration with layered sources:
//  1. Defaults from struct
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped keys are skipped so random environment variables cannot pollute
// the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"node_id": "node_id",

		// Processing mappings
		"concurrent_downloads":     "processing.concurrent_downloads",
		"concurrent_processes":     "processing.concurrent_processes",
		"max_zoom_level":           "processing.max_zoom_level",
		"cors_proxy_base_url":      "processing.cors_proxy_base_url",
		"enable_feature_filtering": "processing.enable_feature_filtering",
		"feature_filter_method":    "processing.feature_filter_method",
		"feature_area_threshold":   "processing.feature_area_threshold",

		// Download mappings
		"download_timeout":        "download.timeout",
		"download_retry_attempts": "download.retry_attempts",
		"download_retry_delay":    "download.retry_delay",
		"download_rate_limit":     "download.rate_limit_per_second",
		"download_rate_burst":     "download.rate_limit_burst",
		"breaker_max_failures":    "download.breaker_max_failures",
		"breaker_open_timeout":    "download.breaker_open_timeout",

		// Simplification mappings
		"simplify_tolerance":         "simplify.tolerance",
		"simplify_preserve_topology": "simplify.preserve_topology",
		"simplify_minimum_area":      "simplify.minimum_area",
		"simplify_max_vertices":      "simplify.max_vertices",
		"topology_quantization":      "topology.quantization",
		"topology_presimplify":       "topology.presimplify",

		// Tile mappings
		"tile_extent": "tiles.extent",

		// Storage mappings
		"store_path":      "store.path",
		"store_in_memory": "store.in_memory",
		"cache_capacity":  "cache.capacity",

		// Cleanup mappings
		"cleanup_interval": "cleanup.interval",
		"cleanup_ttl":      "cleanup.ttl",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
