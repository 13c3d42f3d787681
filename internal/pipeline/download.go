// Boundarytiles - Administrative Boundary Processing and Vector Tile Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/boundarytiles

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/boundarytiles/internal/cache"
	"github.com/tomtom215/boundarytiles/internal/config"
	"github.com/tomtom215/boundarytiles/internal/geojson"
	"github.com/tomtom215/boundarytiles/internal/logging"
	"github.com/tomtom215/boundarytiles/internal/metrics"
	"github.com/tomtom215/boundarytiles/internal/spatial"
	"github.com/tomtom215/boundarytiles/internal/task"
)

// LargeDownloadThreshold flags oversized downloads. Large data stays valid;
// the flag only surfaces in warnings.
const LargeDownloadThreshold = 10 * 1024 * 1024

// Data validation codes.
const (
	CodeEmptyData        = "EMPTY_DATA"
	CodeParseError       = "PARSE_ERROR"
	CodeInvalidStructure = "INVALID_STRUCTURE"
)

// Fetcher retrieves raw boundary data. The production implementation is an
// HTTP client; tests substitute fakes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches boundary data over HTTP, optionally routed through a
// CORS proxy.
type HTTPFetcher struct {
	client       *http.Client
	proxyBaseURL string
}

// NewHTTPFetcher creates a fetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration, proxyBaseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		client:       &http.Client{Timeout: timeout},
		proxyBaseURL: proxyBaseURL,
	}
}

// Fetch performs one GET. Non-2xx responses are errors; the worker decides
// whether to retry.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.proxyBaseURL != "" {
		url = f.proxyBaseURL + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// DataValidation is the outcome of checking downloaded bytes.
type DataValidation struct {
	Valid    bool     `json:"valid"`
	Code     string   `json:"code,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateData checks raw boundary data before parsing features out of it.
// Empty data, malformed JSON and non-FeatureCollection documents are
// invalid. Data over 10MB stays valid with a warning.
func ValidateData(data []byte) DataValidation {
	if len(data) == 0 {
		return DataValidation{Valid: false, Code: CodeEmptyData}
	}

	if _, err := geojson.ParseFeatureCollection(data); err != nil {
		code := CodeParseError
		if errors.Is(err, geojson.ErrNotFeatureCollection) {
			code = CodeInvalidStructure
		}
		return DataValidation{Valid: false, Code: code}
	}

	v := DataValidation{Valid: true}
	if len(data) > LargeDownloadThreshold {
		v.Warnings = append(v.Warnings, "large download: consider splitting by admin level")
	}
	return v
}

// DownloadResult is the outcome of one download task.
type DownloadResult struct {
	Result
	FeatureCount   int                  `json:"featureCount"`
	DownloadSize   int                  `json:"downloadSize"`
	SpatialIndices []spatial.IndexEntry `json:"spatialIndices"`
	FromCache      bool                 `json:"fromCache"`
	Warnings       []string             `json:"warnings,omitempty"`
	BufferID       string               `json:"bufferId,omitempty"`

	// Retry hints echoed on network failure for a caller-level retry. The
	// worker itself never retries.
	RetryAttempts int   `json:"retryAttempts,omitempty"`
	RetryDelayMS  int64 `json:"retryDelayMs,omitempty"`
}

// DownloadWorker fetches, validates, indexes and caches boundary data. The
// fetch path runs through a circuit breaker and a client-side rate limiter;
// cached datasets bypass both.
type DownloadWorker struct {
	fetcher       Fetcher
	breaker       *gobreaker.CircuitBreaker[[]byte]
	limiter       *rate.Limiter
	cache         *cache.ByteCache
	grid          *spatial.Grid
	buffers       *BufferStore
	retryAttempts int
	retryDelay    time.Duration
}

// NewDownloadWorker wires the fetch path from configuration.
func NewDownloadWorker(cfg config.DownloadConfig, fetcher Fetcher, byteCache *cache.ByteCache, grid *spatial.Grid, buffers *BufferStore) *DownloadWorker {
	limit := rate.Inf
	if cfg.RateLimitPerSecond > 0 {
		limit = rate.Limit(cfg.RateLimitPerSecond)
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "boundary-download",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Download circuit breaker state changed")
		},
	})

	return &DownloadWorker{
		fetcher:       fetcher,
		breaker:       breaker,
		limiter:       rate.NewLimiter(limit, burst),
		cache:         byteCache,
		grid:          grid,
		buffers:       buffers,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}
}

// CacheKey is the download cache identity for one dataset.
func CacheKey(dataSource, countryCode string, adminLevel int) string {
	return fmt.Sprintf("%s:%s:%d", dataSource, countryCode, adminLevel)
}

// ProcessDownload runs one download task to a terminal result. Failures are
// recorded on the task and the result, never thrown.
func (w *DownloadWorker) ProcessDownload(ctx context.Context, t *task.Task) *DownloadResult {
	started := time.Now()
	result := &DownloadResult{Result: Result{TaskID: t.ID, Status: StatusFailed}}

	cfg, ok := t.Config.(task.DownloadConfig)
	if !ok {
		return w.fail(t, result, started, CodeConfigError, "download task carries no download config")
	}

	if t.Stage() == task.StageCancel {
		result.Status = StatusCancelled
		result.DurationMS = time.Since(started).Milliseconds()
		return result
	}
	if err := t.Transition(task.StageProcess); err != nil {
		return w.fail(t, result, started, CodeConfigError, err.Error())
	}

	log := logging.With().
		Str("task_id", t.ID).
		Str("data_source", cfg.DataSource).
		Str("country", cfg.CountryCode).
		Int("admin_level", cfg.AdminLevel).
		Logger()

	key := CacheKey(cfg.DataSource, cfg.CountryCode, cfg.AdminLevel)
	data := w.cache.Get(key)
	result.FromCache = data != nil
	metrics.RecordCacheAccess("download", result.FromCache)

	if data == nil {
		var err error
		data, err = w.fetch(ctx, cfg)
		if err != nil {
			log.Error().Err(err).Msg("Boundary download failed")
			metrics.RecordTaskError(string(task.TypeDownload), CodeNetworkError)
			result.RetryAttempts, result.RetryDelayMS = w.retryHints(cfg)
			return w.fail(t, result, started, CodeNetworkError, err.Error())
		}
	}
	result.DownloadSize = len(data)
	t.SetProgress(40)

	validation := ValidateData(data)
	result.Warnings = validation.Warnings
	if !validation.Valid {
		log.Error().Str("code", validation.Code).Msg("Downloaded data failed validation")
		metrics.RecordTaskError(string(task.TypeDownload), CodeValidationError)
		return w.fail(t, result, started, CodeValidationError, "data validation failed: "+validation.Code)
	}

	fc, err := geojson.ParseFeatureCollection(data)
	if err != nil {
		// Unreachable after validation, kept for safety.
		return w.fail(t, result, started, CodeValidationError, err.Error())
	}
	t.SetProgress(70)

	entries := spatial.BuildIndex(fc.Features)
	w.grid.InsertAll(entries)

	w.cache.Put(key, data)
	metrics.CacheSize.WithLabelValues("download").Set(float64(w.cache.Len()))

	result.FeatureCount = len(fc.Features)
	result.SpatialIndices = entries
	result.BufferID = w.buffers.Publish(fc)
	result.Status = StatusCompleted
	result.DurationMS = time.Since(started).Milliseconds()
	t.SetProgress(100)

	if err := t.Transition(task.StageSuccess); err != nil {
		log.Warn().Err(err).Msg("Task left process stage during download")
	}

	metrics.DownloadBytes.Add(float64(result.DownloadSize))
	metrics.DownloadFeatures.Add(float64(result.FeatureCount))
	metrics.RecordStage(string(task.TypeDownload), time.Since(started), "success")

	log.Info().
		Int("features", result.FeatureCount).
		Int("bytes", result.DownloadSize).
		Bool("from_cache", result.FromCache).
		Msg("Boundary download complete")
	return result
}

// fetch performs exactly one rate-limited, breaker-guarded attempt. A
// failure ends the task; retrying is the caller's decision, guided by the
// hints on the result.
func (w *DownloadWorker) fetch(ctx context.Context, cfg task.DownloadConfig) ([]byte, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fetchCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	return w.breaker.Execute(func() ([]byte, error) {
		return w.fetcher.Fetch(fetchCtx, cfg.URL)
	})
}

// retryHints resolves the caller-level retry hints for a failed task.
// Per-task values win over the worker's configured defaults.
func (w *DownloadWorker) retryHints(cfg task.DownloadConfig) (int, int64) {
	attempts, delay := w.retryAttempts, w.retryDelay
	if cfg.RetryAttempts > 0 {
		attempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		delay = cfg.RetryDelay
	}
	return attempts, delay.Milliseconds()
}

func (w *DownloadWorker) fail(t *task.Task, result *DownloadResult, started time.Time, code, message string) *DownloadResult {
	t.Fail(code, message)
	result.Status = StatusFailed
	result.ErrorCode = code
	result.ErrorMessage = message
	result.DurationMS = time.Since(started).Milliseconds()
	metrics.RecordStage(string(task.TypeDownload), time.Since(started), "failed")
	return result
}
