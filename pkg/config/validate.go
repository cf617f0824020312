package config

import (
	"fmt"
	"time"

	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 4")
		c.NumWorkers = 4
	}

	// MaxRequests
	if c.MaxRequests <= 0 {
		warnings = append(warnings, "max_requests should be > 0, defaulting to 10")
		c.MaxRequests = 10
	}

	// MaxRequestsPerHost
	if c.MaxRequestsPerHost <= 0 {
		warnings = append(warnings, "max_requests_per_host should be > 0, defaulting to 2")
		c.MaxRequestsPerHost = 2
	}

	// Rate budget: every domain limiter is built from these, so they must end up positive
	if c.RequestsPerWindow <= 0 {
		warnings = append(warnings, "requests_per_window should be > 0, defaulting to 10")
		c.RequestsPerWindow = 10
	}
	if c.RateWindow <= 0 {
		warnings = append(warnings, "rate_window should be > 0, defaulting to 10s")
		c.RateWindow = 10 * time.Second
	}
	if c.RateAcquireTimeout <= 0 {
		c.RateAcquireTimeout = 2 * time.Minute
	}

	// OutputBaseDir
	if c.OutputBaseDir == "" {
		warnings = append(warnings, "output_base_dir is empty, defaulting to './harvested_articles'")
		c.OutputBaseDir = "./harvested_articles"
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './harvester_state'")
		c.StateDir = "./harvester_state"
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// RetryMultiplier: 1.0 means constant backoff, below that the delays would shrink
	if c.RetryMultiplier == 0 {
		c.RetryMultiplier = 2.0
	} else if c.RetryMultiplier < 1.0 {
		warnings = append(warnings, fmt.Sprintf(
			"retry_multiplier (%v) must be >= 1.0, defaulting to 2.0", c.RetryMultiplier))
		c.RetryMultiplier = 2.0
	}

	// SemaphoreAcquireTimeout
	if c.SemaphoreAcquireTimeout <= 0 {
		c.SemaphoreAcquireTimeout = 30 * time.Second
	}

	// GlobalHarvestTimeout
	if c.GlobalHarvestTimeout < 0 {
		warnings = append(warnings, "global_harvest_timeout cannot be negative, disabling timeout")
		c.GlobalHarvestTimeout = 0
	}

	// PerArticleTimeout
	if c.PerArticleTimeout < 0 {
		warnings = append(warnings, "per_article_timeout cannot be negative, disabling timeout")
		c.PerArticleTimeout = 0
	}

	// Cache settings
	switch c.CacheBackend {
	case "", "memory", "badger", "none":
	default:
		warnings = append(warnings, fmt.Sprintf(
			"cache_backend '%s' is not recognized (memory, badger, none), defaulting to memory", c.CacheBackend))
		c.CacheBackend = "memory"
	}
	if c.CacheBackend == "" {
		c.CacheBackend = "memory"
	}
	if c.CacheEnabled && c.CacheTTL <= 0 {
		warnings = append(warnings, "cache_enabled is true but cache_ttl is not positive, defaulting to 15m")
		c.CacheTTL = 15 * time.Minute
	}
	if c.CacheMaxEntries < 0 {
		warnings = append(warnings, "cache_max_entries cannot be negative, setting to 0 (unbounded)")
		c.CacheMaxEntries = 0
	}

	// Extraction settings
	if c.MinParagraphLength <= 0 {
		c.MinParagraphLength = 30
	}
	if c.MinWordCount < 0 {
		warnings = append(warnings, "min_word_count cannot be negative, setting to 0 (no floor)")
		c.MinWordCount = 0
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	// Output mapping filename
	if c.EnableOutputMapping && c.OutputMappingFilename == "" {
		warnings = append(warnings,
			"Global 'enable_output_mapping' is true but 'output_mapping_filename' is empty. "+
				"Defaulting to 'url_to_file_map.tsv'")
		c.OutputMappingFilename = "url_to_file_map.tsv"
	}

	// Metadata YAML filename
	if c.EnableMetadataYAML && c.MetadataYAMLFilename == "" {
		warnings = append(warnings,
			"Global 'enable_metadata_yaml' is true but 'metadata_yaml_filename' is empty. "+
				"Defaulting to 'metadata.yaml'")
		c.MetadataYAMLFilename = "metadata.yaml"
	}

	// JSONL output filename
	if c.EnableJSONLOutput && c.JSONLOutputFilename == "" {
		warnings = append(warnings,
			"Global 'enable_jsonl_output' is true but 'jsonl_output_filename' is empty. "+
				"Defaulting to 'articles.jsonl'")
		c.JSONLOutputFilename = "articles.jsonl"
	}

	// Chunking settings
	if c.ChunkingEnabled {
		if c.ChunkingOutputFilename == "" {
			warnings = append(warnings,
				"Global 'chunking_enabled' is true but 'chunking_output_filename' is empty. "+
					"Defaulting to 'chunks.jsonl'")
			c.ChunkingOutputFilename = "chunks.jsonl"
		}
		if c.ChunkingMaxSize <= 0 {
			c.ChunkingMaxSize = 512
		}
		if c.ChunkingOverlap < 0 {
			warnings = append(warnings, "chunking_overlap cannot be negative, setting to 50")
			c.ChunkingOverlap = 50
		}
	}

	return warnings, nil // AppConfig validation never fails fatally
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks SourceConfig fields and applies defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place (e.g., path prefix normalization).
func (c *SourceConfig) Validate() (warnings []string, err error) {
	// Required: at least one seed, listing pages or sitemaps
	if len(c.StartURLs) == 0 && len(c.SitemapURLs) == 0 {
		return nil, fmt.Errorf("%w: source has no start_urls or sitemap_urls", utils.ErrConfigValidation)
	}

	// Required: AllowedDomain
	if c.AllowedDomain == "" {
		return nil, fmt.Errorf("%w: source needs allowed_domain", utils.ErrConfigValidation)
	}

	// AllowedPathPrefix normalization
	if c.AllowedPathPrefix == "" {
		c.AllowedPathPrefix = "/"
	} else if c.AllowedPathPrefix[0] != '/' {
		c.AllowedPathPrefix = "/" + c.AllowedPathPrefix
	}

	// Rate budget overrides must be usable to build a limiter
	if c.RequestsPerWindow != nil && *c.RequestsPerWindow <= 0 {
		return nil, fmt.Errorf("%w: source requests_per_window must be > 0", utils.ErrConfigValidation)
	}
	if c.RateWindow != nil && *c.RateWindow <= 0 {
		return nil, fmt.Errorf("%w: source rate_window must be > 0", utils.ErrConfigValidation)
	}

	// MaxDepth
	if c.MaxDepth < 0 {
		warnings = append(warnings, "Source MaxDepth cannot be negative, setting to 0 (unlimited)")
		c.MaxDepth = 0
	}

	// MinParagraphLength (pointer)
	if c.MinParagraphLength != nil && *c.MinParagraphLength < 0 {
		warnings = append(warnings, "Source MinParagraphLength cannot be negative, ignoring override")
		c.MinParagraphLength = nil
	}

	// CacheTTL (pointer)
	if c.CacheTTL != nil && *c.CacheTTL <= 0 {
		warnings = append(warnings, "Source CacheTTL must be positive, ignoring override")
		c.CacheTTL = nil
	}

	return warnings, nil
}
