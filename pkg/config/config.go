package config

import "time"

// SourceConfig holds configuration specific to a single news source harvest
type SourceConfig struct {
	StartURLs               []string       `yaml:"start_urls"`
	SitemapURLs             []string       `yaml:"sitemap_urls,omitempty"`        // Optional sitemaps seeded alongside start_urls
	UseRobotsSitemaps       bool           `yaml:"use_robots_sitemaps,omitempty"` // Also queue sitemaps advertised in robots.txt
	MaxArticleAge           *time.Duration `yaml:"max_article_age,omitempty"`     // Skip sitemap entries published earlier than this (nil = global)
	AllowedDomain           string         `yaml:"allowed_domain"`
	AllowedPathPrefix       string         `yaml:"allowed_path_prefix"`
	ArticleSelector         string         `yaml:"article_selector,omitempty"` // Optional container override for the HTML fallback extractor
	LinkExtractionSelectors []string       `yaml:"link_extraction_selectors,omitempty"`
	DisallowedPathPatterns  []string       `yaml:"disallowed_path_patterns,omitempty"` // Regex patterns for paths to exclude
	RespectNofollow         bool           `yaml:"respect_nofollow,omitempty"`
	UserAgent               string         `yaml:"user_agent,omitempty"`
	RequestsPerWindow       *int           `yaml:"requests_per_window,omitempty"` // Rate budget override (nil = global)
	RateWindow              *time.Duration `yaml:"rate_window,omitempty"`
	MaxDepth                int            `yaml:"max_depth"`
	MinParagraphLength      *int           `yaml:"min_paragraph_length,omitempty"`
	EnableReadability       *bool          `yaml:"enable_readability,omitempty"` // Last-resort extraction pass
	CacheTTL                *time.Duration `yaml:"cache_ttl,omitempty"`
	EnableOutputMapping     *bool          `yaml:"enable_output_mapping,omitempty"`
	OutputMappingFilename   string         `yaml:"output_mapping_filename,omitempty"`
	EnableMetadataYAML      *bool          `yaml:"enable_metadata_yaml,omitempty"`
	MetadataYAMLFilename    string         `yaml:"metadata_yaml_filename,omitempty"`
	EnableJSONLOutput       *bool          `yaml:"enable_jsonl_output,omitempty"`
	JSONLOutputFilename     string         `yaml:"jsonl_output_filename,omitempty"`
	ChunkingEnabled         *bool          `yaml:"chunking_enabled,omitempty"`
	ChunkingMaxSize         *int           `yaml:"chunking_max_size,omitempty"`
	ChunkingOverlap         *int           `yaml:"chunking_overlap,omitempty"`
	ChunkingOutputFilename  string         `yaml:"chunking_output_filename,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultUserAgent         string                  `yaml:"default_user_agent"`
	RequestsPerWindow        int                     `yaml:"requests_per_window"` // Default rate budget per domain
	RateWindow               time.Duration           `yaml:"rate_window"`
	RateAcquireTimeout       time.Duration           `yaml:"rate_acquire_timeout,omitempty"` // Max wait for a rate token (0 = wait forever)
	NumWorkers               int                     `yaml:"num_workers"`
	MaxRequests              int                     `yaml:"max_requests"`
	MaxRequestsPerHost       int                     `yaml:"max_requests_per_host"`
	OutputBaseDir            string                  `yaml:"output_base_dir"`
	StateDir                 string                  `yaml:"state_dir"`
	MaxRetries               int                     `yaml:"max_retries,omitempty"`
	InitialRetryDelay        time.Duration           `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay            time.Duration           `yaml:"max_retry_delay,omitempty"`
	RetryMultiplier          float64                 `yaml:"retry_multiplier,omitempty"`
	SemaphoreAcquireTimeout  time.Duration           `yaml:"semaphore_acquire_timeout,omitempty"`
	GlobalHarvestTimeout     time.Duration           `yaml:"global_harvest_timeout,omitempty"`
	PerArticleTimeout        time.Duration           `yaml:"per_article_timeout,omitempty"` // Timeout for processing a single article (0 = no timeout)
	CacheEnabled             bool                    `yaml:"cache_enabled,omitempty"`
	CacheBackend             string                  `yaml:"cache_backend,omitempty"` // "memory", "badger" or "none"
	CacheTTL                 time.Duration           `yaml:"cache_ttl,omitempty"`
	CacheMaxEntries          int                     `yaml:"cache_max_entries,omitempty"` // 0 = unbounded (memory backend only)
	DedupePersist            bool                    `yaml:"dedupe_persist,omitempty"`    // Store fingerprints in the state DB instead of memory
	MaxArticleAge            time.Duration           `yaml:"max_article_age,omitempty"` // Default freshness window for sitemap entries (0 = keep all)
	MinParagraphLength       int                     `yaml:"min_paragraph_length,omitempty"`
	MinWordCount             int                     `yaml:"min_word_count,omitempty"` // Reject extracted bodies below this (0 = no floor)
	EnableReadability        bool                    `yaml:"enable_readability,omitempty"`
	EnableTokenCounting      bool                    `yaml:"enable_token_counting,omitempty"`
	TokenizerEncoding        string                  `yaml:"tokenizer_encoding,omitempty"` // BPE encoding name (empty = cl100k_base)
	HTTPClientSettings       HTTPClientConfig        `yaml:"http_client_settings,omitempty"`
	Sources                  map[string]SourceConfig `yaml:"sources"`
	EnableOutputMapping      bool                    `yaml:"enable_output_mapping,omitempty"`
	OutputMappingFilename    string                  `yaml:"output_mapping_filename,omitempty"`
	EnableMetadataYAML       bool                    `yaml:"enable_metadata_yaml,omitempty"`
	MetadataYAMLFilename     string                  `yaml:"metadata_yaml_filename,omitempty"`
	EnableJSONLOutput        bool                    `yaml:"enable_jsonl_output,omitempty"`
	JSONLOutputFilename      string                  `yaml:"jsonl_output_filename,omitempty"`
	ChunkingEnabled          bool                    `yaml:"chunking_enabled,omitempty"`
	ChunkingMaxSize          int                     `yaml:"chunking_max_size,omitempty"`
	ChunkingOverlap          int                     `yaml:"chunking_overlap,omitempty"`
	ChunkingOutputFilename   string                  `yaml:"chunking_output_filename,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // Explicitly enable/disable HTTP/2 attempt (use pointer for tri-state: nil=default, true=force, false=disable)
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// GetEffectiveUserAgent determines the effective user agent string
func GetEffectiveUserAgent(sourceCfg SourceConfig, appCfg AppConfig) string {
	if sourceCfg.UserAgent != "" {
		return sourceCfg.UserAgent
	}
	return appCfg.DefaultUserAgent
}

// GetEffectiveRequestsPerWindow determines the effective rate budget capacity
func GetEffectiveRequestsPerWindow(sourceCfg SourceConfig, appCfg AppConfig) int {
	if sourceCfg.RequestsPerWindow != nil {
		return *sourceCfg.RequestsPerWindow
	}
	return appCfg.RequestsPerWindow
}

// GetEffectiveRateWindow determines the effective rate budget window
func GetEffectiveRateWindow(sourceCfg SourceConfig, appCfg AppConfig) time.Duration {
	if sourceCfg.RateWindow != nil {
		return *sourceCfg.RateWindow
	}
	return appCfg.RateWindow
}

// GetEffectiveMinParagraphLength determines the effective paragraph length floor
// for the HTML fallback extractor
func GetEffectiveMinParagraphLength(sourceCfg SourceConfig, appCfg AppConfig) int {
	if sourceCfg.MinParagraphLength != nil {
		return *sourceCfg.MinParagraphLength
	}
	return appCfg.MinParagraphLength
}

// GetEffectiveEnableReadability determines whether the readability pass runs
// when structured data and the HTML fallback both come up empty
func GetEffectiveEnableReadability(sourceCfg SourceConfig, appCfg AppConfig) bool {
	if sourceCfg.EnableReadability != nil {
		return *sourceCfg.EnableReadability
	}
	return appCfg.EnableReadability
}

// GetEffectiveMaxArticleAge determines the freshness window for sitemap
// entries. Zero means no age filtering.
func GetEffectiveMaxArticleAge(sourceCfg SourceConfig, appCfg AppConfig) time.Duration {
	if sourceCfg.MaxArticleAge != nil {
		return *sourceCfg.MaxArticleAge
	}
	return appCfg.MaxArticleAge
}

// GetEffectiveCacheTTL determines the effective content cache TTL
func GetEffectiveCacheTTL(sourceCfg SourceConfig, appCfg AppConfig) time.Duration {
	if sourceCfg.CacheTTL != nil {
		return *sourceCfg.CacheTTL
	}
	return appCfg.CacheTTL
}

// GetEffectiveEnableOutputMapping determines the effective setting for enabling the mapping file
func GetEffectiveEnableOutputMapping(sourceCfg SourceConfig, appCfg AppConfig) bool {
	if sourceCfg.EnableOutputMapping != nil {
		return *sourceCfg.EnableOutputMapping
	}
	return appCfg.EnableOutputMapping // Fallback to global setting
}

// GetEffectiveOutputMappingFilename determines the effective filename for the mapping file
// Source config (if non-empty) overrides global
// If both source and global are empty, a hardcoded default is returned
func GetEffectiveOutputMappingFilename(sourceCfg SourceConfig, appCfg AppConfig) string {
	if sourceCfg.OutputMappingFilename != "" {
		return sourceCfg.OutputMappingFilename
	}
	if appCfg.OutputMappingFilename != "" {
		return appCfg.OutputMappingFilename
	}
	// Fallback to a hardcoded default if neither global nor source-specific filename is provided
	return "url_to_file_map.tsv"
}

// GetEffectiveEnableMetadataYAML determines if YAML metadata should be generated.
func GetEffectiveEnableMetadataYAML(sourceCfg SourceConfig, appCfg AppConfig) bool {
	if sourceCfg.EnableMetadataYAML != nil {
		return *sourceCfg.EnableMetadataYAML
	}
	return appCfg.EnableMetadataYAML
}

// GetEffectiveMetadataYAMLFilename determines the filename for the YAML metadata.
func GetEffectiveMetadataYAMLFilename(sourceCfg SourceConfig, appCfg AppConfig) string {
	if sourceCfg.MetadataYAMLFilename != "" {
		return sourceCfg.MetadataYAMLFilename
	}
	if appCfg.MetadataYAMLFilename != "" {
		return appCfg.MetadataYAMLFilename
	}
	return "metadata.yaml"
}

// GetEffectiveEnableJSONLOutput determines if the JSONL article file should be written.
func GetEffectiveEnableJSONLOutput(sourceCfg SourceConfig, appCfg AppConfig) bool {
	if sourceCfg.EnableJSONLOutput != nil {
		return *sourceCfg.EnableJSONLOutput
	}
	return appCfg.EnableJSONLOutput
}

// GetEffectiveJSONLOutputFilename determines the filename for the JSONL article file.
func GetEffectiveJSONLOutputFilename(sourceCfg SourceConfig, appCfg AppConfig) string {
	if sourceCfg.JSONLOutputFilename != "" {
		return sourceCfg.JSONLOutputFilename
	}
	if appCfg.JSONLOutputFilename != "" {
		return appCfg.JSONLOutputFilename
	}
	return "articles.jsonl"
}

// GetEffectiveChunkingEnabled determines if chunked output should be written.
func GetEffectiveChunkingEnabled(sourceCfg SourceConfig, appCfg AppConfig) bool {
	if sourceCfg.ChunkingEnabled != nil {
		return *sourceCfg.ChunkingEnabled
	}
	return appCfg.ChunkingEnabled
}

// GetEffectiveChunkingMaxSize determines the max chunk size in tokens.
func GetEffectiveChunkingMaxSize(sourceCfg SourceConfig, appCfg AppConfig) int {
	if sourceCfg.ChunkingMaxSize != nil && *sourceCfg.ChunkingMaxSize > 0 {
		return *sourceCfg.ChunkingMaxSize
	}
	if appCfg.ChunkingMaxSize > 0 {
		return appCfg.ChunkingMaxSize
	}
	return 512
}

// GetEffectiveChunkingOverlap determines the chunk overlap in tokens.
func GetEffectiveChunkingOverlap(sourceCfg SourceConfig, appCfg AppConfig) int {
	if sourceCfg.ChunkingOverlap != nil && *sourceCfg.ChunkingOverlap >= 0 {
		return *sourceCfg.ChunkingOverlap
	}
	if appCfg.ChunkingOverlap > 0 {
		return appCfg.ChunkingOverlap
	}
	return 50
}

// GetEffectiveChunkingOutputFilename determines the filename for the chunks file.
func GetEffectiveChunkingOutputFilename(sourceCfg SourceConfig, appCfg AppConfig) string {
	if sourceCfg.ChunkingOutputFilename != "" {
		return sourceCfg.ChunkingOutputFilename
	}
	if appCfg.ChunkingOutputFilename != "" {
		return appCfg.ChunkingOutputFilename
	}
	return "chunks.jsonl"
}
