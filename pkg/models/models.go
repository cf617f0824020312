package models

import "time"

// Extraction methods recorded on a Document, in order of preference.
const (
	MethodStructuredData = "structured_data"
	MethodHTMLFallback   = "html_fallback"
	MethodReadability    = "readability"
)

// WorkItem represents a URL and its depth to be processed by a worker
type WorkItem struct {
	URL   string
	Depth int
}

// ContentFingerprint identifies a logical article body independent of the URL
// it was reached through. Hash is the SHA-256 hex of the normalized body text.
type ContentFingerprint struct {
	Hash         string    `json:"hash"`
	FirstSeenURL string    `json:"first_seen_url,omitempty"`
	FirstSeenAt  time.Time `json:"first_seen_at,omitempty"`
}

// Document is the structured result of extracting an article from a page.
type Document struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	BodyText    string    `json:"body_text"`
	ContentHTML string    `json:"content_html,omitempty"` // Fragment the body came from, kept for markdown output
	WordCount   int       `json:"word_count"`
	Method      string    `json:"method"`                 // How the body was obtained (structured_data, html_fallback, readability)
	ContentHash string    `json:"content_hash,omitempty"` // Dedupe fingerprint of the normalized body
}

// ArticleDBEntry stores the result of processing an article URL in the database
type ArticleDBEntry struct {
	Status      ArticleStatus `json:"status"`
	ErrorType   string        `json:"error_type,omitempty"`   // Error category (on failure)
	ProcessedAt time.Time     `json:"processed_at,omitempty"` // Timestamp of successful processing
	LastAttempt time.Time     `json:"last_attempt"`           // Timestamp of the last processing attempt
	Depth       int           `json:"depth"`                  // Depth at which this URL was processed/attempted
	ContentHash string        `json:"content_hash,omitempty"` // Fingerprint of the saved body (on success)
	Method      string        `json:"method,omitempty"`       // Extraction method used (on success)
}

// HarvestMetadata holds all metadata for a single harvest session of a source.
type HarvestMetadata struct {
	SourceKey           string                 `yaml:"source_key"`
	AllowedDomain       string                 `yaml:"allowed_domain"`
	HarvestStartTime    time.Time              `yaml:"harvest_start_time"`
	HarvestEndTime      time.Time              `yaml:"harvest_end_time"`
	TotalArticlesSaved  int                    `yaml:"total_articles_saved"`
	SourceConfiguration map[string]interface{} `yaml:"source_configuration,omitempty"` // For a flexible dump of SourceConfig
	Articles            []ArticleMetadata      `yaml:"articles"`
}

// ArticleMetadata holds metadata for a single harvested article.
type ArticleMetadata struct {
	OriginalURL   string    `yaml:"original_url"`
	NormalizedURL string    `yaml:"normalized_url"`
	LocalFilePath string    `yaml:"local_file_path"` // Relative to source_output_dir
	Title         string    `yaml:"title,omitempty"`
	Author        string    `yaml:"author,omitempty"`
	PublishedAt   time.Time `yaml:"published_at,omitempty"`
	Method        string    `yaml:"method,omitempty"`
	Depth         int       `yaml:"depth"`
	ProcessedAt   time.Time `yaml:"processed_at"`
	ContentHash   string    `yaml:"content_hash,omitempty"` // SHA256 hex of the normalized body
	WordCount     int       `yaml:"word_count,omitempty"`
	TokenCount    int       `yaml:"token_count,omitempty"` // Only populated when token counting is enabled
}

// ArticleJSONL is one line of the per-source JSONL output file.
type ArticleJSONL struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Content     string    `json:"content"`
	Headings    []string  `json:"headings,omitempty"`
	Links       []string  `json:"links,omitempty"`
	Method      string    `json:"method"`
	ContentHash string    `json:"content_hash"`
	HarvestedAt string    `json:"harvested_at"`
	Depth       int       `json:"depth"`
	WordCount   int       `json:"word_count"`
	TokenCount  int       `json:"token_count,omitempty"`
}

// ChunkJSONL is one line of the per-source chunks output file. ChunkID is
// stable across a re-harvest as long as the article title does not change.
type ChunkJSONL struct {
	ChunkID          string   `json:"chunk_id"`
	URL              string   `json:"url"`
	ChunkIndex       int      `json:"chunk_index"`
	Content          string   `json:"content"`
	HeadingHierarchy []string `json:"heading_hierarchy,omitempty"`
	TokenCount       int      `json:"token_count,omitempty"`
	ArticleTitle     string   `json:"article_title,omitempty"`
	HarvestedAt      string   `json:"harvested_at"`
}
