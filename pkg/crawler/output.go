package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/process"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

// mdLinkRe matches markdown links while skipping image syntax (the leading
// character group rejects a preceding '!').
var mdLinkRe = regexp.MustCompile(`(?:^|[^!])\[([^\]]*)\]\(([^)]+)\)`)

// OutputManager owns all output file handles and metadata collection for a
// harvest: the TSV URL map, the articles JSONL, the chunks JSONL, and the
// YAML metadata written on Close.
type OutputManager struct {
	log             *logrus.Entry
	appCfg          config.AppConfig
	sourceCfg       config.SourceConfig
	sourceKey       string
	sourceOutputDir string

	// TSV mapping
	mappingFile     *os.File
	mappingFileMu   sync.Mutex
	mappingFilePath string

	// JSONL output
	jsonlFile     *os.File
	jsonlFileMu   sync.Mutex
	jsonlFilePath string

	// Chunks output
	chunksFile     *os.File
	chunksFileMu   sync.Mutex
	chunksFilePath string

	// YAML metadata
	collectedMetadata []models.ArticleMetadata
	metadataMu        sync.Mutex
	harvestStartTime  time.Time
}

// NewOutputManager creates an OutputManager without opening files.
// Call OpenFiles after the output directory is ready (e.g. after cleanSourceOutputDir).
func NewOutputManager(log *logrus.Entry, appCfg config.AppConfig, sourceCfg config.SourceConfig, sourceKey, sourceOutputDir string) *OutputManager {
	return &OutputManager{
		log:               log,
		appCfg:            appCfg,
		sourceCfg:         sourceCfg,
		sourceKey:         sourceKey,
		sourceOutputDir:   sourceOutputDir,
		collectedMetadata: make([]models.ArticleMetadata, 0),
	}
}

// OpenFiles opens all configured output files (TSV, JSONL, chunks).
// Must be called after the output directory exists and has been cleaned if needed.
func (om *OutputManager) OpenFiles(resume bool) {
	if config.GetEffectiveEnableOutputMapping(om.sourceCfg, om.appCfg) {
		tsvMappingFilename := config.GetEffectiveOutputMappingFilename(om.sourceCfg, om.appCfg)
		om.mappingFilePath = filepath.Join(om.sourceOutputDir, tsvMappingFilename)
		om.log.Infof("TSV URL-to-file mapping enabled. Output file: %s", om.mappingFilePath)
		om.mappingFile = openOutputFile(om.log, om.mappingFilePath, "TSV mapping", resume)
	} else {
		om.log.Info("TSV URL-to-file mapping is disabled.")
	}

	if config.GetEffectiveEnableJSONLOutput(om.sourceCfg, om.appCfg) {
		jsonlFilename := config.GetEffectiveJSONLOutputFilename(om.sourceCfg, om.appCfg)
		om.jsonlFilePath = filepath.Join(om.sourceOutputDir, jsonlFilename)
		om.log.Infof("Articles JSONL output enabled. Output file: %s", om.jsonlFilePath)
		om.jsonlFile = openOutputFile(om.log, om.jsonlFilePath, "JSONL", resume)
	} else {
		om.log.Info("Articles JSONL output is disabled.")
	}

	if config.GetEffectiveChunkingEnabled(om.sourceCfg, om.appCfg) {
		chunksFilename := config.GetEffectiveChunkingOutputFilename(om.sourceCfg, om.appCfg)
		om.chunksFilePath = filepath.Join(om.sourceOutputDir, chunksFilename)
		om.log.Infof("Chunking enabled. Output file: %s", om.chunksFilePath)
		om.chunksFile = openOutputFile(om.log, om.chunksFilePath, "chunks", resume)
	} else {
		om.log.Info("Chunking output is disabled.")
	}
}

// openOutputFile opens an output file for writing, with append or truncate based on resume mode.
// Returns nil on error (caller should treat nil as "output disabled").
func openOutputFile(log *logrus.Entry, path, label string, resume bool) *os.File {
	openFlags := os.O_CREATE | os.O_WRONLY
	if resume {
		log.Infof("Resume mode: Appending to %s file: %s", label, path)
		openFlags |= os.O_APPEND
	} else {
		log.Infof("Non-resume mode: Truncating %s file: %s", label, path)
		openFlags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, openFlags, 0644)
	if err != nil {
		log.Errorf("Failed to open/create %s file '%s': %v. %s output will be disabled.", label, path, err, label)
		return nil
	}
	return file
}

// Close syncs and closes all output files and writes the YAML metadata file.
func (om *OutputManager) Close() error {
	om.closeMappingFile()
	om.closeJSONLFile()
	om.closeChunksFile()
	return om.writeMetadataYAML()
}

// ArticlesSaved returns the number of articles recorded this run.
func (om *OutputManager) ArticlesSaved() int {
	om.metadataMu.Lock()
	defer om.metadataMu.Unlock()
	return len(om.collectedMetadata)
}

// RecordArticle handles all post-save output: TSV write, YAML metadata
// collection, JSONL write, and chunks write. Called after the article's
// markdown was successfully written; markdownBytes is the rendered content,
// passed through so nothing re-reads the file. relPath is the saved path
// relative to the source output directory.
func (om *OutputManager) RecordArticle(article *models.Document, finalURL, normalizedURL, relPath string, markdownBytes []byte, depth int, taskLog *logrus.Entry) {
	om.writeToMappingFile(finalURL, relPath, taskLog)

	enableYAML := config.GetEffectiveEnableMetadataYAML(om.sourceCfg, om.appCfg)
	enableJSONL := config.GetEffectiveEnableJSONLOutput(om.sourceCfg, om.appCfg)

	var tokenCount int
	if (enableYAML || enableJSONL) && om.appCfg.EnableTokenCounting && len(markdownBytes) > 0 {
		tokenCount = process.CountTokens(string(markdownBytes))
	}
	harvestedAt := time.Now()

	// Metadata is collected even when the YAML dump is disabled; it backs
	// the saved-article count in the run summary.
	articleMeta := models.ArticleMetadata{
		OriginalURL:   finalURL,
		NormalizedURL: normalizedURL,
		LocalFilePath: relPath,
		Title:         article.Title,
		Author:        article.Author,
		PublishedAt:   article.PublishedAt,
		Method:        article.Method,
		Depth:         depth,
		ProcessedAt:   harvestedAt,
		ContentHash:   article.ContentHash,
		WordCount:     article.WordCount,
		TokenCount:    tokenCount,
	}

	om.metadataMu.Lock()
	om.collectedMetadata = append(om.collectedMetadata, articleMeta)
	om.metadataMu.Unlock()

	if enableJSONL && om.jsonlFile != nil && markdownBytes != nil {
		articleJSONL := models.ArticleJSONL{
			URL:         finalURL,
			Title:       article.Title,
			Author:      article.Author,
			PublishedAt: article.PublishedAt,
			Content:     string(markdownBytes),
			Headings:    process.ExtractHeadings(markdownBytes),
			Links:       extractMarkdownLinks(string(markdownBytes)),
			Method:      article.Method,
			ContentHash: article.ContentHash,
			HarvestedAt: harvestedAt.Format(time.RFC3339),
			Depth:       depth,
			WordCount:   article.WordCount,
			TokenCount:  tokenCount,
		}
		om.writeToJSONLFile(articleJSONL, taskLog)
	}

	if config.GetEffectiveChunkingEnabled(om.sourceCfg, om.appCfg) && om.chunksFile != nil && markdownBytes != nil {
		chunkCfg := process.ChunkerConfig{
			MaxChunkSize: config.GetEffectiveChunkingMaxSize(om.sourceCfg, om.appCfg),
			ChunkOverlap: config.GetEffectiveChunkingOverlap(om.sourceCfg, om.appCfg),
		}

		chunks, chunkErr := process.ChunkMarkdown(string(markdownBytes), chunkCfg)
		if chunkErr != nil {
			taskLog.Warnf("Failed to chunk markdown content: %v", chunkErr)
		} else if len(chunks) > 0 {
			harvestedAtStr := harvestedAt.Format(time.RFC3339)
			slug := utils.ArticleSlug(article.Title)
			chunkJSONLs := make([]models.ChunkJSONL, len(chunks))
			for i, chunk := range chunks {
				chunkJSONLs[i] = models.ChunkJSONL{
					ChunkID:          fmt.Sprintf("%s-%d", slug, i),
					URL:              finalURL,
					ChunkIndex:       i,
					Content:          chunk.Content,
					HeadingHierarchy: chunk.HeadingHierarchy,
					TokenCount:       chunk.TokenCount,
					ArticleTitle:     article.Title,
					HarvestedAt:      harvestedAtStr,
				}
			}
			om.writeToChunksFile(chunkJSONLs, taskLog)
			taskLog.Debugf("Wrote %d chunks for article", len(chunks))
		}
	}
}

// closeMappingFile closes the TSV mapping file, if it was opened.
func (om *OutputManager) closeMappingFile() {
	om.mappingFileMu.Lock()
	defer om.mappingFileMu.Unlock()

	if om.mappingFile != nil {
		om.log.Infof("Syncing and closing TSV mapping file: %s", om.mappingFilePath)
		if err := om.mappingFile.Sync(); err != nil {
			om.log.Errorf("Error syncing TSV mapping file '%s': %v", om.mappingFilePath, err)
		}
		if err := om.mappingFile.Close(); err != nil {
			om.log.Errorf("Error closing TSV mapping file '%s': %v", om.mappingFilePath, err)
		}
		om.mappingFile = nil
	}
}

// closeJSONLFile closes the JSONL output file handle if it was opened.
func (om *OutputManager) closeJSONLFile() {
	om.jsonlFileMu.Lock()
	defer om.jsonlFileMu.Unlock()

	if om.jsonlFile != nil {
		om.log.Infof("Syncing and closing JSONL output file: %s", om.jsonlFilePath)
		if err := om.jsonlFile.Sync(); err != nil {
			om.log.Errorf("Error syncing JSONL file '%s': %v", om.jsonlFilePath, err)
		}
		if err := om.jsonlFile.Close(); err != nil {
			om.log.Errorf("Error closing JSONL file '%s': %v", om.jsonlFilePath, err)
		}
		om.jsonlFile = nil
	}
}

// closeChunksFile closes the chunks output file handle if it was opened.
func (om *OutputManager) closeChunksFile() {
	om.chunksFileMu.Lock()
	defer om.chunksFileMu.Unlock()

	if om.chunksFile != nil {
		om.log.Infof("Syncing and closing chunks output file: %s", om.chunksFilePath)
		if err := om.chunksFile.Sync(); err != nil {
			om.log.Errorf("Error syncing chunks file '%s': %v", om.chunksFilePath, err)
		}
		if err := om.chunksFile.Close(); err != nil {
			om.log.Errorf("Error closing chunks file '%s': %v", om.chunksFilePath, err)
		}
		om.chunksFile = nil
	}
}

// writeToMappingFile writes a line to the TSV mapping file (if enabled and open).
func (om *OutputManager) writeToMappingFile(articleURL, relPath string, taskLog *logrus.Entry) {
	om.mappingFileMu.Lock()
	defer om.mappingFileMu.Unlock()

	if om.mappingFile == nil {
		return
	}

	line := fmt.Sprintf("%s\t%s\n", articleURL, relPath)
	if _, err := om.mappingFile.WriteString(line); err != nil {
		taskLog.WithFields(logrus.Fields{
			"tsv_mapping_file": om.mappingFilePath,
			"line_content":     strings.TrimSpace(line),
		}).Errorf("Failed to write to TSV mapping file: %v", err)
	}
}

// writeToJSONLFile writes an article entry to the JSONL output file (if enabled and open).
func (om *OutputManager) writeToJSONLFile(article models.ArticleJSONL, taskLog *logrus.Entry) {
	om.jsonlFileMu.Lock()
	defer om.jsonlFileMu.Unlock()

	if om.jsonlFile == nil {
		return
	}

	jsonBytes, err := json.Marshal(article)
	if err != nil {
		taskLog.WithField("jsonl_file", om.jsonlFilePath).Errorf("Failed to marshal article to JSON: %v", err)
		return
	}

	if _, err := om.jsonlFile.Write(append(jsonBytes, '\n')); err != nil {
		taskLog.WithField("jsonl_file", om.jsonlFilePath).Errorf("Failed to write to JSONL file: %v", err)
	}
}

// writeToChunksFile writes chunk entries to the chunks output file (if enabled and open).
func (om *OutputManager) writeToChunksFile(chunks []models.ChunkJSONL, taskLog *logrus.Entry) {
	om.chunksFileMu.Lock()
	defer om.chunksFileMu.Unlock()

	if om.chunksFile == nil {
		return
	}

	for _, chunk := range chunks {
		jsonBytes, err := json.Marshal(chunk)
		if err != nil {
			taskLog.WithField("chunks_file", om.chunksFilePath).Errorf("Failed to marshal chunk to JSON: %v", err)
			continue
		}

		if _, err := om.chunksFile.Write(append(jsonBytes, '\n')); err != nil {
			taskLog.WithField("chunks_file", om.chunksFilePath).Errorf("Failed to write to chunks file: %v", err)
		}
	}
}

// writeMetadataYAML writes all collected article metadata to a YAML file.
func (om *OutputManager) writeMetadataYAML() error {
	if !config.GetEffectiveEnableMetadataYAML(om.sourceCfg, om.appCfg) {
		om.log.Info("YAML metadata output is disabled.")
		return nil
	}

	filename := config.GetEffectiveMetadataYAMLFilename(om.sourceCfg, om.appCfg)
	yamlFilePath := filepath.Join(om.sourceOutputDir, filename)

	om.log.Infof("Preparing to write harvest metadata to: %s", yamlFilePath)

	// Round-trip the source config through YAML so the dump carries whatever
	// fields the config actually has, without a hand-kept mirror struct.
	var sourceConfigMap map[string]interface{}
	sourceConfigBytes, errCfgMarshal := yaml.Marshal(om.sourceCfg)
	if errCfgMarshal != nil {
		om.log.Warnf("Could not marshal source_configuration for YAML metadata: %v", errCfgMarshal)
	} else {
		if errCfgUnmarshal := yaml.Unmarshal(sourceConfigBytes, &sourceConfigMap); errCfgUnmarshal != nil {
			om.log.Warnf("Could not unmarshal source_configuration into map for YAML metadata: %v", errCfgUnmarshal)
			sourceConfigMap = nil
		}
	}

	om.metadataMu.Lock()
	articlesToMarshal := make([]models.ArticleMetadata, len(om.collectedMetadata))
	copy(articlesToMarshal, om.collectedMetadata)
	om.metadataMu.Unlock()

	metadata := models.HarvestMetadata{
		SourceKey:           om.sourceKey,
		AllowedDomain:       om.sourceCfg.AllowedDomain,
		HarvestStartTime:    om.harvestStartTime,
		HarvestEndTime:      time.Now(),
		TotalArticlesSaved:  len(articlesToMarshal),
		SourceConfiguration: sourceConfigMap,
		Articles:            articlesToMarshal,
	}

	yamlData, errMarshal := yaml.Marshal(&metadata)
	if errMarshal != nil {
		om.log.Errorf("Failed to marshal harvest metadata to YAML: %v", errMarshal)
		return fmt.Errorf("failed to marshal harvest metadata to YAML for source '%s': %w", om.sourceKey, errMarshal)
	}

	errWrite := os.WriteFile(yamlFilePath, yamlData, 0644)
	if errWrite != nil {
		om.log.Errorf("Failed to write metadata YAML file '%s': %v", yamlFilePath, errWrite)
		return fmt.Errorf("failed to write metadata YAML file '%s' for source '%s': %w", yamlFilePath, om.sourceKey, errWrite)
	}

	om.log.Infof("Successfully wrote harvest metadata (%d articles) to %s", metadata.TotalArticlesSaved, yamlFilePath)
	return nil
}

// extractMarkdownLinks pulls link targets out of rendered markdown. Image
// references are a different syntax and are not collected; the JSONL output
// tracks where a story points, not what it embeds.
func extractMarkdownLinks(markdown string) []string {
	var links []string
	for _, match := range mdLinkRe.FindAllStringSubmatch(markdown, -1) {
		if len(match) >= 3 {
			linkURL := strings.TrimSpace(match[2])
			if linkURL != "" {
				links = append(links, linkURL)
			}
		}
	}
	return links
}
