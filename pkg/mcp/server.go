// Package mcp exposes the harvester over the Model Context Protocol: one-shot
// article extraction, background harvest jobs, and search over previously
// harvested output, on stdio or SSE transports.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/sriram-pr/article-scraper/pkg/cache"
	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/dedupe"
	"github.com/sriram-pr/article-scraper/pkg/extract"
	"github.com/sriram-pr/article-scraper/pkg/fetch"
	"github.com/sriram-pr/article-scraper/pkg/pipeline"
	"github.com/sriram-pr/article-scraper/pkg/ratelimit"
)

const (
	serverName    = "article-scraper"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
}

// Server wraps the MCP server with article-scraper specific functionality
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager

	// Shared fetch stack. Harvest jobs and ad-hoc extractions draw from the
	// same rate budgets and global request semaphore, so tool calls cannot
	// stack extra load onto a domain a job is already harvesting.
	limiters        *ratelimit.DomainLimiter
	fetcher         fetch.Fetcher
	globalSemaphore *semaphore.Weighted

	// One-shot extraction pipeline with app-default settings. Its cache and
	// fingerprint set live in memory for the life of the server; harvest jobs
	// get their own store-backed stacks instead.
	adhoc       *pipeline.Pipeline
	adhocCache  cache.Cache
	adhocDedupe dedupe.Deduplicator
}

// NewServer creates a new MCP server instance and builds the shared fetch
// stack, including every configured per-source rate budget: any source can be
// harvested or extracted at any time, so the budgets go in up front.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	log := cfg.Logger.WithField("component", "mcp")

	limiters, err := ratelimit.NewDomainLimiter(cfg.AppConfig.RequestsPerWindow, cfg.AppConfig.RateWindow, log)
	if err != nil {
		return nil, fmt.Errorf("building limiter registry: %w", err)
	}
	for key, sourceCfg := range cfg.AppConfig.Sources {
		if sourceCfg.RequestsPerWindow == nil && sourceCfg.RateWindow == nil {
			continue
		}
		capacity := config.GetEffectiveRequestsPerWindow(sourceCfg, *cfg.AppConfig)
		window := config.GetEffectiveRateWindow(sourceCfg, *cfg.AppConfig)
		if err := limiters.SetBudget(sourceCfg.AllowedDomain, capacity, window); err != nil {
			return nil, fmt.Errorf("installing rate budget for source '%s': %w", key, err)
		}
	}

	client := fetch.NewClient(cfg.AppConfig.HTTPClientSettings, cfg.Logger)
	fetcher := fetch.NewResilientFetcher(client, limiters, cfg.AppConfig, log)

	// Create the MCP server
	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:       mcpServer,
		cfg:             cfg,
		log:             log,
		jobManager:      NewJobManager(),
		limiters:        limiters,
		fetcher:         fetcher,
		globalSemaphore: semaphore.NewWeighted(int64(cfg.AppConfig.MaxRequests)),
		adhocCache:      cache.New(cfg.AppConfig, nil, log),
		adhocDedupe:     dedupe.New(cfg.AppConfig, nil, log),
	}
	extractor := extract.New(extract.OptionsFromConfig(config.SourceConfig{}, *cfg.AppConfig), log)
	s.adhoc = pipeline.New(cfg.AppConfig, fetcher, limiters, s.adhocCache, s.adhocDedupe, extractor, cfg.Logger)

	// Register all tools
	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	// list_sources - List all configured sources
	listSourcesTool := mcp.NewTool("list_sources",
		mcp.WithDescription("List all configured news sources available for harvesting"),
	)
	s.mcpServer.AddTool(listSourcesTool, s.handleListSources)

	// extract_article - Fetch a single URL through the article pipeline
	extractArticleTool := mcp.NewTool("extract_article",
		mcp.WithDescription("Fetch a single URL and return the extracted article as markdown"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The article URL to fetch"),
		),
		mcp.WithString("source_key",
			mcp.Description("Apply a configured source's extraction settings (optional)"),
		),
	)
	s.mcpServer.AddTool(extractArticleTool, s.handleExtractArticle)

	// crawl_source - Start a background harvest
	crawlSourceTool := mcp.NewTool("crawl_source",
		mcp.WithDescription("Start a background harvest for a configured source. Returns immediately with a job ID."),
		mcp.WithString("source_key",
			mcp.Required(),
			mcp.Description("Source key from the config file (e.g. 'metro_daily', 'harbor_gazette')"),
		),
		mcp.WithBoolean("refresh",
			mcp.Description("Re-fetch previously harvested articles and rewrite outputs where the content changed"),
		),
	)
	s.mcpServer.AddTool(crawlSourceTool, s.handleCrawlSource)

	// job_status - Check status of a harvest job
	jobStatusTool := mcp.NewTool("job_status",
		mcp.WithDescription("Get the status and progress of a harvest job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by crawl_source"),
		),
	)
	s.mcpServer.AddTool(jobStatusTool, s.handleJobStatus)

	// list_jobs - List all harvest jobs
	listJobsTool := mcp.NewTool("list_jobs",
		mcp.WithDescription("List all harvest jobs and their statuses, newest first"),
	)
	s.mcpServer.AddTool(listJobsTool, s.handleListJobs)

	// cancel_job - Cancel a running harvest job
	cancelJobTool := mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a pending or running harvest job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID to cancel"),
		),
	)
	s.mcpServer.AddTool(cancelJobTool, s.handleCancelJob)

	// search_articles - Search previously harvested articles
	searchArticlesTool := mcp.NewTool("search_articles",
		mcp.WithDescription("Search previously harvested articles using text matching"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query (case-insensitive substring match)"),
		),
		mcp.WithString("source_key",
			mcp.Description("Limit search to a specific source (optional)"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results to return (default: 10, max: 100)"),
		),
	)
	s.mcpServer.AddTool(searchArticlesTool, s.handleSearchArticles)

	s.log.Infof("Registered %d MCP tools", 7)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	// Cancel any running jobs; each closes its own store on the way out
	s.jobManager.CancelAll()
	return s.adhoc.Close()
}
