package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sriram-pr/article-scraper/pkg/cache"
	"github.com/sriram-pr/article-scraper/pkg/config"
	"github.com/sriram-pr/article-scraper/pkg/crawler"
	"github.com/sriram-pr/article-scraper/pkg/dedupe"
	"github.com/sriram-pr/article-scraper/pkg/extract"
	"github.com/sriram-pr/article-scraper/pkg/fetch"
	"github.com/sriram-pr/article-scraper/pkg/orchestrate"
	"github.com/sriram-pr/article-scraper/pkg/pipeline"
	"github.com/sriram-pr/article-scraper/pkg/ratelimit"
	"github.com/sriram-pr/article-scraper/pkg/storage"
	"github.com/sriram-pr/article-scraper/pkg/utils"
	"github.com/sriram-pr/article-scraper/pkg/watch"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "harvest":
		runHarvest(os.Args[2:], false)
	case "resume":
		runHarvest(os.Args[2:], true)
	case "watch":
		runWatch(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-sources":
		runListSources(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("article-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `article-scraper - News site article harvester

Usage:
  article-scraper <command> [options]

Commands:
  harvest       Start a fresh harvest
  resume        Resume an interrupted harvest
  watch         Watch sources and re-harvest on schedule
  validate      Validate configuration file
  list-sources  List available source keys
  mcp-server    Start MCP server for AI tool integration
  version       Show version info

Run 'article-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// runHarvest handles both harvest and resume subcommands
func runHarvest(args []string, isResume bool) {
	cmdName := "harvest"
	if isResume {
		cmdName = "resume"
	}

	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	sourceKey := fs.String("source", "", "Source key from config (single source)")
	sources := fs.String("sources", "", "Comma-separated source keys for parallel harvesting")
	allSources := fs.Bool("all", false, "Harvest all configured sources in parallel")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")
	writeVisitedLog := fs.Bool("write-visited-log", false, "Write visited URLs log on completion")
	refresh := fs.Bool("refresh", false, "Re-fetch known articles and rewrite any whose content changed")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: article-scraper %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  article-scraper %s -source metro_daily\n", cmdName)
		fmt.Fprintf(os.Stderr, "  article-scraper %s -sources metro_daily,harbor_gazette\n", cmdName)
		fmt.Fprintf(os.Stderr, "  article-scraper %s --all\n", cmdName)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	// Determine which sources to harvest
	var sourceKeys []string

	if *allSources {
		// Will be populated after loading config
		sourceKeys = nil // Signal to use all sources
	} else if *sources != "" {
		// Parse comma-separated source keys
		sourceKeys = splitSourceKeys(*sources)
	} else if *sourceKey != "" {
		sourceKeys = []string{*sourceKey}
	} else {
		fmt.Fprintln(os.Stderr, "Error: one of -source, -sources, or --all is required")
		fs.Usage()
		os.Exit(1)
	}

	// Check for parallel mode (multiple sources or all sources)
	if *allSources || len(sourceKeys) > 1 {
		executeParallelHarvest(*configFile, sourceKeys, *allSources, *logLevel, *pprofAddr, isResume, *refresh)
	} else {
		executeHarvest(*configFile, sourceKeys[0], *logLevel, *pprofAddr, *writeVisitedLog, isResume, *refresh)
	}
}

// splitSourceKeys splits a comma-separated flag value into clean source keys.
func splitSourceKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	sourceKey := fs.String("source", "", "Source key to validate (optional, validates all if empty)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: article-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, *sourceKey, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, sourceKey string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Validate app config
	warnings, _ := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	if sourceKey != "" {
		// Validate specific source
		sourceCfg, ok := appCfg.Sources[sourceKey]
		if !ok {
			fmt.Fprintf(stderr, "Error: source '%s' not found in config\n", sourceKey)
			return 1
		}
		sourceWarnings, err := sourceCfg.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", sourceKey, err)
			return 1
		}
		for _, w := range sourceWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", sourceKey, w)
		}
		fmt.Fprintf(stdout, "OK: Source '%s' configuration is valid\n", sourceKey)
	} else {
		// Validate all sources
		hasError := false
		keys := make([]string, 0, len(appCfg.Sources))
		for k := range appCfg.Sources {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			sourceCfg := appCfg.Sources[key]
			sourceWarnings, err := sourceCfg.Validate()
			if err != nil {
				fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
				hasError = true
				continue
			}
			for _, w := range sourceWarnings {
				fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
			}
			fmt.Fprintf(stdout, "OK: [%s]\n", key)
		}
		if hasError {
			return 1
		}
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	sourceKey := fs.String("source", "", "Source key from config (single source)")
	sources := fs.String("sources", "", "Comma-separated source keys")
	allSources := fs.Bool("all", false, "Watch all configured sources")
	interval := fs.String("interval", "24h", "Harvest interval (e.g., 30m, 1h, 24h, 7d)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: article-scraper watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  article-scraper watch -source metro_daily --interval 6h\n")
		fmt.Fprintf(os.Stderr, "  article-scraper watch -sources metro_daily,harbor_gazette --interval 12h\n")
		fmt.Fprintf(os.Stderr, "  article-scraper watch --all --interval 24h\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	// Determine which sources to watch
	var sourceKeys []string

	if *allSources {
		sourceKeys = nil // Signal to use all sources
	} else if *sources != "" {
		sourceKeys = splitSourceKeys(*sources)
	} else if *sourceKey != "" {
		sourceKeys = []string{*sourceKey}
	} else {
		fmt.Fprintln(os.Stderr, "Error: one of -source, -sources, or --all is required")
		fs.Usage()
		os.Exit(1)
	}

	executeWatch(*configFile, sourceKeys, *allSources, *interval, *logLevel)
}

// executeWatch runs the watch scheduler
func executeWatch(configFile string, sourceKeys []string, allSources bool, intervalStr, logLevelStr string) {
	log := setupLogger(logLevelStr)

	// --- Parse interval ---
	interval, err := watch.ParseInterval(intervalStr)
	if err != nil {
		log.Fatalf("Invalid interval: %v", err)
	}
	log.Infof("Watch interval: %v", interval)

	appCfg := loadAndValidateConfig(configFile, log)

	// --- Determine source keys ---
	if allSources {
		sourceKeys = orchestrate.GetAllSourceKeys(appCfg)
		log.Infof("All sources mode: found %d sources", len(sourceKeys))
	}

	// --- Validate source keys ---
	if err := orchestrate.ValidateSourceKeys(appCfg, sourceKeys); err != nil {
		log.Fatalf("Invalid source keys: %v", err)
	}

	validateSourceConfigs(appCfg, sourceKeys, log)

	// --- Create and run scheduler ---
	// Scheduled rounds always run in refresh mode so changed articles are
	// picked up; the scheduler sets that per round.
	logEntry := log.WithField("component", "watch")
	scheduler := watch.NewScheduler(appCfg, sourceKeys, interval, logEntry)

	// --- Handle signals for graceful shutdown ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warnf("Received signal %v, stopping watch...", sig)
		scheduler.Stop()
	}()

	// --- Run scheduler (blocks until stopped) ---
	if err := scheduler.Run(); err != nil {
		log.Fatalf("Watch scheduler error: %v", err)
	}

	log.Info("Watch mode stopped")
}

// runListSources handles the list-sources subcommand
func runListSources(args []string) {
	fs := flag.NewFlagSet("list-sources", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: article-scraper list-sources [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doListSources(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doListSources lists sources and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doListSources(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(appCfg.Sources))
	for k := range appCfg.Sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(stdout, "Sources in %s:\n\n", configPath)
	for _, key := range keys {
		source := appCfg.Sources[key]
		fmt.Fprintf(stdout, "  %s\n", key)
		fmt.Fprintf(stdout, "    Domain: %s\n", source.AllowedDomain)
		fmt.Fprintf(stdout, "    Start URLs: %d\n", len(source.StartURLs))
		if len(source.SitemapURLs) > 0 {
			fmt.Fprintf(stdout, "    Sitemaps: %d\n", len(source.SitemapURLs))
		}
		if source.AllowedPathPrefix != "" && source.AllowedPathPrefix != "/" {
			fmt.Fprintf(stdout, "    Path Prefix: %s\n", source.AllowedPathPrefix)
		}
		fmt.Fprintln(stdout)
	}
	return 0
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Infof("Setting log level to: %s", level.String())
	}

	return log
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	appWarnings, _ := appCfg.Validate()
	for _, w := range appWarnings {
		log.Warn(w)
	}

	return appCfg
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, log *logrus.Logger) {
	if addr != "" {
		go func() {
			log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}
}

// validateSourceConfigs validates the configuration for each source key and
// logs warnings. Validation normalizes fields in place, so the validated copy
// is written back to the map.
func validateSourceConfigs(appCfg *config.AppConfig, sourceKeys []string, log *logrus.Logger) {
	for _, key := range sourceKeys {
		sourceCfg := appCfg.Sources[key]
		sourceWarnings, err := sourceCfg.Validate()
		if err != nil {
			log.Fatalf("Source '%s' configuration error: %v", key, err)
		}
		for _, w := range sourceWarnings {
			log.Warnf("[%s] %s", key, w)
		}
		appCfg.Sources[key] = sourceCfg
	}
}

// executeParallelHarvest handles harvesting multiple sources in parallel
func executeParallelHarvest(configFile string, sourceKeys []string, allSources bool, logLevelStr, pprofAddr string, isResume, refresh bool) {
	runtime.SetBlockProfileRate(1000)
	runtime.SetMutexProfileFraction(1000)

	log := setupLogger(logLevelStr)
	appCfg := loadAndValidateConfig(configFile, log)

	// --- Determine source keys ---
	if allSources {
		sourceKeys = orchestrate.GetAllSourceKeys(appCfg)
		log.Infof("All sources mode: found %d sources", len(sourceKeys))
	}

	// --- Validate source keys ---
	if err := orchestrate.ValidateSourceKeys(appCfg, sourceKeys); err != nil {
		log.Fatalf("Invalid source keys: %v", err)
	}

	validateSourceConfigs(appCfg, sourceKeys, log)
	startPprof(pprofAddr, log)

	if refresh {
		log.Info("Refresh mode: known articles will be re-fetched and compared")
	}

	// --- Create and run orchestrator ---
	logEntry := log.WithField("component", "parallel_harvest")
	orch, err := orchestrate.NewOrchestratorWithOptions(appCfg, sourceKeys, isResume, logEntry, &orchestrate.Options{Refresh: refresh})
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// --- Handle signals for graceful shutdown ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warnf("Received signal %v, initiating graceful shutdown...", sig)
		orch.Cancel()
	}()

	// --- Run parallel harvest ---
	results := orch.Run()

	// --- Check for failures ---
	hasFailure := false
	for _, r := range results {
		if !r.Success {
			hasFailure = true
			break
		}
	}

	if hasFailure {
		os.Exit(1)
	}
}

// executeHarvest contains the single-source harvest logic
func executeHarvest(configFile, sourceKey, logLevelStr, pprofAddr string, writeVisitedLog, isResume, refresh bool) {
	runtime.SetBlockProfileRate(1000)
	runtime.SetMutexProfileFraction(1000)

	log := setupLogger(logLevelStr)
	appCfg := loadAndValidateConfig(configFile, log)
	logAppConfig(appCfg, log)

	// --- Get Source Config ---
	if _, ok := appCfg.Sources[sourceKey]; !ok {
		log.Fatalf("Error: Source key '%s' not found in config file '%s'", sourceKey, configFile)
	}

	validateSourceConfigs(appCfg, []string{sourceKey}, log)
	sourceCfg := appCfg.Sources[sourceKey]
	log.Infof("Source Config for '%s': Domain: %s, Prefix: %s, ArticleSel: '%s'",
		sourceKey, sourceCfg.AllowedDomain, sourceCfg.AllowedPathPrefix, sourceCfg.ArticleSelector)

	if refresh {
		log.Info("Refresh mode: known articles will be re-fetched and compared")
	}

	startPprof(pprofAddr, log)

	// ===========================================================
	// == Setup Global Context & Signal Handling ==
	// ===========================================================
	var harvestCtx context.Context
	var cancelHarvest context.CancelFunc

	if appCfg.GlobalHarvestTimeout > 0 {
		log.Infof("Setting global harvest timeout: %v", appCfg.GlobalHarvestTimeout)
		harvestCtx, cancelHarvest = context.WithTimeout(context.Background(), appCfg.GlobalHarvestTimeout)
	} else {
		log.Info("No global harvest timeout set.")
		harvestCtx, cancelHarvest = context.WithCancel(context.Background())
	}
	defer cancelHarvest()

	// Channel to listen for OS signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Goroutine to handle signals
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancelHarvest()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()
	defer signal.Stop(sigChan)

	// ===========================================================
	// == Initialize Components ==
	// ===========================================================
	log.Info("Initializing components...")
	logEntry := log.WithField("component", "harvest")

	// --- Storage ---
	// Refresh needs the prior article statuses and fingerprints, so the
	// state DB is kept in that mode too.
	keepState := isResume || refresh
	store, err := storage.NewBadgerStore(harvestCtx, appCfg.StateDir, sourceCfg.AllowedDomain, keepState, logEntry)
	if err != nil {
		log.Fatalf("Failed to initialize harvest state DB: %v", err)
	}
	defer store.Close()

	go store.RunGC(harvestCtx, 0)

	// --- HTTP Fetching Components ---
	limiters, err := ratelimit.NewDomainLimiter(appCfg.RequestsPerWindow, appCfg.RateWindow, logEntry)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiters: %v", err)
	}
	if sourceCfg.RequestsPerWindow != nil || sourceCfg.RateWindow != nil {
		capacity := config.GetEffectiveRequestsPerWindow(sourceCfg, *appCfg)
		window := config.GetEffectiveRateWindow(sourceCfg, *appCfg)
		if err := limiters.SetBudget(sourceCfg.AllowedDomain, capacity, window); err != nil {
			log.Fatalf("Failed to set rate budget for '%s': %v", sourceCfg.AllowedDomain, err)
		}
	}

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, log)
	fetcher := fetch.NewResilientFetcher(httpClient, limiters, appCfg, logEntry)

	// --- Processing Pipeline ---
	extractor := extract.New(extract.OptionsFromConfig(sourceCfg, *appCfg), logEntry)
	contentCache := cache.New(appCfg, store, logEntry)
	deduper := dedupe.New(appCfg, store, logEntry)
	pl := pipeline.New(appCfg, fetcher, limiters, contentCache, deduper, extractor, log)
	defer pl.Close()

	// --- Crawler Instance ---
	var opts *crawler.Options
	if refresh {
		opts = &crawler.Options{Refresh: true}
	}
	harvester, err := crawler.NewCrawlerWithOptions(
		*appCfg,
		sourceCfg,
		sourceKey,
		logEntry,
		store,
		fetcher,
		pl,
		harvestCtx,
		cancelHarvest,
		opts,
	)
	if err != nil {
		log.Fatalf("Failed to initialize crawler: %v", err)
	}

	// ===========================================================
	// == Start Harvest Execution ==
	// ===========================================================
	err = harvester.Run(isResume)

	// ===========================================================
	// == Post-Harvest Actions ==
	// ===========================================================

	// --- Generate Directory Structure File (Only on Success) ---
	if err == nil {
		log.Info("Harvest completed successfully, generating directory structure file...")
		targetDir := filepath.Join(appCfg.OutputBaseDir, utils.SanitizeFilename(sourceCfg.AllowedDomain))
		outputFileName := fmt.Sprintf("%s_structure.txt", utils.SanitizeFilename(sourceCfg.AllowedDomain))
		outputFilePath := filepath.Join(appCfg.OutputBaseDir, outputFileName)

		if treeErr := utils.WriteDirectoryTree(targetDir, outputFilePath, logEntry); treeErr != nil {
			log.Errorf("Failed to generate or save directory structure: %v", treeErr)
		} else {
			log.Infof("Successfully saved directory structure to %s", outputFilePath)
		}
	} else {
		log.Warnf("Skipping directory structure generation due to harvest error: %v", err)
	}

	// --- Final Visited Log File Generation (Optional) ---
	if harvestCtx.Err() != nil {
		log.Warnf("Skipping final visited log due to harvest context error: %v", harvestCtx.Err())
	} else if writeVisitedLog {
		visitedFilename := fmt.Sprintf("%s-visited.txt", utils.SanitizeFilename(sourceCfg.AllowedDomain))
		visitedFilePath := filepath.Join(appCfg.OutputBaseDir, visitedFilename)
		if writeErr := store.WriteVisitedLog(visitedFilePath); writeErr != nil {
			log.Errorf("Error writing final visited log: %v", writeErr)
		}
	} else {
		log.Info("Skipping final visited URL log file generation.")
	}

	// --- Exit ---
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Harvest cancelled gracefully.")
			os.Exit(0)
		} else if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Harvest timed out (global timeout).")
			os.Exit(1)
		} else {
			log.Errorf("Harvest finished with error: %v", err)
			os.Exit(1)
		}
	}

	log.Info("Harvest completed successfully.")
	os.Exit(0)
}

// logAppConfig logs the effective global configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Global Config: Workers:%d, MaxReqs:%d, MaxReqPerHost:%d",
		appCfg.NumWorkers, appCfg.MaxRequests, appCfg.MaxRequestsPerHost)
	log.Infof("Global Config: RateBudget:%d per %v, StateDir:%s, OutputDir:%s",
		appCfg.RequestsPerWindow, appCfg.RateWindow, appCfg.StateDir, appCfg.OutputBaseDir)
	log.Infof("Global Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay)
	log.Infof("Global Config Timeouts: SemaphoreAcquire:%v, GlobalHarvest:%v, PerArticle:%v",
		appCfg.SemaphoreAcquireTimeout, appCfg.GlobalHarvestTimeout, appCfg.PerArticleTimeout)
	log.Infof("Global Config Cache: Enabled:%t, Backend:'%s', TTL:%v",
		appCfg.CacheEnabled, appCfg.CacheBackend, appCfg.CacheTTL)
	log.Infof("Global Config Dedupe: Persist:%t, MaxArticleAge:%v",
		appCfg.DedupePersist, appCfg.MaxArticleAge)
	log.Infof("Global Config Extraction: MinParagraph:%d, MinWords:%d, Readability:%t, TokenCounting:%t",
		appCfg.MinParagraphLength, appCfg.MinWordCount, appCfg.EnableReadability, appCfg.EnableTokenCounting)
	log.Infof("Global Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
	log.Infof("Global Config Output Mapping: Enabled Globally:%t, Default Global Filename:'%s'",
		appCfg.EnableOutputMapping, appCfg.OutputMappingFilename)
	log.Infof("Global Config YAML Metadata: Enabled Globally:%t, Default Global Filename:'%s'",
		appCfg.EnableMetadataYAML, appCfg.MetadataYAMLFilename)
	log.Infof("Global Config JSONL: Enabled Globally:%t, Default Global Filename:'%s'",
		appCfg.EnableJSONLOutput, appCfg.JSONLOutputFilename)
	log.Infof("Global Config Chunking: Enabled:%t, MaxSize:%d, Overlap:%d",
		appCfg.ChunkingEnabled, appCfg.ChunkingMaxSize, appCfg.ChunkingOverlap)
}
