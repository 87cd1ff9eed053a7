package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"caption-crawler/pkg/config"
	applog "caption-crawler/pkg/log"
	"caption-crawler/pkg/orchestrate"
	"caption-crawler/pkg/progress"
	"caption-crawler/pkg/sources"
	"caption-crawler/pkg/storage"
)

const version = "0.9.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:], false)
	case "resume":
		runCrawl(os.Args[2:], true)
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("caption-crawler %s\n", version)
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
	fmt.Fprintln(w, `caption-crawler - Batch caption/transcript crawler

Usage:
  caption-crawler <command> [options]

Commands:
  crawl       Start a fresh batch crawl
  resume      Resume an interrupted crawl (skips completed channels)
  validate    Validate configuration file
  version     Show version info

Run 'caption-crawler <command> -h' for command-specific help.`)
}

// runCrawl handles both crawl and resume subcommands
func runCrawl(args []string, isResume bool) {
	cmdName := "crawl"
	if isResume {
		cmdName = "resume"
	}

	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	channels := fs.String("channels", "", "Comma-separated channel IDs or handles")
	channelsFile := fs.String("channels-file", "", "File with one channel ID per line")
	provider := fs.String("provider", "", "Registered content provider name")
	language := fs.String("language", "", "Preferred caption language (overrides config)")
	dateFrom := fs.String("date-from", "", "Only items published on/after this date (YYYY-MM-DD)")
	dateTo := fs.String("date-to", "", "Only items published on/before this date (YYYY-MM-DD)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: caption-crawler %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  caption-crawler %s -channels UCabc123,UCdef456\n", cmdName)
		fmt.Fprintf(os.Stderr, "  caption-crawler %s -channels-file channels.txt -date-from 2024-01-01\n", cmdName)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := applog.Setup(*logLevel)

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	warnings, err := appCfg.Validate()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	for _, w := range warnings {
		log.Warnf("Config: %s", w)
	}
	if *language != "" {
		appCfg.Language = *language
	}

	channelRefs, err := collectChannels(*channels, *channelsFile, appCfg.Channels)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(channelRefs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no channels given; use -channels, -channels-file, or the config file")
		fs.Usage()
		os.Exit(1)
	}

	from, to, err := parseDateWindow(*dateFrom, *dateTo)
	if err != nil {
		log.Fatalf("%v", err)
	}

	logEntry := log.WithField("cmd", cmdName)

	// --- Provider ---
	providerName := *provider
	if providerName == "" {
		names := sources.Names()
		if len(names) != 1 {
			log.Fatalf("No provider selected; use -provider (registered: %v)", names)
		}
		providerName = names[0]
	}
	prov, err := sources.Open(providerName, nil, logEntry)
	if err != nil {
		log.Fatalf("Failed to open provider: %v", err)
	}

	// --- Context & signals (second signal forces exit) ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	// --- Progress store ---
	store := progress.NewStore(appCfg.Batch.ProgressFile, logEntry)
	if err := store.Load(); err != nil {
		log.Fatalf("Failed to load progress file: %v", err)
	}
	if !isResume && store.ProcessedCount() > 0 {
		log.Infof("Fresh crawl requested, discarding checkpoint with %d processed channels", store.ProcessedCount())
		store = progress.NewStore(appCfg.Batch.ProgressFile, logEntry)
	}

	// --- Caption cache ---
	var cache storage.CaptionStore
	if appCfg.Cache.Enabled {
		badgerCache, err := storage.NewBadgerStore(appCfg.Cache.StateDir, logEntry)
		if err != nil {
			log.Fatalf("Failed to open caption cache: %v", err)
		}
		defer badgerCache.Close()
		go badgerCache.RunGC(ctx, 10*time.Minute)
		cache = badgerCache
	}

	// --- Sink ---
	sink, err := newFileSink(appCfg.OutputDir)
	if err != nil {
		log.Fatalf("Failed to prepare output directory: %v", err)
	}

	// --- Orchestrator ---
	orch := orchestrate.NewOrchestrator(appCfg, channelRefs, orchestrate.Sources{
		Meta:    prov.Meta,
		List:    prov.List,
		Content: prov.Content,
		Sink:    sink,
	}, store, cache, nil, logEntry)
	orch.DateFrom = from
	orch.DateTo = to

	result, err := orch.Run(ctx)
	if err != nil {
		log.Warnf("Crawl interrupted: %v", err)
		os.Exit(130)
	}
	if len(result.FailedChannels) > 0 {
		os.Exit(1)
	}
}

// collectChannels merges the flag, file, and config channel lists, deduplicated
// in first-seen order.
func collectChannels(flagVal, filePath string, fromConfig []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref != "" && !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}

	for _, ref := range strings.Split(flagVal, ",") {
		add(ref)
	}
	if filePath != "" {
		f, err := os.Open(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open channels file: %w", err)
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			add(line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read channels file: %w", err)
		}
	}
	for _, ref := range fromConfig {
		add(ref)
	}
	return out, nil
}

// parseDateWindow parses the optional -date-from/-date-to flags.
func parseDateWindow(fromStr, toStr string) (from, to time.Time, err error) {
	const layout = "2006-01-02"
	if fromStr != "" {
		from, err = time.Parse(layout, fromStr)
		if err != nil {
			return from, to, fmt.Errorf("invalid -date-from %q: %w", fromStr, err)
		}
	}
	if toStr != "" {
		to, err = time.Parse(layout, toStr)
		if err != nil {
			return from, to, fmt.Errorf("invalid -date-to %q: %w", toStr, err)
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return from, to, fmt.Errorf("-date-from %q is after -date-to %q", fromStr, toStr)
	}
	return from, to, nil
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: caption-crawler validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Configuration valid.")
	return 0
}
