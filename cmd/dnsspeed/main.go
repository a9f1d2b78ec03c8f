package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"

	"github.com/iaserrat/dnsspeed/internal/config"
	"github.com/iaserrat/dnsspeed/internal/directory"
	"github.com/iaserrat/dnsspeed/internal/logging"
	"github.com/iaserrat/dnsspeed/internal/metrics"
	"github.com/iaserrat/dnsspeed/internal/probe"
	"github.com/iaserrat/dnsspeed/internal/speedtest"
)

var version = "dev"

type flags struct {
	configPath string
	input      string
	update     bool
	domain     string
	proxy      string
	listFile   string
	top        int
	verbose    bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file (defaults are used when empty)")
	flag.StringVar(&f.input, "input", "", "Comma separated list of resolver IPs to test")
	flag.BoolVar(&f.update, "update", false, "Refresh the resolver list from the public directories and exit")
	flag.StringVar(&f.domain, "domain", "", "Domain to query (overrides speedtest.test_domain)")
	flag.StringVar(&f.proxy, "proxy", "", "HTTP proxy for directory downloads, e.g. http://127.0.0.1:7890")
	flag.StringVar(&f.listFile, "list", "", "Resolver list file (overrides directory.list_file)")
	flag.IntVar(&f.top, "top", 0, "Number of fastest resolvers to print (overrides speedtest.top)")
	flag.BoolVar(&f.verbose, "v", false, "Verbose console output")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	log.SetHandler(cli.New(os.Stderr))
	if f.verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(f); err != nil {
		log.WithError(err).Error("dnsspeed failed")
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	hostID, err := os.Hostname()
	if err != nil || hostID == "" {
		hostID = "unknown"
	}
	runID := fmt.Sprintf("%s-%d", hostID, time.Now().UnixNano())

	logger, err := newLogger(cfg, hostID, runID)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector, err := newCollector(cfg)
	if err != nil {
		return err
	}

	if f.update {
		return updateList(ctx, cfg, collector, logger)
	}

	servers, source := loadServers(ctx, cfg, f.input, collector, logger)
	if err := speedtest.Validate(servers); err != nil {
		return err
	}

	opts := speedtest.Options{
		TestDomain: cfg.SpeedTest.TestDomain,
		Timeout:    time.Duration(cfg.SpeedTest.TimeoutMS) * time.Millisecond,
		BatchSize:  cfg.SpeedTest.BatchSize,
	}

	_ = logger.Emit(&logging.RunStart{
		BaseEvent:  logging.BaseEvent{Type: "run_start"},
		TestDomain: opts.TestDomain,
		Candidates: len(servers),
		BatchSize:  opts.BatchSize,
		TimeoutMs:  opts.Deadline().Milliseconds(),
		Source:     source,
	})

	log.Infof("testing %d dns servers", len(servers))
	start := time.Now()
	obs := newBarObserver(len(servers))
	ranked, runErr := speedtest.Run(ctx, servers, opts, obs)
	obs.finish()

	top := speedtest.Top(ranked, cfg.SpeedTest.Top)
	if err := logResults(logger, len(servers), ranked, top, time.Since(start), runErr); err != nil {
		return err
	}

	printTop(top)
	return runErr
}

func loadConfig(f flags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if f.domain != "" {
		cfg.SpeedTest.TestDomain = f.domain
	}
	if f.proxy != "" {
		cfg.Directory.Proxy = f.proxy
	}
	if f.listFile != "" {
		cfg.Directory.ListFile = f.listFile
	}
	if f.top > 0 {
		cfg.SpeedTest.Top = f.top
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func newLogger(cfg config.Config, hostID, runID string) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Dir:         cfg.Logging.Dir,
		MaxMB:       cfg.Logging.MaxMB,
		MaxFiles:    cfg.Logging.MaxFiles,
		ToolName:    "dnsspeed",
		ToolVersion: version,
		HostID:      hostID,
		RunID:       runID,
	})
}

func newCollector(cfg config.Config) (*directory.Collector, error) {
	fetcher, err := directory.NewFetcher(directory.Config{
		CacheDir:    cfg.Directory.CacheDir,
		CacheTTL:    time.Duration(cfg.Directory.CacheTTLHours) * time.Hour,
		Proxy:       cfg.Directory.Proxy,
		Retries:     cfg.Directory.Retries,
		Backoff:     time.Second,
		HTTPTimeout: time.Duration(cfg.Directory.HTTPTimeoutSecs) * time.Second,
		InsecureTLS: cfg.Directory.InsecureTLS,
	}, log.Log)
	if err != nil {
		return nil, err
	}

	return directory.NewCollector(log.Log, directory.DefaultSources(fetcher)...), nil
}

func updateList(ctx context.Context, cfg config.Config, collector *directory.Collector, logger *logging.Logger) error {
	log.Info("updating dns server list")
	servers, err := collector.Collect(ctx)
	if err == nil {
		err = directory.WriteList(cfg.Directory.ListFile, servers)
	}

	record := &logging.ListUpdate{
		BaseEvent: logging.BaseEvent{Type: "list_update"},
		Path:      cfg.Directory.ListFile,
		Servers:   len(servers),
	}
	if err != nil {
		record.Err = err.Error()
	}
	_ = logger.Emit(record)

	if err != nil {
		return err
	}

	log.Infof("wrote %d servers to %s", len(servers), cfg.Directory.ListFile)
	return nil
}

// loadServers picks the candidate list: explicit input, then the list file,
// then a fresh collection, then the configured fallback.
func loadServers(ctx context.Context, cfg config.Config, input string, collector *directory.Collector, logger *logging.Logger) ([]string, string) {
	if input != "" {
		var servers []string
		for _, ip := range strings.Split(input, ",") {
			servers = append(servers, strings.TrimSpace(ip))
		}
		return servers, "input"
	}

	servers, err := directory.ReadList(cfg.Directory.ListFile)
	if err == nil {
		return servers, "list_file"
	}
	log.WithError(err).Warn("dns list unavailable, collecting a fresh one")

	if err := updateList(ctx, cfg, collector, logger); err != nil {
		log.WithError(err).Warn("collecting dns list failed, using fallback list")
		return cfg.Directory.Fallback, "fallback"
	}

	servers, err = directory.ReadList(cfg.Directory.ListFile)
	if err != nil {
		log.WithError(err).Warn("reading fresh dns list failed, using fallback list")
		return cfg.Directory.Fallback, "fallback"
	}

	return servers, "directory"
}

func logResults(logger *logging.Logger, candidates int, ranked, top []probe.Result, elapsed time.Duration, runErr error) error {
	for i, r := range ranked {
		if err := logger.Emit(&logging.ResolverResult{
			BaseEvent: logging.BaseEvent{Type: "resolver_result"},
			Rank:      i + 1,
			IP:        r.IP,
			RttMs:     r.Millis(),
			Outcome:   string(r.Outcome),
		}); err != nil {
			return err
		}
	}

	stats := metrics.Compute(candidates, ranked)
	summary := &logging.RunSummary{
		BaseEvent:  logging.BaseEvent{Type: "run_summary"},
		Candidates: stats.Candidates,
		Reachable:  stats.Reachable,
		LossPct:    stats.LossPct,
		RttMinMs:   stats.RttMinMs,
		RttAvgMs:   stats.RttAvgMs,
		RttP95Ms:   stats.RttP95Ms,
		Top:        make([]string, 0, len(top)),
		DurationMs: elapsed.Milliseconds(),
	}
	for _, r := range top {
		summary.Top = append(summary.Top, r.IP)
	}
	if runErr != nil {
		summary.Err = runErr.Error()
	}

	log.WithFields(log.Fields{
		"reachable": stats.Reachable,
		"loss_pct":  fmt.Sprintf("%.1f", stats.LossPct),
		"p95_ms":    stats.RttP95Ms,
	}).Info("test complete")

	return logger.Emit(summary)
}

func printTop(top []probe.Result) {
	if len(top) == 0 {
		fmt.Println("\nNo dns server replied in time.")
		return
	}

	fmt.Println("\nFastest dns servers:")
	for i, r := range top {
		fmt.Printf("%d. %s (RTT: %dms)\n", i+1, r.IP, r.Millis())
	}
}
