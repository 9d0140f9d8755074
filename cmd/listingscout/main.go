// Command listingscout runs the marketplace listing acquisition pipeline:
// it searches every active keyword through a real browser session and stores
// the deduplicated results.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/ListingScout/internal/browser"
	"github.com/valpere/ListingScout/internal/config"
	"github.com/valpere/ListingScout/internal/identity"
	"github.com/valpere/ListingScout/internal/jobs"
	"github.com/valpere/ListingScout/internal/scraper"
	"github.com/valpere/ListingScout/internal/storage"
	"github.com/valpere/ListingScout/internal/utils"
)

var version = "dev"

func main() {
	var (
		configPath   = flag.String("config", "config.yaml", "path to configuration file")
		keywordsPath = flag.String("keywords", "", "import keywords from file (one per line) and exit")
		category     = flag.String("category", "", "category assigned to imported keywords")
		metricsAddr  = flag.String("metrics", "", "listen address for Prometheus metrics (empty disables)")
		showVersion  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("listingscout", version)
		return
	}

	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := utils.NewLoggerWithLevel(parseLogLevel(cfg.Logging.Level))

	store, err := storage.Open(cfg.Storage.Path, log)
	if err != nil {
		log.Errorf("storage: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *keywordsPath != "" {
		if err := importKeywords(ctx, store, *keywordsPath, *category, log); err != nil {
			log.Errorf("keyword import: %v", err)
			os.Exit(1)
		}
		return
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, log)
	}

	if err := run(ctx, cfg, store, log); err != nil {
		log.Errorf("run failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, store *storage.Store, log utils.Logger) error {
	username, password := cfg.Credentials()
	session := browser.NewSession(&browser.Config{
		Headless:           cfg.Scraping.Headless,
		ProxyURL:           cfg.Scraping.ProxyURL,
		BaseURL:            cfg.Site.BaseURL,
		NavigationTimeout:  cfg.Search.NavigationTimeoutDuration(),
		EvasionProbability: cfg.Scraping.EvasionProbability,
		Username:           username,
		Password:           password,
		CaptureScreenshots: cfg.Scraping.DebugScreenshots,
		ScreenshotDir:      cfg.Scraping.ScreenshotDir,
	}, log, nil)
	defer session.Stop()

	pool := identity.NewPool(identity.Config{
		DefaultUserAgent:   cfg.Identity.DefaultUserAgent,
		DefaultProbability: cfg.Identity.DefaultProbability,
	}, nil)

	navigator := scraper.NewNavigator(session, pool, &scraper.NavigatorConfig{
		BaseURL:           cfg.Site.BaseURL,
		MaxPages:          cfg.Search.MaxPages,
		ItemsPerPage:      cfg.Search.ItemsPerPage,
		RequestDelay:      cfg.Search.RequestDelayDuration(),
		RequestJitter:     cfg.Search.RequestJitterDuration(),
		NavigationTimeout: cfg.Search.NavigationTimeoutDuration(),
	}, log, nil)

	// Login is best effort; the pipeline proceeds unauthenticated on failure.
	session.Login(ctx)

	orchestrator := jobs.NewOrchestrator(store, navigator, scraper.DefaultRetryPolicy(), log)
	summary, err := orchestrator.Run(ctx, cfg.Filters())
	if err != nil {
		return err
	}

	fmt.Printf("job %d: %d/%d keywords succeeded, %d failed, %d new listings in %s\n",
		summary.JobID, summary.Successful, summary.Total, summary.Failed,
		summary.Inserted, summary.Duration.Round(time.Millisecond))
	return nil
}

// importKeywords loads search terms from a file, one per line, skipping
// blanks and comment lines.
func importKeywords(ctx context.Context, store *storage.Store, path, category string, log utils.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var texts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		texts = append(texts, line)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	added, err := store.AddKeywords(ctx, texts, category)
	if err != nil {
		return err
	}
	log.Infof("imported %d new keywords (%d in file)", added, len(texts))
	return nil
}

func serveMetrics(addr string, log utils.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Infof("serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warnf("metrics server: %v", err)
	}
}

func parseLogLevel(level string) utils.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return utils.DebugLevel
	case "warn", "warning":
		return utils.WarnLevel
	case "error":
		return utils.ErrorLevel
	default:
		return utils.InfoLevel
	}
}
