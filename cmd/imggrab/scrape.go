package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imggrab/internal/downloader"
	"imggrab/pkg/config"
	"imggrab/pkg/engine"
	"imggrab/pkg/engine/bing"
	"imggrab/pkg/engine/google"
	"imggrab/pkg/engine/page"
	"imggrab/pkg/fetch"
	"imggrab/pkg/ledger"
	"imggrab/pkg/logger"
	"imggrab/pkg/ratelimit"
	"imggrab/pkg/ui"
)

var (
	// Scrape command flags
	engineNames        []string
	numImages          int
	outputDir          string
	keepFilenames      bool
	convertWebP        bool
	compressionQuality int
	resizeWidth        int
	resizeHeight       int
	minResolution      string
	maxResolution      string
	maxMissed          int
	pageDepth          int
	downloadTimeout    int
	rateLimit          int
	maxRetries         int
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <query-or-url>",
	Short: "Download images for a search query or from a web page",
	Long: `Download images for a search query using the enabled engines, or
scrape all images from a web page when the page engine is enabled.

Each engine writes into its own directory under the output directory, named
after the query. A record file in that directory remembers which URLs were
already downloaded, so re-running the same query only fetches new images.`,
	Example: `  # Download 10 images from Bing (the default engine)
  imggrab scrape "mountain lake"

  # Use several engines and fetch more images
  imggrab scrape "mountain lake" --engines bing,google --num-images 50

  # Scrape every image from a page, following same-host links one level deep
  imggrab scrape https://example.com/gallery --engines page --depth 1

  # Keep original filenames and skip small images
  imggrab scrape "mountain lake" --keep-filenames --min-resolution 800x600

  # Convert WebP results to JPEG and recompress everything
  imggrab scrape "mountain lake" --convert-webp --compression-quality 80`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringSliceVarP(&engineNames, "engines", "e", nil, "engines to use (bing, google, page)")
	scrapeCmd.Flags().IntVarP(&numImages, "num-images", "n", 0, "number of images to download per engine")
	scrapeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "base output directory")
	scrapeCmd.Flags().BoolVar(&keepFilenames, "keep-filenames", false, "keep original filenames where possible")
	scrapeCmd.Flags().BoolVar(&convertWebP, "convert-webp", false, "convert WebP images to JPEG")
	scrapeCmd.Flags().IntVar(&compressionQuality, "compression-quality", 0, "JPEG recompression quality (1-100, 0 disables)")
	scrapeCmd.Flags().IntVar(&resizeWidth, "resize-width", 0, "downscale images wider than this")
	scrapeCmd.Flags().IntVar(&resizeHeight, "resize-height", 0, "downscale images taller than this")
	scrapeCmd.Flags().StringVar(&minResolution, "min-resolution", "", "minimum resolution, e.g. 800x600")
	scrapeCmd.Flags().StringVar(&maxResolution, "max-resolution", "", "maximum resolution, e.g. 1920x1080")
	scrapeCmd.Flags().IntVar(&maxMissed, "max-missed", 0, "stop an engine after this many consecutive failures")
	scrapeCmd.Flags().IntVar(&pageDepth, "depth", 0, "same-host link recursion depth for the page engine")
	scrapeCmd.Flags().IntVar(&downloadTimeout, "timeout", 0, "per-request timeout in seconds")
	scrapeCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute")
	scrapeCmd.Flags().IntVar(&maxRetries, "max-retries", -1, "maximum retry attempts per download")
}

func runScrape(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(args[0])
	if query == "" {
		return fmt.Errorf("query must not be empty")
	}

	flags, err := scrapeFlags()
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("imggrab starting")

	printer := ui.NewPrinter(quiet)

	client := fetch.NewClient(cfg.Download.Timeout, cfg.Engines.UserAgent, log)
	registry, err := engine.NewRegistry(
		bing.New(client, log),
		google.New(client, log),
		page.New(client, cfg.Engines.PageDepth, log),
	)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	driver := downloader.New(client, limiter, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer.Header(query, cfg.Engines.Enabled)

	var summaries []ui.RunSummary
	anySaved := false
	anySucceeded := false

	for _, name := range cfg.Engines.Enabled {
		eng, ok := registry.Get(name)
		if !ok {
			// Validate catches unknown engines; a miss here is a programming error.
			return fmt.Errorf("engine %q is not registered", name)
		}

		printer.EngineStart(eng.Name(), cfg.Download.NumImages)

		summary, err := runEngine(ctx, driver, eng, query, cfg, log)
		summaries = append(summaries, summary)
		if err != nil {
			if ctx.Err() != nil {
				printer.Error("interrupted")
				break
			}
			continue
		}
		anySucceeded = true
		if summary.Saved > 0 {
			anySaved = true
		}
	}

	printer.Summary(summaries)

	if !anySucceeded && !anySaved {
		return fmt.Errorf("all engine runs failed")
	}
	return nil
}

// runEngine opens the ledger for one engine and drives its download run.
func runEngine(ctx context.Context, driver *downloader.Driver, eng engine.Engine, query string, cfg *config.Config, log logger.Logger) (ui.RunSummary, error) {
	dir := filepath.Join(cfg.Output.BaseDirectory, eng.Name(), querySlug(eng.Name(), query))

	led, err := ledger.Open(dir, eng.Name(), log)
	if err != nil {
		log.WithError(err).WithField("engine", eng.Name()).Error("failed to open download record")
		return ui.RunSummary{Engine: eng.Name(), Failed: true, FailReason: err.Error()}, err
	}
	defer led.Close()

	result, err := driver.Run(ctx, eng, query, led)
	summary := ui.RunSummary{
		Engine:      result.Engine,
		Saved:       result.Saved,
		Skipped:     result.Skipped,
		Errors:      result.Errors,
		Destination: result.Destination,
		Duration:    result.Duration,
	}
	if err != nil {
		log.WithError(err).WithField("engine", eng.Name()).Error("engine run failed")
		summary.Failed = true
		summary.FailReason = err.Error()
		return summary, err
	}
	return summary, nil
}

// querySlug derives the per-query directory name. Page URLs slug to their
// host and path so different pages on one site stay separate.
func querySlug(engineName, query string) string {
	if engineName == "page" {
		raw := query
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			slug := ledger.Slugify(u.Hostname() + strings.ReplaceAll(u.Path, "/", " "))
			if slug != "" {
				return slug
			}
		}
	}
	slug := ledger.Slugify(query)
	if slug == "" {
		slug = "query"
	}
	return slug
}

// scrapeFlags collects explicitly set command line flags for config merging.
func scrapeFlags() (map[string]interface{}, error) {
	flags := make(map[string]interface{})

	if len(engineNames) > 0 {
		flags["engines"] = engineNames
	}
	if numImages > 0 {
		flags["num-images"] = numImages
	}
	if outputDir != "" {
		flags["output-dir"] = outputDir
	}
	if keepFilenames {
		flags["keep-filenames"] = true
	}
	if convertWebP {
		flags["convert-webp"] = true
	}
	if compressionQuality > 0 {
		flags["compression-quality"] = compressionQuality
	}
	if resizeWidth > 0 {
		flags["resize-width"] = resizeWidth
	}
	if resizeHeight > 0 {
		flags["resize-height"] = resizeHeight
	}
	if minResolution != "" {
		res, err := parseResolution(minResolution)
		if err != nil {
			return nil, fmt.Errorf("invalid --min-resolution: %w", err)
		}
		flags["min-resolution"] = res
	}
	if maxResolution != "" {
		res, err := parseResolution(maxResolution)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-resolution: %w", err)
		}
		flags["max-resolution"] = res
	}
	if maxMissed > 0 {
		flags["max-missed"] = maxMissed
	}
	if pageDepth > 0 {
		flags["depth"] = pageDepth
	}
	if downloadTimeout > 0 {
		flags["timeout"] = time.Duration(downloadTimeout) * time.Second
	}
	if rateLimit > 0 {
		flags["rate-limit"] = rateLimit
	}
	if maxRetries >= 0 {
		flags["max-retries"] = maxRetries
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	return flags, nil
}

// parseResolution parses "WIDTHxHEIGHT" into a two-element slice.
func parseResolution(value string) ([]int, error) {
	parts := strings.SplitN(strings.ToLower(value), "x", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("expected WIDTHxHEIGHT, got %q", value)
	}
	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || width <= 0 {
		return nil, fmt.Errorf("invalid width in %q", value)
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || height <= 0 {
		return nil, fmt.Errorf("invalid height in %q", value)
	}
	return []int{width, height}, nil
}
