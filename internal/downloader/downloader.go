// Package downloader drives a single engine run: it walks the engine's
// candidates, filters and transforms each image, and writes the survivors
// into a ledger-managed directory. Candidates are processed sequentially
// because each ledger has exactly one writer.
package downloader

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imggrab/pkg/config"
	"imggrab/pkg/engine"
	errs "imggrab/pkg/errors"
	"imggrab/pkg/imaging"
	"imggrab/pkg/ledger"
	"imggrab/pkg/logger"
	"imggrab/pkg/ratelimit"
	"imggrab/pkg/retry"
)

// dataURLRecordLen is how much of a data: URI is kept in the ledger record.
const dataURLRecordLen = 50

// ImageFetcher fetches raw image bytes for a candidate URL.
type ImageFetcher interface {
	FetchImage(ctx context.Context, rawURL string, referer string) ([]byte, string, error)
}

// Result summarizes one engine run.
type Result struct {
	Engine      string
	Requested   int
	Saved       int
	Skipped     int
	Errors      int
	Destination string
	Duration    time.Duration
}

// Driver downloads candidates from a single engine into a ledger directory.
type Driver struct {
	client  ImageFetcher
	limiter ratelimit.Limiter
	cfg     *config.Config
	logger  logger.Logger
}

// New creates a download driver.
func New(client ImageFetcher, limiter ratelimit.Limiter, cfg *config.Config, log logger.Logger) *Driver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Driver{
		client:  client,
		limiter: limiter,
		cfg:     cfg,
		logger:  log,
	}
}

// Run fetches up to cfg.Download.NumImages new images for query from eng.
// Per-candidate failures are logged and counted; only ledger and context
// errors abort the run. A streak of MaxMissed consecutive failures stops
// the run early.
func (d *Driver) Run(ctx context.Context, eng engine.Engine, query string, led *ledger.Ledger) (*Result, error) {
	start := time.Now()
	result := &Result{
		Engine:      eng.Name(),
		Requested:   d.cfg.Download.NumImages,
		Destination: led.Dir(),
	}

	d.logger.InfoWithFields("starting engine run", map[string]interface{}{
		"engine": eng.Name(),
		"query":  query,
		"count":  d.cfg.Download.NumImages,
	})

	// Ask for extra candidates so filtered and failed ones do not starve
	// the run.
	candidateLimit := d.cfg.Download.NumImages * 3
	candidates, err := eng.Candidates(ctx, query, candidateLimit)
	if err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("engine %s: %w", eng.Name(), err)
	}

	missed := 0
	for _, candidate := range candidates {
		if result.Saved >= d.cfg.Download.NumImages {
			break
		}
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		if d.cfg.Engines.MaxMissed > 0 && missed >= d.cfg.Engines.MaxMissed {
			d.logger.WarnWithFields("too many consecutive failures, stopping engine run", map[string]interface{}{
				"engine": eng.Name(),
				"missed": missed,
			})
			break
		}

		recordURL := recordKey(candidate.URL)
		if led.IsKnown(recordURL) {
			d.logger.WithField("url", recordURL).Debug("already downloaded, skipping")
			result.Skipped++
			continue
		}

		if err := d.processCandidate(ctx, candidate, recordURL, led); err != nil {
			if isFatal(err) {
				result.Duration = time.Since(start)
				return result, err
			}
			if errs.IsType(err, errs.ErrorTypeFilterRejected) {
				d.logger.WithField("url", candidate.URL).Debug("image rejected by resolution filter")
				result.Skipped++
			} else {
				d.logger.WithError(err).WithField("url", candidate.URL).Warn("failed to download image")
				result.Errors++
			}
			missed++
			continue
		}

		result.Saved++
		missed = 0
	}

	result.Duration = time.Since(start)
	d.logger.InfoWithFields("engine run finished", map[string]interface{}{
		"engine":  result.Engine,
		"saved":   result.Saved,
		"skipped": result.Skipped,
		"errors":  result.Errors,
	})

	return result, nil
}

// processCandidate downloads, filters, transforms, and stores one candidate.
func (d *Driver) processCandidate(ctx context.Context, candidate engine.Candidate, recordURL string, led *ledger.Ledger) error {
	var (
		data        []byte
		contentType string
	)

	if strings.HasPrefix(candidate.URL, "data:image") {
		decoded, ct, err := decodeDataURL(candidate.URL)
		if err != nil {
			return err
		}
		data, contentType = decoded, ct
	} else {
		if !d.limiter.Allow() {
			d.limiter.Wait()
		}

		fetched, err := retry.DoWithResult(func() (fetchResult, error) {
			body, ct, err := d.client.FetchImage(ctx, candidate.URL, candidate.Referer)
			return fetchResult{body: body, contentType: ct}, err
		}, retry.ForDownload(ctx, d.cfg.Download.RetryAttempts, d.logger))
		if err != nil {
			return err
		}
		data, contentType = fetched.body, fetched.contentType
	}

	if err := d.checkResolution(data); err != nil {
		return err
	}

	if d.cfg.Filter.ConvertWebP && imaging.IsWebP(data) {
		converted, err := imaging.ConvertWebPToJPEG(data)
		if err != nil {
			return err
		}
		data = converted
		contentType = "image/jpeg"
	}

	if d.cfg.Filter.CompressionQuality > 0 || d.cfg.Filter.ResizeWidth > 0 || d.cfg.Filter.ResizeHeight > 0 {
		data = imaging.Recompress(data, d.cfg.Filter.CompressionQuality, d.cfg.Filter.ResizeWidth, d.cfg.Filter.ResizeHeight)
	}

	name := led.ReserveName(candidate.Name, candidate.URL, d.cfg.Download.KeepFilenames, contentType)
	if err := writeAtomic(filepath.Join(led.Dir(), name), data); err != nil {
		return err
	}
	if err := led.Record(recordURL); err != nil {
		return err
	}

	d.logger.InfoWithFields("saved image", map[string]interface{}{
		"file": name,
		"size": len(data),
	})
	return nil
}

type fetchResult struct {
	body        []byte
	contentType string
}

// checkResolution rejects images outside the configured bounds. Undecodable
// images pass through untouched so exotic formats are not lost.
func (d *Driver) checkResolution(data []byte) error {
	f := d.cfg.Filter
	if f.MinWidth <= 0 && f.MinHeight <= 0 && f.MaxWidth <= 0 && f.MaxHeight <= 0 {
		return nil
	}

	width, height, err := imaging.Dimensions(data)
	if err != nil {
		d.logger.WithError(err).Debug("could not decode image dimensions, keeping image")
		return nil
	}

	if (f.MinWidth > 0 && width < f.MinWidth) || (f.MinHeight > 0 && height < f.MinHeight) {
		return errs.Newf(errs.ErrorTypeFilterRejected, "image %dx%d below minimum", width, height)
	}
	if (f.MaxWidth > 0 && width > f.MaxWidth) || (f.MaxHeight > 0 && height > f.MaxHeight) {
		return errs.Newf(errs.ErrorTypeFilterRejected, "image %dx%d above maximum", width, height)
	}
	return nil
}

// recordKey truncates data: URIs so ledger records stay line-sized.
func recordKey(rawURL string) string {
	if strings.HasPrefix(rawURL, "data:image") && len(rawURL) > dataURLRecordLen {
		return rawURL[:dataURLRecordLen] + "..."
	}
	return rawURL
}

// decodeDataURL extracts the payload of a base64 data: URI.
func decodeDataURL(rawURL string) ([]byte, string, error) {
	rest := strings.TrimPrefix(rawURL, "data:")
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return nil, "", errs.New(errs.ErrorTypeParsing, "malformed data URL")
	}

	meta, payload := rest[:comma], rest[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", errs.New(errs.ErrorTypeParsing, "unsupported data URL encoding")
	}
	contentType := strings.TrimSuffix(meta, ";base64")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", errs.Newf(errs.ErrorTypeParsing, "invalid base64 data URL: %v", err)
	}
	return data, contentType, nil
}

// writeAtomic writes data to path via a temp file and rename so a partial
// download never appears under its final name.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errs.Newf(errs.ErrorTypeIO, "failed to write temporary file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.Newf(errs.ErrorTypeIO, "failed to rename temporary file: %v", err)
	}
	return nil
}

// isFatal reports whether an error must abort the whole engine run instead
// of being charged to a single candidate.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errs.IsType(err, errs.ErrorTypeIO)
}
