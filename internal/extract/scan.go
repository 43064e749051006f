package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"naimeta/internal/config"
	"naimeta/internal/logging"
)

// ScanOptions controls which files a scan visits and how many are decoded
// concurrently.
type ScanOptions struct {
	Pattern   string
	Recursive bool
	Workers   int
}

// ScanOptionsFromConfig returns the scan section of cfg as ScanOptions.
func ScanOptionsFromConfig(cfg *config.Config) ScanOptions {
	return ScanOptions{
		Pattern:   cfg.Scan.Pattern,
		Recursive: cfg.Scan.Recursive,
		Workers:   cfg.Scan.Workers,
	}
}

// Failure records a file that could not be processed.
type Failure struct {
	Path string
	Err  error
}

// Report is the outcome of a directory scan.
type Report struct {
	Dir   string
	Files int
	// Results holds one entry per processed file in path order, including
	// images without metadata. Failed files are listed in Failures instead.
	Results  []*Result
	Misses   []string
	Failures []Failure
	Cached   int
	Pruned   int
	Elapsed  time.Duration
}

// Extracted counts results that carried metadata.
func (r *Report) Extracted() int {
	n := 0
	for _, res := range r.Results {
		if res.HasMetadata() {
			n++
		}
	}
	return n
}

type scanOutcome struct {
	res *Result
	err error
}

// Scan extracts every file in dir matching opts.Pattern. Per-file errors are
// collected in the report; the returned error is reserved for listing
// failures and cancellation.
func (e *Extractor) Scan(ctx context.Context, dir string, opts ScanOptions) (*Report, error) {
	start := time.Now()
	if opts.Pattern == "" {
		opts.Pattern = "*.png"
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	logger := e.logger.With(logging.String(logging.FieldPath, dir))

	paths, err := ListFiles(dir, opts.Pattern, opts.Recursive)
	if err != nil {
		return nil, err
	}
	report := &Report{Dir: dir, Files: len(paths)}
	logger.Info("scan started",
		logging.Int("files", len(paths)),
		logging.Int("workers", opts.Workers),
		logging.Bool("recursive", opts.Recursive))

	outcomes := make([]scanOutcome, len(paths))
	jobs := make(chan int)
	done := make(chan int)

	workers := min(opts.Workers, max(len(paths), 1))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				res, err := e.ExtractFile(ctx, paths[idx])
				outcomes[idx] = scanOutcome{res: res, err: err}
				done <- idx
			}
		}()
	}

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		sampler := logging.NewProgressSampler(10)
		completed := 0
		for range done {
			completed++
			if sampler.ShouldLogCount(completed, len(paths), "extract") {
				logger.Info("scan progress",
					logging.Int("done", completed),
					logging.Int("total", len(paths)))
			}
		}
	}()

feed:
	for idx := range paths {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()
	close(done)
	<-progressDone

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keep := make([]string, 0, len(paths))
	for idx, path := range paths {
		out := outcomes[idx]
		switch {
		case out.err == nil:
			report.Results = append(report.Results, out.res)
		case errors.Is(out.err, ErrNoMetadata) && out.res != nil:
			report.Results = append(report.Results, out.res)
			report.Misses = append(report.Misses, out.res.Filename)
		default:
			report.Failures = append(report.Failures, Failure{Path: path, Err: out.err})
			logging.WarnWithContext(logger, "image extraction failed", "extract_failed",
				logging.String("file", path),
				logging.Error(out.err),
				logging.String(logging.FieldImpact, "image omitted from export"))
			continue
		}
		if out.res.Cached {
			report.Cached++
		}
		if abs, err := filepath.Abs(path); err == nil {
			keep = append(keep, abs)
		}
	}

	if e.cache != nil {
		absDir, err := filepath.Abs(dir)
		if err == nil {
			report.Pruned, err = e.cache.Prune(ctx, absDir, opts.Recursive, keep)
		}
		if err != nil {
			logging.WarnWithContext(logger, "cache prune failed", "metacache_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale cache entries kept"))
		}
	}

	report.Elapsed = time.Since(start)
	logger.Info("scan finished",
		logging.Int("files", report.Files),
		logging.Int("extracted", report.Extracted()),
		logging.Int("misses", len(report.Misses)),
		logging.Int("failures", len(report.Failures)),
		logging.Int("cached", report.Cached),
		logging.Duration("elapsed", report.Elapsed))
	return report, nil
}

// ListFiles returns the regular files in dir whose base name matches pattern,
// sorted by path. With recursive set, subdirectories are walked as well.
func ListFiles(dir, pattern string, recursive bool) ([]string, error) {
	if _, err := filepath.Match(pattern, "probe.png"); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan %s: not a directory", dir)
	}

	var paths []string
	match := func(path string, d fs.DirEntry) {
		if !d.Type().IsRegular() {
			return
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			paths = append(paths, path)
		}
	}

	if recursive {
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			match(path, d)
			return nil
		})
	} else {
		var entries []fs.DirEntry
		entries, err = os.ReadDir(dir)
		for _, d := range entries {
			match(filepath.Join(dir, d.Name()), d)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}
