package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwygoda/linkbatch/internal/domain"
	"github.com/cwygoda/linkbatch/internal/registry"
)

// Executors are the retrieval paths the dispatcher chooses between.
type Executors struct {
	Downloader *Downloader
	Scraper    *Scraper
	Drive      *DriveClient
	Decrypt    *DecryptHelper
	Variants   *VariantPicker
	Deliverer  domain.Deliverer
}

// DispatchConfig holds the scrape policy.
type DispatchConfig struct {
	ScrapeHosts    []string
	BatchAttempts  int
	SingleAttempts int
}

// Dispatcher implements domain.Dispatcher.
type Dispatcher struct {
	ex     Executors
	cfg    DispatchConfig
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(ex Executors, cfg DispatchConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{ex: ex, cfg: cfg, logger: logger}
}

// Execute runs job.Target. On success the job is either DOWNLOADED, leaving
// delivery to the caller, or already SENT for paths that deliver and clean
// up themselves. On failure the job is FAILED and the error returned.
func (d *Dispatcher) Execute(ctx context.Context, job *domain.Job, params domain.BatchParameters) error {
	job.Attempts++
	if err := os.MkdirAll(job.WorkDir, 0o755); err != nil {
		job.Fail(err.Error())
		return fmt.Errorf("create work dir: %w", err)
	}

	path, delivered, err := d.execute(ctx, job, params)
	if err != nil {
		job.Fail(err.Error())
		return err
	}
	if !delivered {
		job.Downloaded(path)
	}
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, job *domain.Job, params domain.BatchParameters) (string, bool, error) {
	t := job.Target
	switch t.Strategy {
	case domain.StrategyDRMKeyed:
		path, err := d.ex.Decrypt.DecryptAndMerge(ctx, t, job.WorkDir, job.BaseName, params.Quality)
		return path, false, err
	case domain.StrategyEncryptedStream:
		path, err := d.ex.Decrypt.DecryptAppxStream(ctx, t, job.WorkDir, job.BaseName, params.Quality)
		return path, false, err
	}

	u := t.FinalURL
	if id, ok := registry.DriveID(u); ok && strings.Contains(u, "drive.google.com") && d.ex.Drive != nil {
		return d.cloud(ctx, job, params, id)
	}

	category := domain.CategoryOf(u)
	switch {
	case t.Strategy == domain.StrategyPDFScrape || category == domain.CategoryPDF:
		if d.isScrapeHost(u) {
			return d.scrape(ctx, job, params)
		}
		path, err := d.ex.Downloader.Download(ctx, DownloadRequest{
			URL:             u,
			Dir:             job.WorkDir,
			BaseName:        job.BaseName,
			Ext:             "pdf",
			FragmentRetries: 25,
		})
		return path, false, err

	case t.Strategy == domain.StrategyAudio || category == domain.CategoryAudio:
		path, err := d.ex.Downloader.Download(ctx, DownloadRequest{
			URL:       u,
			Dir:       job.WorkDir,
			BaseName:  job.BaseName,
			AudioOnly: true,
		})
		return path, false, err

	case t.Strategy == domain.StrategyImage || category == domain.CategoryImage:
		dst := filepath.Join(job.WorkDir, job.BaseName+imageExt(u))
		if err := d.ex.Scraper.Fetch(ctx, u, dst, 1); err != nil {
			return "", false, err
		}
		return dst, false, nil
	}

	return d.generic(ctx, job, params)
}

func (d *Dispatcher) generic(ctx context.Context, job *domain.Job, params domain.BatchParameters) (string, bool, error) {
	t := job.Target
	u := t.FinalURL
	format := t.Format
	if format == "" {
		format = registry.FormatFor(u, params.Quality)
	}

	if d.ex.Variants != nil && strings.Contains(strings.ToLower(u), ".m3u8") {
		v, err := d.ex.Variants.Pick(ctx, u, params.Quality)
		if err != nil {
			d.logger.Warn("variant selection failed, using manifest", "index", job.Index, "error", err)
		} else if v != u {
			u = v
			format = "b/bv*+ba"
		}
	}

	path, err := d.ex.Downloader.Download(ctx, DownloadRequest{
		URL:             u,
		Format:          format,
		Dir:             job.WorkDir,
		BaseName:        job.BaseName,
		FragmentRetries: 10,
	})
	return path, false, err
}

// cloud fetches a Drive file, delivers it and removes the local copy.
func (d *Dispatcher) cloud(ctx context.Context, job *domain.Job, params domain.BatchParameters, id string) (string, bool, error) {
	path, err := d.ex.Drive.Fetch(ctx, id, job.WorkDir, job.BaseName)
	if err != nil {
		return "", false, err
	}
	return d.deliverAndRemove(ctx, job, params, path)
}

// scrape fetches a document from an anti-bot host, delivers it and removes
// the local copy.
func (d *Dispatcher) scrape(ctx context.Context, job *domain.Job, params domain.BatchParameters) (string, bool, error) {
	attempts := d.cfg.BatchAttempts
	if params.Flow == domain.FlowSingle {
		attempts = d.cfg.SingleAttempts
	}
	dst := filepath.Join(job.WorkDir, job.BaseName+".pdf")
	if err := d.ex.Scraper.Fetch(ctx, job.Target.FinalURL, dst, attempts); err != nil {
		return "", false, err
	}
	return d.deliverAndRemove(ctx, job, params, dst)
}

func (d *Dispatcher) deliverAndRemove(ctx context.Context, job *domain.Job, params domain.BatchParameters, path string) (string, bool, error) {
	job.Downloaded(path)
	if err := d.ex.Deliverer.Deliver(ctx, job, params); err != nil {
		return "", false, err
	}
	os.Remove(job.LocalPath)
	return job.LocalPath, true, nil
}

func (d *Dispatcher) isScrapeHost(u string) bool {
	lower := strings.ToLower(u)
	for _, h := range d.cfg.ScrapeHosts {
		if h != "" && strings.Contains(lower, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

func imageExt(u string) string {
	ext := domain.URLExt(u)
	if ext == "" || len(ext) > 5 {
		return ".jpg"
	}
	return ext
}
