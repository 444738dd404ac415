package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// DownloadRequest describes one external downloader invocation.
type DownloadRequest struct {
	URL      string
	Format   string
	Dir      string
	BaseName string
	// Ext forces the output extension instead of the downloader's choice.
	Ext             string
	AudioOnly       bool
	FragmentRetries int
	// AllowUnplayable keeps encrypted formats selectable.
	AllowUnplayable bool
}

// BuildDownloadArgs builds the downloader argument list. No shell is
// involved, so URLs and names are passed through verbatim.
func BuildDownloadArgs(req DownloadRequest, cookiesFile string) []string {
	var args []string
	if req.Format != "" {
		args = append(args, "-f", req.Format)
	}
	if req.AudioOnly {
		args = append(args, "-x", "--audio-format", "mp3")
	}
	if req.FragmentRetries > 0 {
		n := strconv.Itoa(req.FragmentRetries)
		args = append(args, "--fragment-retries", n, "--retries", n)
	}
	if req.AllowUnplayable {
		args = append(args, "--allow-unplayable-formats")
	}
	if cookiesFile != "" {
		args = append(args, "--cookies", cookiesFile)
	}

	ext := "%(ext)s"
	if req.Ext != "" {
		ext = req.Ext
	}
	args = append(args,
		"--no-warnings",
		"--no-playlist",
		"-o", filepath.Join(req.Dir, req.BaseName+"."+ext),
		req.URL,
	)
	return args
}

// Downloader drives the external media downloader.
type Downloader struct {
	runner      Runner
	binary      string
	cookiesFile string
	logger      *slog.Logger
}

// NewDownloader creates a downloader. cookiesFile is passed to the binary
// only while it exists, so it can be replaced at runtime.
func NewDownloader(runner Runner, binary, cookiesFile string, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{runner: runner, binary: binary, cookiesFile: cookiesFile, logger: logger}
}

func (d *Downloader) cookies() string {
	if d.cookiesFile == "" {
		return ""
	}
	if _, err := os.Stat(d.cookiesFile); err != nil {
		return ""
	}
	return d.cookiesFile
}

// Download runs the downloader in an isolated directory under req.Dir and
// moves the single finished file into req.Dir. It returns ErrNoOutput when
// the process exits cleanly without producing a file.
func (d *Downloader) Download(ctx context.Context, req DownloadRequest) (string, error) {
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	tempDir, err := os.MkdirTemp(req.Dir, ".dl-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	isolated := req
	isolated.Dir = tempDir
	args := BuildDownloadArgs(isolated, d.cookies())

	d.logger.Debug("running downloader", "url", req.URL, "format", req.Format, "dir", tempDir)
	if _, err := d.runner.Run(ctx, tempDir, d.binary, args...); err != nil {
		return "", err
	}

	out, err := FindOutput(tempDir, req.BaseName)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(req.Dir, filepath.Base(out))
	if err := moveFile(out, dst); err != nil {
		return "", fmt.Errorf("move output: %w", err)
	}
	return dst, nil
}
