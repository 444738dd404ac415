package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cwygoda/linkbatch/internal/domain"
)

// ErrDecryptNoFile is returned when a decrypt helper finishes without
// leaving an output file.
var ErrDecryptNoFile = errors.New("decrypt helper returned no file")

// DecryptHelper runs the external decrypt-and-merge toolchain.
type DecryptHelper struct {
	runner     Runner
	downloader *Downloader
	ffmpeg     string
	mp4decrypt string
	// appx is an argv template with {file}, {key} and {out} placeholders.
	appx   []string
	logger *slog.Logger
}

// NewDecryptHelper creates a helper.
func NewDecryptHelper(runner Runner, downloader *Downloader, ffmpeg, mp4decrypt string, appx []string, logger *slog.Logger) *DecryptHelper {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecryptHelper{
		runner:     runner,
		downloader: downloader,
		ffmpeg:     ffmpeg,
		mp4decrypt: mp4decrypt,
		appx:       appx,
		logger:     logger,
	}
}

// DecryptAndMerge downloads the encrypted video and audio tracks of a keyed
// manifest, decrypts each with every key and muxes them into dir/base.mp4.
func (h *DecryptHelper) DecryptAndMerge(ctx context.Context, target domain.ResolvedTarget, dir, base string, q domain.Quality) (string, error) {
	if len(target.KeyMaterial) == 0 {
		return "", errors.New("no key material")
	}
	work, err := os.MkdirTemp(dir, ".drm-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(work)

	video, err := h.downloader.Download(ctx, DownloadRequest{
		URL:             target.FinalURL,
		Format:          fmt.Sprintf("bv[height<=%d]/bv", int(q)),
		Dir:             work,
		BaseName:        "video.enc",
		FragmentRetries: 25,
		AllowUnplayable: true,
	})
	if err != nil {
		return "", fmt.Errorf("video track: %w", err)
	}
	audio, err := h.downloader.Download(ctx, DownloadRequest{
		URL:             target.FinalURL,
		Format:          "ba",
		Dir:             work,
		BaseName:        "audio.enc",
		FragmentRetries: 25,
		AllowUnplayable: true,
	})
	if err != nil {
		return "", fmt.Errorf("audio track: %w", err)
	}

	videoDec := filepath.Join(work, "video.dec.mp4")
	audioDec := filepath.Join(work, "audio.dec.m4a")
	if err := h.mp4Decrypt(ctx, work, target.KeyMaterial, video, videoDec); err != nil {
		return "", err
	}
	if err := h.mp4Decrypt(ctx, work, target.KeyMaterial, audio, audioDec); err != nil {
		return "", err
	}

	out := filepath.Join(dir, base+".mp4")
	if _, err := h.runner.Run(ctx, work, h.ffmpeg,
		"-y", "-i", videoDec, "-i", audioDec, "-c", "copy", out); err != nil {
		return "", err
	}
	if !exists(out) {
		return "", ErrDecryptNoFile
	}
	return out, nil
}

func (h *DecryptHelper) mp4Decrypt(ctx context.Context, dir string, keys []string, in, out string) error {
	args := make([]string, 0, len(keys)*2+2)
	for _, k := range keys {
		args = append(args, "--key", k)
	}
	args = append(args, in, out)
	if _, err := h.runner.Run(ctx, dir, h.mp4decrypt, args...); err != nil {
		return err
	}
	if !exists(out) {
		return ErrDecryptNoFile
	}
	return nil
}

// DecryptAppxStream downloads an encrypted container and runs the configured
// decrypt command with the raw key, producing a file under dir named base.
func (h *DecryptHelper) DecryptAppxStream(ctx context.Context, target domain.ResolvedTarget, dir, base string, q domain.Quality) (string, error) {
	if len(h.appx) == 0 {
		return "", errors.New("encrypted stream decrypt command not configured")
	}
	work, err := os.MkdirTemp(dir, ".appx-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(work)

	enc, err := h.downloader.Download(ctx, DownloadRequest{
		URL:             target.FinalURL,
		Format:          fmt.Sprintf("b[height<=%d]/b", int(q)),
		Dir:             work,
		BaseName:        "stream.enc",
		FragmentRetries: 25,
	})
	if err != nil {
		return "", err
	}

	out := filepath.Join(dir, base+filepath.Ext(enc))
	args := ExpandArgs(h.appx[1:], map[string]string{
		"file": enc,
		"key":  target.EncryptionKey,
		"out":  out,
	})
	if _, err := h.runner.Run(ctx, work, h.appx[0], args...); err != nil {
		return "", err
	}
	if !exists(out) {
		return "", ErrDecryptNoFile
	}
	return out, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
