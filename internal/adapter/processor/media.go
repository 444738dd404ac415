package processor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/cwygoda/linkbatch/internal/domain"
)

// FFmpeg wraps the ffmpeg operations used before delivery.
type FFmpeg struct {
	runner Runner
	binary string
}

// NewFFmpeg creates an ffmpeg wrapper.
func NewFFmpeg(runner Runner, binary string) *FFmpeg {
	return &FFmpeg{runner: runner, binary: binary}
}

// Thumbnail writes the frame at 10s of video to a .jpg next to it.
func (f *FFmpeg) Thumbnail(ctx context.Context, video string) (string, error) {
	dst := strings.TrimSuffix(video, filepath.Ext(video)) + ".thumb.jpg"
	if _, err := f.runner.Run(ctx, filepath.Dir(video), f.binary,
		"-y", "-ss", "10", "-i", video, "-vframes", "1", "-q:v", "2", dst); err != nil {
		return "", err
	}
	if !exists(dst) {
		return "", domain.ErrNoOutput
	}
	return dst, nil
}

// Watermark burns text into the bottom right corner of video and returns the
// new file.
func (f *FFmpeg) Watermark(ctx context.Context, video, text string) (string, error) {
	dst := strings.TrimSuffix(video, filepath.Ext(video)) + ".wm.mp4"
	filter := "drawtext=text='" + drawtextEscaper.Replace(text) + "':fontcolor=white@0.7:fontsize=h/20:x=w-tw-20:y=h-th-20"
	if _, err := f.runner.Run(ctx, filepath.Dir(video), f.binary,
		"-y", "-i", video, "-vf", filter, "-c:a", "copy", dst); err != nil {
		return "", err
	}
	if !exists(dst) {
		return "", domain.ErrNoOutput
	}
	return dst, nil
}

var drawtextEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`)
