package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwygoda/linkbatch/internal/domain"
)

// Kind is how a file is sent to the chat.
type Kind int

const (
	KindDocument Kind = iota
	KindVideo
	KindPhoto
)

var (
	videoKinds = map[string]bool{".mp4": true, ".mkv": true, ".webm": true, ".mov": true, ".avi": true, ".mpeg": true}
	photoKinds = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}
)

// KindOf picks the send method from the file extension.
func KindOf(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoKinds[ext]:
		return KindVideo
	case photoKinds[ext]:
		return KindPhoto
	default:
		return KindDocument
	}
}

// Caption formats the text attached to a delivered file.
func Caption(job *domain.Job, params domain.BatchParameters) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%03d] 📁 %s\n", job.Index, job.Display)
	if params.BatchName != "" {
		fmt.Fprintf(&b, "📦 Batch: %s\n", params.BatchName)
	}
	fmt.Fprintf(&b, "Extracted by: %s", params.Credit)
	return b.String()
}

// Deliverer sends downloaded artifacts to the destination chat.
type Deliverer struct {
	transport domain.Transport
	media     *FFmpeg
	logger    *slog.Logger
}

// NewDeliverer creates a deliverer. media may be nil, which disables
// watermarking and generated thumbnails.
func NewDeliverer(transport domain.Transport, media *FFmpeg, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{transport: transport, media: media, logger: logger}
}

// Deliver sends job.LocalPath to params.Channel and marks the job sent.
// Transport errors are returned unchanged so rate limits stay detectable.
func (d *Deliverer) Deliver(ctx context.Context, job *domain.Job, params domain.BatchParameters) error {
	if job.LocalPath == "" || !exists(job.LocalPath) {
		return domain.ErrNoOutput
	}
	caption := Caption(job, params)

	var err error
	switch KindOf(job.LocalPath) {
	case KindVideo:
		d.watermark(ctx, job, params)
		err = d.transport.SendVideo(ctx, params.Channel, job.LocalPath, caption, d.thumbnail(ctx, job, params))
	case KindPhoto:
		err = d.transport.SendPhoto(ctx, params.Channel, job.LocalPath, caption)
	default:
		err = d.transport.SendDocument(ctx, params.Channel, job.LocalPath, caption)
	}
	if err != nil {
		return err
	}
	job.Sent()
	return nil
}

// watermark replaces job.LocalPath with a watermarked copy. Failure keeps
// the original file.
func (d *Deliverer) watermark(ctx context.Context, job *domain.Job, params domain.BatchParameters) {
	if !params.HasWatermark() || d.media == nil {
		return
	}
	wm, err := d.media.Watermark(ctx, job.LocalPath, params.Watermark)
	if err != nil {
		d.logger.Warn("watermark failed, sending original", "index", job.Index, "error", err)
		return
	}
	os.Remove(job.LocalPath)
	job.LocalPath = wm
}

func (d *Deliverer) thumbnail(ctx context.Context, job *domain.Job, params domain.BatchParameters) string {
	switch params.Thumbnail.Kind {
	case domain.ThumbnailNone:
		return ""
	case domain.ThumbnailCustom:
		if exists(params.Thumbnail.Path) {
			return params.Thumbnail.Path
		}
		return ""
	}

	if job.Thumbnail != "" && exists(job.Thumbnail) {
		return job.Thumbnail
	}
	if d.media == nil {
		return ""
	}
	thumb, err := d.media.Thumbnail(ctx, job.LocalPath)
	if err != nil {
		d.logger.Debug("thumbnail grab failed", "index", job.Index, "error", err)
		return ""
	}
	job.Thumbnail = thumb
	return thumb
}
