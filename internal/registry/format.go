package registry

import (
	"fmt"
	"strings"

	"github.com/cwygoda/linkbatch/internal/domain"
)

// FormatClass is the downloader's view of a URL.
type FormatClass int

const (
	ClassFile FormatClass = iota
	ClassStreamingSite
	ClassEmbeddedPlayer
	ClassManifest
)

var streamingHosts = []string{"youtube.com", "youtu.be", "vimeo.com", "dailymotion.com", "twitch.tv"}

// ClassOf guesses how the external downloader should treat a URL.
func ClassOf(url string) FormatClass {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "/embed") || strings.Contains(lower, "player."):
		return ClassEmbeddedPlayer
	case containsAny(lower, streamingHosts):
		return ClassStreamingSite
	case strings.Contains(lower, ".m3u8") || strings.Contains(lower, ".mpd"):
		return ClassManifest
	default:
		return ClassFile
	}
}

// FormatFor returns the downloader format-selection expression for a URL,
// bounded by the quality ceiling.
func FormatFor(url string, q domain.Quality) string {
	if q == 0 {
		q = domain.DefaultQuality
	}
	h := int(q)
	switch ClassOf(url) {
	case ClassStreamingSite:
		return fmt.Sprintf("bv*[height<=%d]+ba/b[height<=%d]/b", h, h)
	case ClassEmbeddedPlayer:
		return fmt.Sprintf("b[height<=%d]/bv*[height<=%d]+ba/b", h, h)
	case ClassManifest:
		return fmt.Sprintf("bv[height<=%d]+ba/b[height<=%d]/b", h, h)
	default:
		return fmt.Sprintf("b[height<=%d]/b", h)
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
