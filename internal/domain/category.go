package domain

import (
	"path"
	"strings"
)

// Category is the content class guessed from the raw URL text.
type Category string

const (
	CategoryVideo Category = "video"
	CategoryPDF   Category = "pdf"
	CategoryImage Category = "image"
	CategoryAudio Category = "audio"
	CategoryOther Category = "other"
)

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
	audioExts = map[string]bool{".mp3": true, ".m4a": true, ".wav": true, ".aac": true, ".ogg": true, ".opus": true}
	otherExts = map[string]bool{".zip": true, ".epub": true, ".txt": true, ".doc": true, ".docx": true, ".ppt": true, ".pptx": true}
)

// URLExt returns the lowercase extension of the URL path with query and
// fragment stripped.
func URLExt(rawURL string) string {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(path.Ext(u))
}

// CategoryOf classifies a raw URL. It looks only at the text, never at the
// resolved strategy, so it can disagree with what the dispatcher ends up doing.
func CategoryOf(rawURL string) Category {
	ext := URLExt(rawURL)
	switch {
	case ext == ".pdf" || strings.Contains(strings.ToLower(rawURL), ".pdf"):
		return CategoryPDF
	case imageExts[ext]:
		return CategoryImage
	case audioExts[ext]:
		return CategoryAudio
	case otherExts[ext]:
		return CategoryOther
	default:
		return CategoryVideo
	}
}

// CountCategories precomputes per-category totals for a link list.
func CountCategories(links []LinkEntry) map[Category]int {
	counts := make(map[Category]int)
	for _, l := range links {
		counts[CategoryOf(l.URL)]++
	}
	return counts
}
