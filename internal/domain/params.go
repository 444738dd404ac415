package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Quality is a vertical resolution ceiling.
type Quality int

// DefaultQuality is used when no valid quality is supplied.
const DefaultQuality Quality = 480

var qualities = []Quality{144, 240, 360, 480, 720, 1080}

// ParseQuality accepts "720" or "720p". Unknown values report false.
func ParseQuality(s string) (Quality, bool) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "p")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	for _, q := range qualities {
		if Quality(n) == q {
			return q, true
		}
	}
	return 0, false
}

func (q Quality) String() string { return strconv.Itoa(int(q)) + "p" }

// ThumbnailKind selects how video thumbnails are produced.
type ThumbnailKind string

const (
	ThumbnailDefault ThumbnailKind = "default"
	ThumbnailCustom  ThumbnailKind = "custom"
	ThumbnailNone    ThumbnailKind = "none"
)

// ThumbnailPolicy is DEFAULT, CUSTOM(path) or NONE.
type ThumbnailPolicy struct {
	Kind ThumbnailKind
	Path string
}

// Flow distinguishes a batch run from the single-link quick flow.
type Flow int

const (
	FlowBatch Flow = iota
	FlowSingle
)

// DefaultWatermark means no watermark is applied.
const DefaultWatermark = "default"

// BatchParameters are collected once by the wizard and never change during a run.
type BatchParameters struct {
	StartIndex     int
	BatchName      string
	Quality        Quality
	Watermark      string
	Credit         string
	FilenamePrefix string
	AuthToken      string
	Thumbnail      ThumbnailPolicy
	Channel        int64
	Flow           Flow
}

// Validate checks the start index against the link count.
func (p BatchParameters) Validate(linkCount int) error {
	if linkCount == 0 {
		return ErrNoLinks
	}
	if p.StartIndex < 1 || p.StartIndex > linkCount {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrStartOutOfRange, p.StartIndex, linkCount)
	}
	return nil
}

// RuleContext returns the rule inputs derived from the parameters.
func (p BatchParameters) RuleContext() RuleContext {
	return RuleContext{Quality: p.Quality, Token: p.AuthToken}
}

// HasWatermark reports whether a custom watermark was requested.
func (p BatchParameters) HasWatermark() bool {
	w := strings.TrimSpace(p.Watermark)
	return w != "" && w != DefaultWatermark
}
