package processor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/cwygoda/linkbatch/internal/domain"
)

// VariantPicker resolves HLS master playlists to a single variant.
type VariantPicker struct {
	client *http.Client
}

// NewVariantPicker creates a picker. A nil client uses http.DefaultClient.
func NewVariantPicker(client *http.Client) *VariantPicker {
	if client == nil {
		client = http.DefaultClient
	}
	return &VariantPicker{client: client}
}

// Pick fetches rawURL and, if it is a master playlist, returns the absolute
// URL of the best variant not exceeding q. Media playlists return rawURL.
func (p *VariantPicker) Pick(ctx context.Context, rawURL string, q domain.Quality) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch playlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch playlist: unexpected status %d", resp.StatusCode)
	}

	pl, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return "", fmt.Errorf("decode playlist: %w", err)
	}
	if listType != m3u8.MASTER {
		return rawURL, nil
	}

	v, ok := PickVariant(pl.(*m3u8.MasterPlaylist), q)
	if !ok {
		return rawURL, nil
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(v.URI)
	if err != nil {
		return "", fmt.Errorf("variant uri: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// PickVariant chooses the tallest variant at or below q, breaking ties by
// bandwidth. When every variant exceeds q the smallest one is returned.
func PickVariant(master *m3u8.MasterPlaylist, q domain.Quality) (*m3u8.Variant, bool) {
	var best, lowest *m3u8.Variant
	bestH, lowestH := -1, 0

	for _, v := range master.Variants {
		if v == nil || v.URI == "" || v.Iframe {
			continue
		}
		h := variantHeight(v.Resolution)
		if lowest == nil || h < lowestH || (h == lowestH && v.Bandwidth < lowest.Bandwidth) {
			lowest, lowestH = v, h
		}
		if h > int(q) {
			continue
		}
		if h > bestH || (h == bestH && v.Bandwidth > best.Bandwidth) {
			best, bestH = v, h
		}
	}
	if best != nil {
		return best, true
	}
	return lowest, lowest != nil
}

// variantHeight parses "1280x720". Unknown resolutions count as 0.
func variantHeight(res string) int {
	_, h, ok := strings.Cut(res, "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}
