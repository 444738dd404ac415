// Package keyexchange is the HTTP client for the external DRM key-exchange
// service.
package keyexchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cwygoda/linkbatch/internal/domain"
)

const maxBodySize = 1 << 20

// Client implements domain.KeyExchanger.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a client for endpoint. A nil httpClient uses http.DefaultClient;
// per-attempt deadlines come from the caller's context.
func New(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, httpClient: httpClient}
}

type response struct {
	Data *struct {
		URL  string   `json:"url"`
		MPD  string   `json:"mpd"`
		Keys []string `json:"keys"`
	} `json:"data"`
	Keys []string `json:"keys"`
}

// Exchange trades rawURL (and an optional token) for a playable URL plus
// decryption keys. data.mpd is accepted for data.url and a top-level keys
// list for data.keys; a response missing either returns ErrKeyExchangeMiss.
func (c *Client) Exchange(ctx context.Context, rawURL, token string) (domain.KeyExchange, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return domain.KeyExchange{}, fmt.Errorf("invalid key exchange endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", rawURL)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.KeyExchange{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.KeyExchange{}, fmt.Errorf("key exchange request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.KeyExchange{}, fmt.Errorf("key exchange: unexpected status %d", resp.StatusCode)
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&body); err != nil {
		return domain.KeyExchange{}, fmt.Errorf("decode key exchange response: %w", err)
	}
	if body.Data == nil {
		return domain.KeyExchange{}, domain.ErrKeyExchangeMiss
	}
	kx := domain.KeyExchange{URL: body.Data.URL, Keys: body.Data.Keys}
	if kx.URL == "" {
		kx.URL = body.Data.MPD
	}
	if len(kx.Keys) == 0 {
		kx.Keys = body.Keys
	}
	if kx.URL == "" || len(kx.Keys) == 0 {
		return domain.KeyExchange{}, domain.ErrKeyExchangeMiss
	}
	return kx, nil
}
