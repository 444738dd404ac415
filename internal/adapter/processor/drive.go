package processor

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const driveDownloadURL = "https://drive.google.com/uc"

var confirmPattern = regexp.MustCompile(`confirm=([0-9A-Za-z_-]+)`)

// DriveClient retrieves files shared on Google Drive.
type DriveClient struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// NewDriveClient creates a client. A nil client uses http.DefaultClient; a
// positive timeout bounds each Fetch, confirm round trip and body included.
func NewDriveClient(client *http.Client, timeout time.Duration) *DriveClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &DriveClient{client: client, baseURL: driveDownloadURL, timeout: timeout}
}

// Fetch downloads the file with the given id into dir as base plus the
// extension Drive reports. Large files answer with an HTML interstitial
// carrying a confirm token; Fetch follows it once.
func (c *DriveClient) Fetch(ctx context.Context, id, dir, base string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.get(ctx, id, "")
	if err != nil {
		return "", err
	}

	if isHTML(resp) {
		page, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		token := confirmToken(resp, string(page))
		if token == "" {
			return "", fmt.Errorf("drive file %s: not publicly downloadable", id)
		}
		if resp, err = c.get(ctx, id, token); err != nil {
			return "", err
		}
		if isHTML(resp) {
			resp.Body.Close()
			return "", fmt.Errorf("drive file %s: confirmation rejected", id)
		}
	}
	defer resp.Body.Close()

	dst := filepath.Join(dir, base+driveExt(resp))
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("drive file %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

func (c *DriveClient) get(ctx context.Context, id, confirm string) (*http.Response, error) {
	q := url.Values{"export": {"download"}, "id": {id}}
	if confirm != "" {
		q.Set("confirm", confirm)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive file %s: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("drive file %s: unexpected status %d", id, resp.StatusCode)
	}
	return resp, nil
}

func isHTML(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html")
}

func confirmToken(resp *http.Response, page string) string {
	for _, c := range resp.Cookies() {
		if strings.HasPrefix(c.Name, "download_warning") {
			return c.Value
		}
	}
	if m := confirmPattern.FindStringSubmatch(page); m != nil {
		return m[1]
	}
	return ""
}

func driveExt(resp *http.Response) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if ext := filepath.Ext(params["filename"]); ext != "" {
			return strings.ToLower(ext)
		}
	}
	if exts, _ := mime.ExtensionsByType(resp.Header.Get("Content-Type")); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
