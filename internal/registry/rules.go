package registry

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/cwygoda/linkbatch/internal/domain"
)

// HostRemap substitutes a legacy CDN host for its current one. When
// Separator is set, everything from the last Separator on is treated as a
// signature and reattached untouched.
type HostRemap struct {
	Name      string
	Legacy    string
	Current   string
	Separator string
}

// DefaultRemaps are the CDN moves known at build time.
var DefaultRemaps = []HostRemap{
	{Name: "cloudfront-remap", Legacy: "d1d34p8vz63oiq.cloudfront.net", Current: "d26g5bnklkwsh4.cloudfront.net", Separator: "*"},
	{Name: "transcode-cdn-remap", Legacy: "transcoded-videos.classx.co.in", Current: "videos.classx.co.in", Separator: "*"},
}

// KeyExchangeHosts always need a key exchange before download.
var KeyExchangeHosts = []string{"classplusapp.com", "media-cdn.classplusapp", "videos.classplusapp"}

const encryptedMarker = "encrypted.m"

// Builtins returns the default rule table with configured rules spliced in
// after the direct-link normalizers.
func Builtins(configured []Rule, remaps []HostRemap) []Rule {
	rules := []Rule{
		DriveRule(),
		DropboxRule(),
		ViewerParamsRule(),
	}
	rules = append(rules, configured...)
	rules = append(rules, EncryptedMarkerRule())
	for _, h := range remaps {
		rules = append(rules, RemapRule(h))
	}
	rules = append(rules,
		KeyExchangeHostRule("key-exchange-host", KeyExchangeHosts...),
		DRMFallbackRule(),
		ExtensionRule("pdf", domain.StrategyPDFScrape, ".pdf"),
		ExtensionRule("audio", domain.StrategyAudio, ".mp3", ".m4a", ".wav", ".aac", ".ogg", ".opus"),
		ExtensionRule("image", domain.StrategyImage, ".jpg", ".jpeg", ".png", ".gif", ".webp"),
	)
	return rules
}

// Default builds the registry with built-in rules only.
func Default() *Registry {
	return New(Builtins(nil, DefaultRemaps)...)
}

var (
	driveFilePattern = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)
	driveIDPattern   = regexp.MustCompile(`[?&]id=([A-Za-z0-9_-]+)`)
)

// DriveID extracts a Google Drive file ID.
func DriveID(rawURL string) (string, bool) {
	if m := driveFilePattern.FindStringSubmatch(rawURL); m != nil {
		return m[1], true
	}
	if m := driveIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1], true
	}
	return "", false
}

// DriveRule rewrites Drive viewer links to the direct-download form.
func DriveRule() Rule {
	return Rule{
		Name:  "drive-direct",
		Match: func(u string) bool { return strings.Contains(u, "drive.google.com") },
		Rewrite: func(u string, _ domain.RuleContext) domain.RewriteResult {
			id, ok := DriveID(u)
			if !ok {
				return domain.RewriteResult{FinalURL: u}
			}
			return domain.RewriteResult{FinalURL: "https://drive.google.com/uc?export=download&id=" + id}
		},
	}
}

// DropboxRule turns share links into direct downloads.
func DropboxRule() Rule {
	return Rule{
		Name:  "dropbox-direct",
		Match: func(u string) bool { return strings.Contains(u, "dropbox.com/") },
		Rewrite: func(u string, _ domain.RuleContext) domain.RewriteResult {
			parsed, err := url.Parse(u)
			if err != nil {
				return domain.RewriteResult{FinalURL: u}
			}
			q := url.Values{}
			if rl := parsed.Query().Get("rlkey"); rl != "" {
				q.Set("rlkey", rl)
			}
			q.Set("dl", "1")
			parsed.RawQuery = q.Encode()
			return domain.RewriteResult{FinalURL: parsed.String()}
		},
	}
}

var viewerParams = []string{"si", "feature", "pp", "usp"}

// ViewerParamsRule strips share-tracking query parameters from streaming
// site links.
func ViewerParamsRule() Rule {
	return Rule{
		Name: "viewer-params",
		Match: func(u string) bool {
			if ClassOf(u) != ClassStreamingSite {
				return false
			}
			for _, p := range viewerParams {
				if strings.Contains(u, "?"+p+"=") || strings.Contains(u, "&"+p+"=") {
					return true
				}
			}
			return false
		},
		Rewrite: func(u string, _ domain.RuleContext) domain.RewriteResult {
			parsed, err := url.Parse(u)
			if err != nil {
				return domain.RewriteResult{FinalURL: u}
			}
			q := parsed.Query()
			for _, p := range viewerParams {
				q.Del(p)
			}
			parsed.RawQuery = q.Encode()
			return domain.RewriteResult{FinalURL: parsed.String()}
		},
	}
}

// EncryptedMarkerRule extracts the raw key that follows the last '*' of an
// encrypted-container URL.
func EncryptedMarkerRule() Rule {
	return Rule{
		Name:  "encrypted-marker",
		Match: func(u string) bool { return strings.Contains(u, encryptedMarker) },
		Rewrite: func(u string, _ domain.RuleContext) domain.RewriteResult {
			if res := encryptedStream(u); res.FinalURL != "" {
				return res
			}
			return domain.RewriteResult{FinalURL: u}
		},
	}
}

// encryptedStream splits "url*key". Without a key the result is empty, which
// the registry treats as the identity rewrite.
func encryptedStream(u string) domain.RewriteResult {
	i := strings.LastIndex(u, "*")
	if i < 0 || i == len(u)-1 {
		return domain.RewriteResult{}
	}
	return domain.RewriteResult{
		FinalURL:      u[:i],
		Strategy:      domain.StrategyEncryptedStream,
		EncryptionKey: u[i+1:],
	}
}

// RemapRule builds the rule for one CDN host move.
func RemapRule(h HostRemap) Rule {
	return Rule{
		Name:  h.Name,
		Match: func(u string) bool { return h.Legacy != "" && strings.Contains(u, h.Legacy) },
		Rewrite: func(u string, _ domain.RuleContext) domain.RewriteResult {
			head, sig := u, ""
			if h.Separator != "" {
				if i := strings.LastIndex(u, h.Separator); i >= 0 {
					head, sig = u[:i], u[i:]
				}
			}
			return domain.RewriteResult{FinalURL: strings.ReplaceAll(head, h.Legacy, h.Current) + sig}
		},
	}
}

func keyExchangeRewrite(u string, _ domain.RuleContext) domain.RewriteResult {
	return domain.RewriteResult{
		FinalURL:    u,
		Strategy:    domain.StrategyDRMKeyed,
		KeyExchange: true,
	}
}

// KeyExchangeHostRule marks URLs on the given hosts as needing a key exchange.
func KeyExchangeHostRule(name string, hosts ...string) Rule {
	return Rule{
		Name:    name,
		Match:   func(u string) bool { return containsAny(strings.ToLower(u), hosts) },
		Rewrite: keyExchangeRewrite,
	}
}

// DRMFallbackRule catches any remaining URL that mentions drm.
func DRMFallbackRule() Rule {
	return Rule{
		Name:    "drm-fallback",
		Match:   func(u string) bool { return strings.Contains(strings.ToLower(u), "drm") },
		Rewrite: keyExchangeRewrite,
	}
}

// ExtensionRule tags URLs by the extension of their path.
func ExtensionRule(name string, strategy domain.Strategy, exts ...string) Rule {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[e] = true
	}
	return Rule{
		Name:  name,
		Match: func(u string) bool { return set[domain.URLExt(u)] },
		Rewrite: func(u string, _ domain.RuleContext) domain.RewriteResult {
			return domain.RewriteResult{FinalURL: u, Strategy: strategy}
		},
	}
}
