package domain

import "strings"

// Strategy is the retrieval path chosen for a link.
type Strategy string

const (
	StrategyGeneric         Strategy = "generic"
	StrategyPDFScrape       Strategy = "pdf_scrape"
	StrategyAudio           Strategy = "audio"
	StrategyImage           Strategy = "image"
	StrategyEncryptedStream Strategy = "encrypted_stream"
	StrategyDRMKeyed        Strategy = "drm_keyed"
)

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch st := Strategy(strings.ToLower(s)); st {
	case StrategyGeneric, StrategyPDFScrape, StrategyAudio, StrategyImage, StrategyEncryptedStream, StrategyDRMKeyed:
		return st, true
	}
	return "", false
}

// RuleContext carries the per-batch inputs a rule may read.
type RuleContext struct {
	Quality Quality
	Token   string
}

// RewriteResult is the output of one pattern rule.
type RewriteResult struct {
	Rule          string
	FinalURL      string
	Strategy      Strategy
	Format        string
	KeyExchange   bool
	KeyMaterial   []string
	EncryptionKey string
}

// ResolvedTarget is what the dispatcher executes. FinalURL is never empty.
// KeyMaterial is only set for StrategyDRMKeyed and EncryptionKey only for
// StrategyEncryptedStream.
type ResolvedTarget struct {
	OriginalURL   string
	FinalURL      string
	Strategy      Strategy
	Format        string
	Rule          string
	KeyMaterial   []string
	EncryptionKey string
	// Degraded is set when a key exchange missed and the target fell back to
	// a generic download of the original URL.
	Degraded bool
}
