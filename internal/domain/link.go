package domain

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// LinkEntry is one label+URL pair read from an input list.
type LinkEntry struct {
	Label string
	URL   string
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ParseLinks extracts link entries from input text, one per line, in file order.
// Blank lines and lines without a recognizable URL are dropped.
func ParseLinks(text string) []LinkEntry {
	var links []LinkEntry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if entry, ok := parseLine(line); ok {
			links = append(links, entry)
		}
	}
	return links
}

func parseLine(line string) (LinkEntry, bool) {
	if loc := urlPattern.FindStringIndex(line); loc != nil {
		url := line[loc[0]:loc[1]]
		label := cleanLabel(line[:loc[0]] + line[loc[1]:])
		return LinkEntry{Label: labelOrDefault(label, url), URL: url}, true
	}

	// "label://host/path" without a scheme on the URL part.
	if label, rest, ok := strings.Cut(line, "://"); ok {
		rest = strings.TrimSpace(rest)
		if looksLikeHost(rest) {
			url := "https://" + rest
			return LinkEntry{Label: labelOrDefault(cleanLabel(label), url), URL: url}, true
		}
		return LinkEntry{}, false
	}

	if looksLikeHost(line) {
		url := "https://" + line
		return LinkEntry{Label: labelOrDefault("", url), URL: url}, true
	}
	return LinkEntry{}, false
}

func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	for _, sep := range []string{"://", ":", "-", "|"} {
		s = strings.TrimSpace(strings.TrimSuffix(s, sep))
	}
	return s
}

func looksLikeHost(s string) bool {
	if s == "" || strings.HasPrefix(s, "/") || strings.ContainsAny(s, " \t") {
		return false
	}
	host, _, _ := strings.Cut(s, "/")
	return strings.Contains(host, ".") && !strings.HasPrefix(host, ".") && !strings.HasSuffix(host, ".")
}

func labelOrDefault(label, url string) string {
	if label != "" {
		return label
	}
	h := fnv.New32a()
	h.Write([]byte(url))
	return fmt.Sprintf("File_%d", h.Sum32()%10000)
}
