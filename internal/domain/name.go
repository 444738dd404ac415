package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxNameRunes = 60

var invalidPathChars = strings.NewReplacer(
	"<", "", ">", "", ":", "", `"`, "", "/", "", `\`, "", "|", "", "?", "", "*", "",
)

// DisplayName strips characters that are invalid in paths and truncates the
// label to 60 runes.
func DisplayName(label string) string {
	s := strings.TrimSpace(invalidPathChars.Replace(label))
	if utf8.RuneCountInString(s) > maxNameRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxNameRunes]))
	}
	if s == "" {
		s = "untitled"
	}
	return s
}

// FileBaseName builds the filesystem-safe base name for the link at the given
// 1-based index.
func FileBaseName(index int, label, prefix string) string {
	name := fmt.Sprintf("%03d_%s", index, DisplayName(label))
	if p := strings.TrimSpace(invalidPathChars.Replace(prefix)); p != "" {
		name = p + "_" + name
	}
	return strings.ReplaceAll(name, " ", "_")
}
