package domain

import (
	"strings"
	"testing"
)

func TestParseLinks_RoundTrip(t *testing.T) {
	text := "Math Notes://https://cdn.example.com/a.pdf\nPhysics://https://cdn.example.com/b.mp4"

	links := ParseLinks(text)
	if len(links) != 2 {
		t.Fatalf("ParseLinks() len = %d, want 2", len(links))
	}

	want := []LinkEntry{
		{Label: "Math Notes", URL: "https://cdn.example.com/a.pdf"},
		{Label: "Physics", URL: "https://cdn.example.com/b.mp4"},
	}
	for i, w := range want {
		if links[i] != w {
			t.Errorf("links[%d] = %+v, want %+v", i, links[i], w)
		}
	}
}

func TestParseLinks_Lines(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantOK    bool
		wantLabel string
		wantURL   string
	}{
		{"colon separator", "Chapter 1: https://x.io/c1.mp4", true, "Chapter 1", "https://x.io/c1.mp4"},
		{"url first", "https://x.io/c1.mp4 Chapter 1", true, "Chapter 1", "https://x.io/c1.mp4"},
		{"scheme-less after delimiter", "Notes://x.io/n.pdf", true, "Notes", "https://x.io/n.pdf"},
		{"bare domain", "x.io/file.pdf", true, "", "https://x.io/file.pdf"},
		{"no url", "just some words", false, "", ""},
		{"slash path", "/local/file.pdf", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := ParseLinks(tt.line)
			if (len(links) == 1) != tt.wantOK {
				t.Fatalf("ParseLinks(%q) = %+v, wantOK %v", tt.line, links, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if links[0].URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", links[0].URL, tt.wantURL)
			}
			if tt.wantLabel != "" && links[0].Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", links[0].Label, tt.wantLabel)
			}
		})
	}
}

func TestParseLinks_DefaultLabelIsStable(t *testing.T) {
	a := ParseLinks("https://x.io/a.mp4")
	b := ParseLinks("https://x.io/a.mp4")
	if len(a) != 1 || len(b) != 1 {
		t.Fatal("expected one link each")
	}
	if !strings.HasPrefix(a[0].Label, "File_") {
		t.Errorf("Label = %q, want File_ prefix", a[0].Label)
	}
	if a[0].Label != b[0].Label {
		t.Errorf("labels differ: %q vs %q", a[0].Label, b[0].Label)
	}
}

func TestParseLinks_SkipsBlankAndInvalid(t *testing.T) {
	text := "\n\nA://https://x.io/a.mp4\r\n   \nnot a link\nB://https://x.io/b.mp4\n"
	links := ParseLinks(text)
	if len(links) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(links), links)
	}
	if links[0].Label != "A" || links[1].Label != "B" {
		t.Errorf("order not preserved: %+v", links)
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		url  string
		want Category
	}{
		{"https://x.io/a.pdf", CategoryPDF},
		{"https://x.io/a.pdf?sig=1", CategoryPDF},
		{"https://x.io/a.PNG", CategoryImage},
		{"https://x.io/a.mp3", CategoryAudio},
		{"https://x.io/a.zip", CategoryOther},
		{"https://x.io/master.m3u8", CategoryVideo},
		{"https://youtu.be/abc", CategoryVideo},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := CategoryOf(tt.url); got != tt.want {
				t.Errorf("CategoryOf(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestCountCategories(t *testing.T) {
	links := []LinkEntry{
		{URL: "https://x.io/a.pdf"},
		{URL: "https://x.io/b.pdf"},
		{URL: "https://x.io/c.mp4"},
		{URL: "https://x.io/d.jpg"},
	}
	counts := CountCategories(links)
	if counts[CategoryPDF] != 2 || counts[CategoryVideo] != 1 || counts[CategoryImage] != 1 {
		t.Errorf("CountCategories() = %v", counts)
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(`a<b>c:d"e/f\g|h?i*j`); got != "abcdefghij" {
		t.Errorf("DisplayName() = %q", got)
	}
	long := strings.Repeat("é", 80)
	if got := DisplayName(long); len([]rune(got)) != 60 {
		t.Errorf("DisplayName() rune len = %d, want 60", len([]rune(got)))
	}
	if got := DisplayName("???"); got != "untitled" {
		t.Errorf("DisplayName(???) = %q, want untitled", got)
	}
}

func TestFileBaseName_Prefix(t *testing.T) {
	if got := FileBaseName(3, "Intro", "Course A"); got != "Course_A_003_Intro" {
		t.Errorf("FileBaseName() = %q", got)
	}
	if got := FileBaseName(12, "Intro", ""); got != "012_Intro" {
		t.Errorf("FileBaseName() = %q", got)
	}
}
