package extractor

import (
	"strings"
	"testing"
)

func TestFileExtractorAccepts(t *testing.T) {
	e := NewFileExtractor(nil)

	tests := []struct {
		filename string
		want     bool
	}{
		{"notes.txt", true},
		{"README.md", true},
		{"guide.markdown", true},
		{"page.html", true},
		{"page.HTM", true},
		{"dir/nested/doc.md", true},
		{"binary.pdf", false},
		{"script.sh", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		if got := e.Accepts(tt.filename); got != tt.want {
			t.Errorf("Accepts(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestFileExtractorCustomPatterns(t *testing.T) {
	e := NewFileExtractor([]string{"*.csv"})
	if !e.Accepts("data.csv") {
		t.Error("custom pattern not accepted")
	}
	if e.Accepts("notes.txt") {
		t.Error("default pattern accepted despite custom allowlist")
	}
}

func TestFileExtractorPlainText(t *testing.T) {
	e := NewFileExtractor(nil)

	doc, err := e.Extract("meeting-notes.txt", []byte("Agenda for the week.\n"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Content != "Agenda for the week." {
		t.Errorf("content = %q", doc.Content)
	}
	// No markdown heading, so the title comes from the filename.
	if doc.Title != "meeting notes" {
		t.Errorf("title = %q, want %q", doc.Title, "meeting notes")
	}
}

func TestFileExtractorMarkdownTitle(t *testing.T) {
	e := NewFileExtractor(nil)

	doc, err := e.Extract("doc.md", []byte("# Release Plan\n\nShip it.\n"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Release Plan" {
		t.Errorf("title = %q, want %q", doc.Title, "Release Plan")
	}
	if !strings.Contains(doc.Content, "Ship it.") {
		t.Errorf("content = %q", doc.Content)
	}
}

func TestFileExtractorHTML(t *testing.T) {
	e := NewFileExtractor(nil)

	html := `<html><head><title>Launch FAQ</title></head>
<body><article><h1>Launch FAQ</h1><p>Everything you need to know about the launch.</p></article></body></html>`
	doc, err := e.Extract("faq.html", []byte(html))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title == "" {
		t.Error("title not extracted from HTML")
	}
	if !strings.Contains(doc.Content, "Everything you need to know") {
		t.Errorf("content = %q", doc.Content)
	}
}

func TestFileExtractorRejections(t *testing.T) {
	e := NewFileExtractor(nil)

	if _, err := e.Extract("archive.zip", []byte("data")); err == nil {
		t.Error("unsupported type accepted")
	}
	if _, err := e.Extract("empty.txt", nil); err == nil {
		t.Error("empty file accepted")
	}
	if _, err := e.Extract("blank.txt", []byte("   \n\t ")); err == nil {
		t.Error("whitespace-only file accepted")
	}
	if _, err := e.Extract("binary.txt", []byte{0xff, 0xfe, 0x00, 0x80}); err == nil {
		t.Error("invalid UTF-8 accepted")
	}
}

func TestTitleFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"meeting-notes.txt", "meeting notes"},
		{"release_plan.md", "release plan"},
		{"dir/sub/overview.html", "overview"},
	}
	for _, tt := range tests {
		if got := titleFromFilename(tt.filename); got != tt.want {
			t.Errorf("titleFromFilename(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
