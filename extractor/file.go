package extractor

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// Document is an extracted document ready for archival.
type Document struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	SourceURL string `json:"source_url,omitempty"`
}

// DefaultFilePatterns is the allowlist of accepted upload names.
var DefaultFilePatterns = []string{"*.txt", "*.md", "*.markdown", "*.html", "*.htm"}

// FileExtractor converts uploaded files into documents.
type FileExtractor struct {
	patterns  []string
	converter *Converter
}

// NewFileExtractor creates a file extractor with the given filename
// allowlist. Nil patterns fall back to DefaultFilePatterns.
func NewFileExtractor(patterns []string) *FileExtractor {
	if len(patterns) == 0 {
		patterns = DefaultFilePatterns
	}
	return &FileExtractor{
		patterns:  patterns,
		converter: NewConverter(),
	}
}

// Accepts reports whether the filename matches the allowlist.
func (e *FileExtractor) Accepts(filename string) bool {
	base := strings.ToLower(filepath.Base(filename))
	for _, pattern := range e.patterns {
		if ok, err := doublestar.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// Extract converts the file's bytes into a document. Plain text and
// markdown pass through; HTML goes through main-content extraction and
// markdown conversion.
func (e *FileExtractor) Extract(filename string, data []byte) (*Document, error) {
	if !e.Accepts(filename) {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Base(filename))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file: %s", filepath.Base(filename))
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		result, err := e.converter.Convert(data, nil)
		if err != nil {
			return nil, err
		}
		title := result.Title
		if title == "" {
			title = titleFromFilename(filename)
		}
		return &Document{Title: title, Content: result.Markdown}, nil

	default:
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("file is not valid UTF-8: %s", filepath.Base(filename))
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil, fmt.Errorf("file has no content: %s", filepath.Base(filename))
		}
		title := extractMarkdownTitle(content)
		if title == "" {
			title = titleFromFilename(filename)
		}
		return &Document{Title: title, Content: content}, nil
	}
}

// titleFromFilename derives a readable title from the file name.
func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.TrimSpace(base)
}
