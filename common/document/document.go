// Package document extracts plain text from uploaded PDF and Word files so it
// can be folded into a conversation as a system message.
package document

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Laisky/errors/v2"

	"github.com/one-chat/one-chat/common/config"
)

const (
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"

	truncatedMarker = "\n\n[Document truncated - maximum text length reached]"
)

// Document is the extracted, ready to inject content of an upload.
type Document struct {
	Filename  string
	FileType  string
	Content   string
	Truncated bool
}

// Validate checks name and size before the payload is read.
// The returned error message is safe to show to the user.
func Validate(filename string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return errors.New("No file selected")
	}
	if size > config.MaxUploadBytes() {
		return errors.Errorf("File size too large. Please upload a document smaller than %dMB.", config.MaxUploadSizeMB)
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".pdf", ".docx":
		return nil
	case ".doc":
		return errors.New("Please convert .doc files to .docx format. Only .docx files are supported.")
	default:
		return errors.Errorf("Unsupported file type: %s. Only PDF (.pdf) and Word (.docx) documents are supported.", ext)
	}
}

// Extract validates the upload and dispatches on its extension.
func Extract(data []byte, filename string) (*Document, error) {
	if err := Validate(filename, int64(len(data))); err != nil {
		return nil, err
	}

	var (
		text *boundedText
		err  error
		typ  string
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		typ = FileTypePDF
		text, err = extractPDF(data, config.MaxDocumentChars, config.MaxPDFPages)
	default:
		typ = FileTypeDOCX
		text, err = extractDOCX(data, config.MaxDocumentChars)
	}
	if err != nil {
		return nil, err
	}

	return &Document{
		Filename:  filepath.Base(filename),
		FileType:  typ,
		Content:   strings.TrimSpace(text.String()),
		Truncated: text.truncated,
	}, nil
}

// boundedText accumulates text up to limit runes, then appends the truncation marker once.
type boundedText struct {
	b         strings.Builder
	runes     int
	limit     int
	truncated bool
}

func newBoundedText(limit int) *boundedText {
	return &boundedText{limit: limit}
}

// write appends s and reports whether more text is accepted.
func (t *boundedText) write(s string) bool {
	if t.truncated {
		return false
	}

	n := utf8.RuneCountInString(s)
	if t.runes+n <= t.limit {
		t.b.WriteString(s)
		t.runes += n
		return true
	}

	keep := t.limit - t.runes
	for i := range s {
		if keep == 0 {
			s = s[:i]
			break
		}
		keep--
	}
	t.b.WriteString(s)
	t.b.WriteString(truncatedMarker)
	t.runes = t.limit
	t.truncated = true
	return false
}

func (t *boundedText) full() bool { return t.truncated }

func (t *boundedText) String() string { return t.b.String() }

func (t *boundedText) blank() bool { return strings.TrimSpace(t.b.String()) == "" }

func pageHeader(n int) string {
	return fmt.Sprintf("\n--- Page %d ---\n", n)
}
