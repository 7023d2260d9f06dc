// Package docext materializes uploaded documents: plain text out of ticket
// PDFs, normalized PNGs out of phone photos, and zip bundles for merged
// attachment downloads.
package docext

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// ErrUnsupported marks a document type no extractor can read.
var ErrUnsupported = errors.New("unsupported document type")

// Extractor turns document bytes into plain text.
type Extractor struct{}

// NewExtractor returns a text extractor for supported document types.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Text extracts the plain text of a document. Only PDFs carry extractable
// text; anything else is ErrUnsupported.
func (e *Extractor) Text(data []byte, contentType string) (string, error) {
	if normalizeMIME(contentType) != "application/pdf" {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, contentType)
	}
	return pdfText(data)
}

func pdfText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("extracting text from page %d: %w", page, err)
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func normalizeMIME(contentType string) string {
	return strings.ToLower(strings.TrimSpace(contentType))
}
