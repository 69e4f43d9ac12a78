// Package pdftext wraps PDF text extraction and the structural parser
// that recovers agenda items from PDF-only agendas (Menlo Park, some
// Municode cities). Extraction quality is best-effort: anything the
// parser cannot shape into items is left for packet-level
// summarization downstream.
package pdftext

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// Extract returns the plain text of a PDF document, pages joined by
// newlines.
func Extract(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("pdftext: open: %w", err)
	}
	var buf bytes.Buffer
	b, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdftext: extract: %w", err)
	}
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("pdftext: read: %w", err)
	}
	return buf.String(), nil
}

// ExtractLinks returns hyperlink targets found in the document's
// annotations, in page order. PDF agendas frequently carry attachment
// links only as annotations, invisible to plain-text extraction.
func ExtractLinks(raw []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("pdftext: open: %w", err)
	}
	var links []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		annots := page.V.Key("Annots")
		if annots.IsNull() {
			continue
		}
		for j := 0; j < annots.Len(); j++ {
			action := annots.Index(j).Key("A")
			if action.IsNull() {
				continue
			}
			uri := action.Key("URI")
			if uri.Kind() == pdf.String {
				links = append(links, uri.RawString())
			}
		}
	}
	return links, nil
}
