// Package document provides best-effort plain text extraction from uploaded
// clinical records. Extraction is a collaborator of the intake API with no
// state of its own; a page that cannot be parsed is skipped and counted, and
// an unparseable document yields an error, never a crash.
package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// Result is the outcome of extracting one document.
type Result struct {
	Text         string `json:"text"`
	Pages        int    `json:"pages"`
	SkippedPages int    `json:"skipped_pages"`
}

// Extractor pulls plain text out of PDF documents.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses the document and concatenates the text of every readable
// page. Pages that fail to parse are skipped and reported in the result; a
// document whose structure cannot be read at all returns an error.
func (e *Extractor) Extract(data []byte) (*Result, error) {
	reader, err := openReader(data)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	res := &Result{Pages: reader.NumPage()}
	var b strings.Builder

	for i := 1; i <= res.Pages; i++ {
		text, err := extractPage(reader, i)
		if err != nil {
			res.SkippedPages++
			e.logger.Warn("page extraction failed, skipping",
				zap.Int("page", i), zap.Error(err))
			continue
		}
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
	}

	res.Text = strings.TrimSpace(b.String())
	return res, nil
}

// openReader guards against panics inside the parser on malformed files.
func openReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed document: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// extractPage pulls plain text from a single page, recovering from parser
// panics so one bad page cannot take down the request.
func extractPage(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed page: %v", rec)
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d is empty or unreadable", n)
	}
	return page.GetPlainText(nil)
}
