package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"CCNLMonitor/internal/document"
	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

// PDFParser extracts the plain text layer of a PDF and scans it for figures.
type PDFParser struct{}

var _ ports.DocumentParser = (*PDFParser)(nil)

// NewPDFParser builds the PDF strategy.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Name identifies the strategy inside the registry.
func (p *PDFParser) Name() string {
	return "pdf"
}

// ContentTypes lists the MIME types handled by this parser.
func (p *PDFParser) ContentTypes() []string {
	return []string{"application/pdf"}
}

// Parse reads every page's text and runs the pattern extractor over it.
func (p *PDFParser) Parse(ctx context.Context, body []byte) (data domain.ExtractedData, err error) {
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return domain.ExtractedData{}, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return domain.ExtractedData{}, fmt.Errorf("extract pdf text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.ExtractedData{}, err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return domain.ExtractedData{}, fmt.Errorf("read pdf text: %w", err)
	}
	return document.ExtractText(buf.String()), nil
}
