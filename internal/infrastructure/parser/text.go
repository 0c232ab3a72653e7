package parser

import (
	"context"

	"CCNLMonitor/internal/document"
	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

// TextParser applies the pattern extractor to plain text documents.
type TextParser struct{}

var _ ports.DocumentParser = (*TextParser)(nil)

// NewTextParser builds the plain text strategy.
func NewTextParser() *TextParser {
	return &TextParser{}
}

func (t *TextParser) Name() string { return "text" }

func (t *TextParser) ContentTypes() []string { return []string{"text/plain"} }

func (t *TextParser) Parse(_ context.Context, body []byte) (domain.ExtractedData, error) {
	return document.ExtractText(string(body)), nil
}
