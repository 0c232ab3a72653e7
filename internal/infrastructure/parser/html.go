package parser

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"CCNLMonitor/internal/document"
	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

var levelHeaderExpr = regexp.MustCompile(`(?i)livell|level|categori|qualific`)

// HTMLParser reads salary tables with goquery and scans the readable text for
// hours and overtime surcharges.
type HTMLParser struct{}

var _ ports.DocumentParser = (*HTMLParser)(nil)

// NewHTMLParser builds the HTML strategy.
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// Name identifies the strategy inside the registry.
func (h *HTMLParser) Name() string {
	return "html"
}

// ContentTypes lists the MIME types handled by this parser.
func (h *HTMLParser) ContentTypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Parse extracts salary tables first, then fills the remaining fields from the page text.
func (h *HTMLParser) Parse(_ context.Context, body []byte) (domain.ExtractedData, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.ExtractedData{}, fmt.Errorf("parse html: %w", err)
	}

	data := domain.ExtractedData{SalaryTables: extractTables(doc)}
	data.Merge(document.ExtractText(readableText(body, doc)))
	if len(data.SalaryTables) == 0 {
		data.SalaryTables = nil
	}
	return data, nil
}

func extractTables(doc *goquery.Document) map[string]float64 {
	wages := map[string]float64{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if !levelHeaderExpr.MatchString(rows.First().Text()) {
			return
		}
		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td, th")
			if cells.Length() < 2 {
				return
			}
			label := strings.TrimSpace(cells.First().Text())
			amount, ok := document.ParseAmount(cells.Last().Text())
			if label == "" || !ok {
				return
			}
			level := document.LevelKey(label)
			if _, dup := wages[level]; !dup {
				wages[level] = amount
			}
		})
	})
	return wages
}

func readableText(body []byte, doc *goquery.Document) string {
	article, err := readability.FromReader(bytes.NewReader(body), nil)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.TextContent
	}
	return doc.Text()
}
