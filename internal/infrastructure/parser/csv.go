package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"

	"CCNLMonitor/internal/document"
	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

// salaryRow is one line of a published wage table.
type salaryRow struct {
	Level        string `csv:"level"`
	MinimumWage  string `csv:"minimum_wage"`
	WeeklyHours  string `csv:"weekly_hours,omitempty"`
	OvertimeRate string `csv:"overtime_rate,omitempty"`
}

var headerAliases = map[string]string{
	"livello":          "level",
	"categoria":        "level",
	"minimo":           "minimum_wage",
	"minimo tabellare": "minimum_wage",
	"retribuzione":     "minimum_wage",
	"ore settimanali":  "weekly_hours",
	"orario":           "weekly_hours",
	"straordinario":    "overtime_rate",
}

// CSVParser decodes wage tables published as CSV. Both "," and ";" separators are accepted.
type CSVParser struct{}

var _ ports.DocumentParser = (*CSVParser)(nil)

// NewCSVParser builds the CSV strategy.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Name identifies the strategy inside the registry.
func (c *CSVParser) Name() string {
	return "csv"
}

// ContentTypes lists the MIME types handled by this parser.
func (c *CSVParser) ContentTypes() []string {
	return []string{"text/csv", "application/csv"}
}

// Parse decodes every row into the wage table; hours and overtime come from the first row carrying them.
func (c *CSVParser) Parse(_ context.Context, body []byte) (domain.ExtractedData, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.Comma = detectSeparator(body)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return domain.ExtractedData{}, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if alias, ok := headerAliases[h]; ok {
			h = alias
		}
		header[i] = h
	}

	decoder, err := csvutil.NewDecoder(reader, header...)
	if err != nil {
		return domain.ExtractedData{}, fmt.Errorf("create csv decoder: %w", err)
	}

	var data domain.ExtractedData
	for {
		var row salaryRow
		if err := decoder.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return domain.ExtractedData{}, fmt.Errorf("decode csv row: %w", err)
		}

		if amount, ok := document.ParseAmount(row.MinimumWage); ok && strings.TrimSpace(row.Level) != "" {
			if data.SalaryTables == nil {
				data.SalaryTables = map[string]float64{}
			}
			data.SalaryTables[document.LevelKey(row.Level)] = amount
		}
		if data.WorkingHours == nil {
			if hours, ok := document.ParseAmount(row.WeeklyHours); ok {
				data.WorkingHours = &hours
			}
		}
		if data.OvertimeRates == nil {
			if rate, ok := document.ParseAmount(row.OvertimeRate); ok {
				data.OvertimeRates = map[string]float64{"standard": rate}
			}
		}
	}
	return data, nil
}

func detectSeparator(body []byte) rune {
	firstLine, _, _ := bytes.Cut(body, []byte("\n"))
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		return ';'
	}
	return ','
}
