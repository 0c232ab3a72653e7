package domain

import (
	"sort"
	"time"
)

// ExtractedData holds the figures pulled out of a supporting document or a feed summary.
// Every field is optional.
type ExtractedData struct {
	SalaryTables  map[string]float64 `json:"salary_tables,omitempty"`
	WorkingHours  *float64           `json:"working_hours,omitempty"`
	OvertimeRates map[string]float64 `json:"overtime_rates,omitempty"`
}

// Empty reports whether nothing was extracted.
func (d ExtractedData) Empty() bool {
	return len(d.SalaryTables) == 0 && d.WorkingHours == nil && len(d.OvertimeRates) == 0
}

// Merge fills the fields of d that are still empty from other.
func (d *ExtractedData) Merge(other ExtractedData) {
	if len(d.SalaryTables) == 0 && len(other.SalaryTables) > 0 {
		d.SalaryTables = other.SalaryTables
	}
	if d.WorkingHours == nil && other.WorkingHours != nil {
		h := *other.WorkingHours
		d.WorkingHours = &h
	}
	if len(d.OvertimeRates) == 0 && len(other.OvertimeRates) > 0 {
		d.OvertimeRates = other.OvertimeRates
	}
}

// Levels returns the salary table keys in sorted order.
func (d ExtractedData) Levels() []string {
	levels := make([]string, 0, len(d.SalaryTables))
	for level := range d.SalaryTables {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	return levels
}

// ParsedDocument is the outcome of fetching one supporting document.
type ParsedDocument struct {
	URL         string
	ContentType string
	Parser      string
	Data        ExtractedData
	FetchedAt   time.Time
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Err returns a *ValidationError when the result carries errors.
func (r ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &ValidationError{Problems: r.Errors}
}

// CrossVerification is the corroboration verdict for events about one agreement.
type CrossVerification struct {
	Verified       bool     `json:"verified"`
	Confidence     float64  `json:"confidence"`
	Sources        int      `json:"sources"`
	CommonKeywords []string `json:"common_keywords"`
}
