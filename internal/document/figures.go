package document

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"CCNLMonitor/internal/domain"
)

// Domain bounds for extracted figures.
const (
	MinMonthlySalary  = 500.0
	MaxMonthlySalary  = 50000.0
	MinWeeklyHours    = 10.0
	MaxWeeklyHours    = 80.0
	MinOvertimeFactor = 1.0
	MaxOvertimeFactor = 3.0
)

// Fallback figures used when a summary mentions nothing concrete.
const (
	BaselineSalary       = 1500.0
	DefaultWeeklyHours   = 40.0
	DefaultOvertimeRate  = 1.25
	baselineLevel        = "level_base"
	standardOvertimeRate = "standard"
)

var (
	percentExpr     = regexp.MustCompile(`(\d{1,2}(?:[.,]\d{1,2})?)\s*%`)
	euroRaiseExpr   = regexp.MustCompile(`(?i)(\d{1,4}(?:[.,]\d{1,2})?)\s*(?:€|euro)`)
	fixedHoursExpr  = regexp.MustCompile(`(?i)\b(\d{2})\s*ore\b`)
	increaseMention = regexp.MustCompile(`(?i)aument|increment|rialz|increase`)
)

// ExtractFromSummary derives figures from a feed title and description. Fields
// that cannot be detected get conservative defaults so the result is always
// well formed.
func (p *Processor) ExtractFromSummary(title, description string) domain.ExtractedData {
	text := title + " " + description
	data := ExtractText(text)

	if len(data.SalaryTables) == 0 {
		data.SalaryTables = map[string]float64{baselineLevel: estimateSalary(text)}
	}
	if data.WorkingHours == nil {
		if m := fixedHoursExpr.FindStringSubmatch(text); m != nil {
			if h, ok := ParseAmount(m[1]); ok && h >= MinWeeklyHours && h <= MaxWeeklyHours {
				data.WorkingHours = &h
			}
		}
	}
	if data.WorkingHours == nil {
		h := DefaultWeeklyHours
		data.WorkingHours = &h
	}
	if len(data.OvertimeRates) == 0 {
		data.OvertimeRates = map[string]float64{standardOvertimeRate: DefaultOvertimeRate}
	}
	return data
}

func estimateSalary(text string) float64 {
	baseline := decimal.NewFromFloat(BaselineSalary)
	if !increaseMention.MatchString(text) {
		return BaselineSalary
	}
	if m := percentExpr.FindStringSubmatch(text); m != nil {
		if pct, ok := ParseAmount(m[1]); ok {
			factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100)))
			return baseline.Mul(factor).Round(2).InexactFloat64()
		}
	}
	if m := euroRaiseExpr.FindStringSubmatch(text); m != nil {
		if raise, ok := ParseAmount(m[1]); ok {
			return baseline.Add(decimal.NewFromFloat(raise)).Round(2).InexactFloat64()
		}
	}
	return BaselineSalary
}

// Validate bounds-checks extracted figures. Salaries above the ceiling only warn.
func (p *Processor) Validate(data domain.ExtractedData) domain.ValidationResult {
	return Validate(data)
}

// Validate is the rule set shared by the processor and the version manager.
func Validate(data domain.ExtractedData) domain.ValidationResult {
	var result domain.ValidationResult

	for _, level := range data.Levels() {
		salary := data.SalaryTables[level]
		switch {
		case salary < 0:
			result.Errors = append(result.Errors, fmt.Sprintf("salary for %s is negative: %s", level, formatFigure(salary)))
		case salary < MinMonthlySalary:
			result.Errors = append(result.Errors, fmt.Sprintf("salary for %s below minimum %s: %s", level, formatFigure(MinMonthlySalary), formatFigure(salary)))
		case salary > MaxMonthlySalary:
			result.Warnings = append(result.Warnings, fmt.Sprintf("salary for %s above %s: %s", level, formatFigure(MaxMonthlySalary), formatFigure(salary)))
		}
	}

	if data.WorkingHours != nil {
		if h := *data.WorkingHours; h < MinWeeklyHours || h > MaxWeeklyHours {
			result.Errors = append(result.Errors, fmt.Sprintf("weekly hours %s outside [%s, %s]", formatFigure(h), formatFigure(MinWeeklyHours), formatFigure(MaxWeeklyHours)))
		}
	}

	for _, key := range sortedKeys(data.OvertimeRates) {
		rate := data.OvertimeRates[key]
		if rate < MinOvertimeFactor || rate > MaxOvertimeFactor {
			result.Errors = append(result.Errors, fmt.Sprintf("overtime rate %s %s outside [%s, %s]", key, formatFigure(rate), formatFigure(MinOvertimeFactor), formatFigure(MaxOvertimeFactor)))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// PrepareVersionData assembles a version payload. The version number is
// year*100+month of the processing time, so items in the same month share it.
func (p *Processor) PrepareVersionData(parsed domain.ExtractedData, event domain.UpdateEvent) domain.VersionData {
	now := p.now()
	effective := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	wages := domain.Section{}
	for level, amount := range parsed.SalaryTables {
		wages[level] = amount
	}

	salary := domain.Section{}
	if len(wages) > 0 {
		salary[domain.KeyMinimumWages] = wages
	}

	conditions := domain.Section{}
	if parsed.WorkingHours != nil {
		conditions[domain.KeyWeeklyHours] = *parsed.WorkingHours
	}
	if len(parsed.OvertimeRates) > 0 {
		rates := domain.Section{}
		for k, v := range parsed.OvertimeRates {
			rates[k] = v
		}
		conditions[domain.KeyOvertimeRates] = rates
	}

	return domain.VersionData{
		VersionNumber:     now.Year()*100 + int(now.Month()),
		EffectiveDate:     effective,
		DocumentURL:       event.URL,
		SalaryData:        salary,
		WorkingConditions: conditions,
		LeaveProvisions:   domain.Section{},
		OtherBenefits:     domain.Section{},
	}
}

// FiguresFromVersion reads the validated figures back out of a version payload.
func FiguresFromVersion(data domain.VersionData) domain.ExtractedData {
	var out domain.ExtractedData

	if wages, ok := data.SalaryData.Sub(domain.KeyMinimumWages); ok {
		out.SalaryTables = map[string]float64{}
		for level, v := range wages {
			if f, ok := domain.ToFloat(v); ok {
				out.SalaryTables[level] = f
			}
		}
	}
	if h, ok := data.WorkingConditions.Float(domain.KeyWeeklyHours); ok {
		out.WorkingHours = &h
	}
	if rates, ok := data.WorkingConditions.Sub(domain.KeyOvertimeRates); ok {
		out.OvertimeRates = map[string]float64{}
		for k, v := range rates {
			if f, ok := domain.ToFloat(v); ok {
				out.OvertimeRates[k] = f
			}
		}
	}
	return out
}

func formatFigure(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
