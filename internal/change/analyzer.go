package change

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"CCNLMonitor/internal/domain"
)

// Significance weights and ceilings.
const (
	salaryWeight         = 0.4
	salaryCeilingPct     = 10.0
	hoursWeight          = 0.25
	hoursMateriality     = 2.0
	hoursCeiling         = 10.0
	benefitsWeight       = 0.2
	benefitsCeiling      = 5.0
	leaveWeight          = 0.1
	leaveFactor          = 0.5
	otherWeight          = 0.05
	otherCeiling         = 10.0
	restructuringRatio   = 0.5
	fallbackSignificance = 0.5
	minorChangesSummary  = "minor administrative updates"
	percentagePrecision  = 2
)

// Analyzer computes change buckets and significance between two versions.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer builds an analyzer. logger may be nil.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// AnalyzeChanges runs every detector. old is nil for the first version of an agreement.
func (a *Analyzer) AnalyzeChanges(old *domain.AgreementVersion, next domain.AgreementVersion) domain.ChangeSet {
	var prev domain.AgreementVersion
	if old != nil {
		prev = *old
	}

	cs := domain.ChangeSet{
		Salary:            a.DetectSalaryChanges(WageLevels(prev.SalaryData), WageLevels(next.SalaryData)),
		WorkingConditions: a.DetectWorkingConditionsChanges(prev.WorkingConditions, next.WorkingConditions),
		LeaveProvisions:   a.DetectLeaveProvisionChanges(prev.LeaveProvisions, next.LeaveProvisions),
		Structural:        a.DetectStructuralChanges(prev, next),
	}

	for key := range next.OtherBenefits {
		if _, ok := prev.OtherBenefits[key]; !ok {
			cs.NewBenefits = append(cs.NewBenefits, key)
		}
	}
	sort.Strings(cs.NewBenefits)

	for key, v := range prev.OtherBenefits {
		if nv, ok := next.OtherBenefits[key]; !ok || !reflect.DeepEqual(v, nv) {
			cs.OtherChanges++
		}
	}
	cs.OtherChanges += len(fieldDiff(salaryExtras(prev.SalaryData), salaryExtras(next.SalaryData)))

	return cs
}

// DetectSalaryChanges places every wage level present in either map in exactly one bucket.
func (a *Analyzer) DetectSalaryChanges(oldWages, newWages map[string]float64) domain.SalaryChanges {
	out := domain.SalaryChanges{
		Increased: map[string]domain.WageChange{},
		Decreased: map[string]domain.WageChange{},
		Unchanged: map[string]float64{},
		Added:     map[string]float64{},
		Removed:   map[string]float64{},
	}

	for level, oldValue := range oldWages {
		newValue, ok := newWages[level]
		if !ok {
			out.Removed[level] = oldValue
			continue
		}

		before := decimal.NewFromFloat(oldValue)
		after := decimal.NewFromFloat(newValue)
		delta := after.Sub(before)
		switch delta.Sign() {
		case 0:
			out.Unchanged[level] = newValue
		case 1:
			out.Increased[level] = wageChange(before, after, delta)
		default:
			out.Decreased[level] = wageChange(before, after, delta)
		}
	}

	for level, newValue := range newWages {
		if _, ok := oldWages[level]; !ok {
			out.Added[level] = newValue
		}
	}
	return out
}

func wageChange(before, after, delta decimal.Decimal) domain.WageChange {
	pct := decimal.Zero
	if !before.IsZero() {
		pct = delta.Div(before).Mul(decimal.NewFromInt(100)).Round(percentagePrecision)
	}
	return domain.WageChange{
		Old:        before.InexactFloat64(),
		New:        after.InexactFloat64(),
		Change:     delta.InexactFloat64(),
		Percentage: pct.InexactFloat64(),
	}
}

// DetectWorkingConditionsChanges diffs working conditions field by field.
// Nested sections are flattened into dotted keys such as "overtime_rates.night".
func (a *Analyzer) DetectWorkingConditionsChanges(old, next domain.Section) map[string]domain.FieldDelta {
	return fieldDiff(old, next)
}

// DetectLeaveProvisionChanges diffs leave provisions field by field.
func (a *Analyzer) DetectLeaveProvisionChanges(old, next domain.Section) map[string]domain.FieldDelta {
	return fieldDiff(old, next)
}

// CalculateSignificanceScore returns a weighted impact score in [0, 1]. An
// unexpected internal failure yields 0.5.
func (a *Analyzer) CalculateSignificanceScore(cs domain.ChangeSet) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			if a.logger != nil {
				a.logger.Error("significance scoring failed", "panic", r)
			}
			score = fallbackSignificance
		}
	}()

	score += salaryWeight * ratio(cs.Salary.MaxIncreasePercentage(), salaryCeilingPct)

	if d, ok := cs.WorkingConditions[domain.KeyWeeklyHours]; ok && d.Delta != nil {
		hours := *d.Delta
		if hours < 0 {
			hours = -hours
		}
		if hours > hoursMateriality {
			score += hoursWeight * ratio(hours, hoursCeiling)
		}
	}

	score += benefitsWeight * ratio(float64(len(cs.NewBenefits)), benefitsCeiling)

	if len(cs.LeaveProvisions) > 0 {
		score += leaveWeight * leaveFactor
	}

	score += otherWeight * ratio(float64(cs.OtherChanges), otherCeiling)

	return clamp(score)
}

// DetectStructuralChanges flags sections that appeared or disappeared, and
// shared sections where more than half of the keys were added or removed.
// Value changes on keys present in both versions belong to the field-level
// buckets and never count as restructuring.
func (a *Analyzer) DetectStructuralChanges(old, next domain.AgreementVersion) domain.StructuralChanges {
	var out domain.StructuralChanges
	for _, category := range domain.Categories {
		before, after := old.Section(category), next.Section(category)
		switch {
		case len(before) == 0 && len(after) > 0:
			out.AddedSections = append(out.AddedSections, category)
		case len(before) > 0 && len(after) == 0:
			out.RemovedSections = append(out.RemovedSections, category)
		case len(before) > 0 && len(after) > 0:
			if keyChurn(before, after) > restructuringRatio {
				out.Restructured = append(out.Restructured, category)
			}
		}
	}
	return out
}

// GenerateChangeSummary renders a one-line digest of the populated buckets.
func (a *Analyzer) GenerateChangeSummary(cs domain.ChangeSet) string {
	var parts []string

	if n := len(cs.Salary.Increased); n > 0 {
		parts = append(parts, fmt.Sprintf("salary increase on %d level(s), up to %.2f%%", n, cs.Salary.MaxIncreasePercentage()))
	}
	if n := len(cs.Salary.Decreased); n > 0 {
		parts = append(parts, fmt.Sprintf("salary decrease on %d level(s)", n))
	}
	if n := len(cs.Salary.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("%d new salary level(s)", n))
	}
	if n := len(cs.Salary.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d salary level(s) removed", n))
	}

	if d, ok := cs.WorkingConditions[domain.KeyWeeklyHours]; ok {
		parts = append(parts, fmt.Sprintf("weekly hours changed from %v to %v", display(d.Old), display(d.New)))
	}
	if n := len(cs.WorkingConditions) - countKey(cs.WorkingConditions, domain.KeyWeeklyHours); n > 0 {
		parts = append(parts, fmt.Sprintf("%d working condition change(s)", n))
	}
	if n := len(cs.LeaveProvisions); n > 0 {
		parts = append(parts, fmt.Sprintf("%d leave provision change(s)", n))
	}
	if len(cs.NewBenefits) > 0 {
		parts = append(parts, "new benefits: "+strings.Join(cs.NewBenefits, ", "))
	}
	for _, category := range cs.Structural.Restructured {
		parts = append(parts, fmt.Sprintf("major restructuring of %s", category))
	}

	if len(parts) == 0 {
		return minorChangesSummary
	}
	return strings.Join(parts, "; ")
}

// WageLevels reads the wage table of a salary section. It prefers the
// minimum_wages subsection and falls back to numeric top-level keys.
// Non-numeric entries are not wage levels.
func WageLevels(salary domain.Section) map[string]float64 {
	source := salary
	if wages, ok := salary.Sub(domain.KeyMinimumWages); ok {
		source = wages
	}
	levels := map[string]float64{}
	for key, v := range source {
		if f, ok := domain.ToFloat(v); ok {
			levels[key] = f
		}
	}
	return levels
}

func salaryExtras(salary domain.Section) domain.Section {
	if _, ok := salary.Sub(domain.KeyMinimumWages); !ok {
		return nil
	}
	extras := domain.Section{}
	for key, v := range salary {
		if key != domain.KeyMinimumWages {
			extras[key] = v
		}
	}
	return extras
}

func fieldDiff(old, next domain.Section) map[string]domain.FieldDelta {
	before, after := flatten("", old), flatten("", next)
	out := map[string]domain.FieldDelta{}

	for key, oldValue := range before {
		newValue, ok := after[key]
		if ok && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		out[key] = fieldDelta(oldValue, newValue, ok)
	}
	for key, newValue := range after {
		if _, ok := before[key]; !ok {
			out[key] = domain.FieldDelta{New: newValue, Direction: domain.DirectionModified}
		}
	}
	return out
}

func fieldDelta(oldValue, newValue any, present bool) domain.FieldDelta {
	if !present {
		return domain.FieldDelta{Old: oldValue, Direction: domain.DirectionModified}
	}
	of, oldNumeric := domain.ToFloat(oldValue)
	nf, newNumeric := domain.ToFloat(newValue)
	if !oldNumeric || !newNumeric {
		return domain.FieldDelta{Old: oldValue, New: newValue, Direction: domain.DirectionModified}
	}

	delta := decimal.NewFromFloat(nf).Sub(decimal.NewFromFloat(of)).InexactFloat64()
	direction := domain.DirectionIncreased
	if delta < 0 {
		direction = domain.DirectionDecreased
	}
	return domain.FieldDelta{Old: oldValue, New: newValue, Delta: &delta, Direction: direction}
}

func flatten(prefix string, s domain.Section) map[string]any {
	out := map[string]any{}
	for key, v := range s {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := domain.AsSection(v); ok {
			for k, nv := range flatten(path, nested) {
				out[k] = nv
			}
			continue
		}
		out[path] = v
	}
	return out
}

// keyChurn is the share of keys present in only one of the two sections.
func keyChurn(before, after domain.Section) float64 {
	union := map[string]struct{}{}
	for k := range before {
		union[k] = struct{}{}
	}
	for k := range after {
		union[k] = struct{}{}
	}
	var differing int
	for k := range union {
		_, inBefore := before[k]
		_, inAfter := after[k]
		if inBefore != inAfter {
			differing++
		}
	}
	return float64(differing) / float64(len(union))
}

func ratio(v, ceiling float64) float64 {
	if v <= 0 {
		return 0
	}
	if v >= ceiling {
		return 1
	}
	return v / ceiling
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func countKey(m map[string]domain.FieldDelta, key string) int {
	if _, ok := m[key]; ok {
		return 1
	}
	return 0
}

func display(v any) any {
	if v == nil {
		return "none"
	}
	return v
}
