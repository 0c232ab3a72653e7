package change

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CCNLMonitor/internal/domain"
)

func TestDetectSalaryChangesScenario(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(nil)
	got := a.DetectSalaryChanges(map[string]float64{"level_1": 1400}, map[string]float64{"level_1": 1500})

	require.Contains(t, got.Increased, "level_1")
	change := got.Increased["level_1"]
	assert.Equal(t, 1400.0, change.Old)
	assert.Equal(t, 1500.0, change.New)
	assert.Equal(t, 100.0, change.Change)
	assert.Equal(t, 7.14, change.Percentage)
}

func TestDetectSalaryChangesPartitionsEveryLevel(t *testing.T) {
	t.Parallel()

	old := map[string]float64{"l1": 1400, "l2": 1600, "l3": 1800, "l4": 2000, "l5": 0.1 + 0.2}
	next := map[string]float64{"l1": 1450.55, "l2": 1550, "l3": 1800, "l6": 2500, "l5": 0.3}

	got := NewAnalyzer(nil).DetectSalaryChanges(old, next)

	buckets := []map[string]struct{}{
		keys(got.Increased), keys(got.Decreased), keys(got.Unchanged), keys(got.Added), keys(got.Removed),
	}
	union := map[string]struct{}{}
	for k := range old {
		union[k] = struct{}{}
	}
	for k := range next {
		union[k] = struct{}{}
	}

	for level := range union {
		hits := 0
		for _, b := range buckets {
			if _, ok := b[level]; ok {
				hits++
			}
		}
		assert.Equal(t, 1, hits, "level %s must be in exactly one bucket", level)
	}
	assert.Equal(t, len(union), got.Levels())

	assert.Contains(t, got.Increased, "l1")
	assert.InDelta(t, 50.55, got.Increased["l1"].Change, 1e-9)
	assert.Contains(t, got.Decreased, "l2")
	assert.InDelta(t, -50, got.Decreased["l2"].Change, 1e-9)
	assert.Contains(t, got.Unchanged, "l3")
	assert.Contains(t, got.Removed, "l4")
	assert.Contains(t, got.Added, "l6")
}

func keys[V any](m map[string]V) map[string]struct{} {
	out := map[string]struct{}{}
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func TestDetectWorkingConditionsChanges(t *testing.T) {
	t.Parallel()

	old := domain.Section{
		domain.KeyWeeklyHours:   40.0,
		domain.KeyOvertimeRates: domain.Section{"standard": 1.25, "night": 1.2},
		"shift_model":           "3x8",
		"smart_working_days":    4,
	}
	next := domain.Section{
		domain.KeyWeeklyHours:   38.0,
		domain.KeyOvertimeRates: map[string]any{"standard": 1.25, "night": 1.3},
		"shift_model":           "4x6",
		"canteen":               true,
		"smart_working_days":    4,
	}

	got := NewAnalyzer(nil).DetectWorkingConditionsChanges(old, next)
	require.Len(t, got, 4)

	hours := got[domain.KeyWeeklyHours]
	require.NotNil(t, hours.Delta)
	assert.InDelta(t, -2, *hours.Delta, 1e-9)
	assert.Equal(t, domain.DirectionDecreased, hours.Direction)

	night := got["overtime_rates.night"]
	require.NotNil(t, night.Delta)
	assert.InDelta(t, 0.1, *night.Delta, 1e-9)
	assert.Equal(t, domain.DirectionIncreased, night.Direction)

	assert.Equal(t, domain.DirectionModified, got["shift_model"].Direction)
	assert.Nil(t, got["shift_model"].Delta)
	assert.Equal(t, domain.DirectionModified, got["canteen"].Direction)
	assert.NotContains(t, got, "overtime_rates.standard")
}

func TestCalculateSignificanceScoreIsMonotonicInSalaryIncrease(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(nil)
	base := domain.ChangeSet{
		NewBenefits:     []string{"welfare"},
		LeaveProvisions: map[string]domain.FieldDelta{"annual_days": {Direction: domain.DirectionIncreased}},
		OtherChanges:    3,
	}

	previous := -1.0
	for pct := 0.0; pct <= 25; pct += 0.5 {
		cs := base
		cs.Salary = domain.SalaryChanges{Increased: map[string]domain.WageChange{"level_1": {Percentage: pct}}}
		score := a.CalculateSignificanceScore(cs)

		assert.GreaterOrEqual(t, score, previous, "pct %.1f", pct)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
		previous = score
	}
}

func TestCalculateSignificanceScoreWeights(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(nil)
	delta := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		cs   domain.ChangeSet
		want float64
	}{
		{name: "nothing", cs: domain.ChangeSet{}, want: 0},
		{
			name: "five percent raise",
			cs:   domain.ChangeSet{Salary: domain.SalaryChanges{Increased: map[string]domain.WageChange{"l1": {Percentage: 5}}}},
			want: 0.2,
		},
		{
			name: "raise above ceiling",
			cs:   domain.ChangeSet{Salary: domain.SalaryChanges{Increased: map[string]domain.WageChange{"l1": {Percentage: 14}}}},
			want: 0.4,
		},
		{
			name: "hours below materiality",
			cs:   domain.ChangeSet{WorkingConditions: map[string]domain.FieldDelta{domain.KeyWeeklyHours: {Delta: delta(-2)}}},
			want: 0,
		},
		{
			name: "hours past materiality",
			cs:   domain.ChangeSet{WorkingConditions: map[string]domain.FieldDelta{domain.KeyWeeklyHours: {Delta: delta(-4)}}},
			want: 0.1,
		},
		{
			name: "benefits leave and other",
			cs: domain.ChangeSet{
				NewBenefits:     []string{"a", "b", "c", "d", "e", "f"},
				LeaveProvisions: map[string]domain.FieldDelta{"x": {}},
				OtherChanges:    5,
			},
			want: 0.2 + 0.05 + 0.025,
		},
		{
			name: "everything saturated",
			cs: domain.ChangeSet{
				Salary:            domain.SalaryChanges{Increased: map[string]domain.WageChange{"l1": {Percentage: 30}}},
				WorkingConditions: map[string]domain.FieldDelta{domain.KeyWeeklyHours: {Delta: delta(12)}},
				NewBenefits:       []string{"a", "b", "c", "d", "e"},
				LeaveProvisions:   map[string]domain.FieldDelta{"x": {}},
				OtherChanges:      40,
			},
			want: 0.95,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, a.CalculateSignificanceScore(tt.cs), 1e-9)
		})
	}
}

func TestDetectStructuralChanges(t *testing.T) {
	t.Parallel()

	old := domain.AgreementVersion{
		SalaryData:        domain.Section{"a": 1, "b": 2},
		WorkingConditions: domain.Section{"w1": 1, "w2": 2, "w3": 3},
		LeaveProvisions:   domain.Section{"days": 26},
	}
	next := domain.AgreementVersion{
		SalaryData:        domain.Section{"a": 1, "b": 3},
		WorkingConditions: domain.Section{"w1": 1, "x2": 2, "x3": 3},
		OtherBenefits:     domain.Section{"welfare": 200},
	}

	got := NewAnalyzer(nil).DetectStructuralChanges(old, next)
	assert.Equal(t, []domain.Category{domain.CategoryOtherBenefits}, got.AddedSections)
	assert.Equal(t, []domain.Category{domain.CategoryLeaveProvisions}, got.RemovedSections)
	assert.Equal(t, []domain.Category{domain.CategoryWorkingConditions}, got.Restructured)

	assert.True(t, NewAnalyzer(nil).DetectStructuralChanges(old, old).Empty())
}

func TestDetectStructuralChangesIgnoresValueOnlyChanges(t *testing.T) {
	t.Parallel()

	old := domain.AgreementVersion{
		WorkingConditions: domain.Section{"w1": 1.0, "w2": 2.0, "w3": 3.0},
	}
	next := domain.AgreementVersion{
		WorkingConditions: domain.Section{"w1": 10.0, "w2": 20.0, "w3": 30.0},
	}

	a := NewAnalyzer(nil)
	assert.True(t, a.DetectStructuralChanges(old, next).Empty())

	cs := a.AnalyzeChanges(&old, next)
	assert.Len(t, cs.WorkingConditions, 3)
	assert.Empty(t, cs.Structural.Restructured)
}

func TestAnalyzeChangesAndSummary(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(nil)
	old := domain.AgreementVersion{
		SalaryData:        domain.Section{domain.KeyMinimumWages: domain.Section{"level_1": 1400.0, "level_2": 1600.0}},
		WorkingConditions: domain.Section{domain.KeyWeeklyHours: 40.0},
	}
	next := domain.AgreementVersion{
		SalaryData:        domain.Section{domain.KeyMinimumWages: domain.Section{"level_1": 1500.0, "level_2": 1600.0}, "una_tantum": 300.0},
		WorkingConditions: domain.Section{domain.KeyWeeklyHours: 38.0},
		OtherBenefits:     domain.Section{"welfare": 200.0},
	}

	cs := a.AnalyzeChanges(&old, next)
	assert.Len(t, cs.Salary.Increased, 1)
	assert.Len(t, cs.Salary.Unchanged, 1)
	assert.Equal(t, []string{"welfare"}, cs.NewBenefits)
	assert.Equal(t, 1, cs.OtherChanges)
	assert.Equal(t, 4, cs.Count())

	summary := a.GenerateChangeSummary(cs)
	assert.Equal(t, "salary increase on 1 level(s), up to 7.14%; weekly hours changed from 40 to 38; new benefits: welfare", summary)

	score := a.CalculateSignificanceScore(cs)
	assert.InDelta(t, 0.4*0.714+0.2*0.2+0.05*0.1, score, 1e-9)
}

func TestAnalyzeChangesFirstVersion(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(nil)
	next := domain.AgreementVersion{
		SalaryData: domain.Section{domain.KeyMinimumWages: domain.Section{"level_1": 1500.0}},
	}

	cs := a.AnalyzeChanges(nil, next)
	assert.Equal(t, map[string]float64{"level_1": 1500}, cs.Salary.Added)
	assert.Equal(t, []domain.Category{domain.CategorySalary}, cs.Structural.AddedSections)
	assert.Equal(t, "1 new salary level(s)", a.GenerateChangeSummary(cs))
}

func TestGenerateChangeSummaryFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "minor administrative updates", NewAnalyzer(nil).GenerateChangeSummary(domain.ChangeSet{}))
}

func TestWageLevelsFallsBackToTopLevelNumbers(t *testing.T) {
	t.Parallel()

	got := WageLevels(domain.Section{"level_1": 1400, "note": "provvisorio"})
	assert.Equal(t, map[string]float64{"level_1": 1400}, got)
	assert.Empty(t, WageLevels(nil))
}
