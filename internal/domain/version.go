package domain

import "time"

// Category names one of the four content sections of an agreement version.
type Category string

const (
	CategorySalary            Category = "salary_data"
	CategoryWorkingConditions Category = "working_conditions"
	CategoryLeaveProvisions   Category = "leave_provisions"
	CategoryOtherBenefits     Category = "other_benefits"
)

// Categories lists the sections in diff order.
var Categories = []Category{
	CategorySalary,
	CategoryWorkingConditions,
	CategoryLeaveProvisions,
	CategoryOtherBenefits,
}

// Well-known keys inside sections.
const (
	KeyMinimumWages  = "minimum_wages"
	KeyWeeklyHours   = "weekly_hours"
	KeyOvertimeRates = "overtime_rates"
)

// Section is a nested key/value payload. Values are float64, string, bool or Section.
type Section map[string]any

// Float returns the numeric value stored under key.
func (s Section) Float(key string) (float64, bool) {
	return ToFloat(s[key])
}

// Sub returns the nested section stored under key.
func (s Section) Sub(key string) (Section, bool) {
	return AsSection(s[key])
}

// AsSection converts nested map values into a Section.
func AsSection(v any) (Section, bool) {
	switch t := v.(type) {
	case Section:
		return t, true
	case map[string]any:
		return Section(t), true
	default:
		return nil, false
	}
}

// ToFloat converts numeric payload values to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	default:
		return 0, false
	}
}

// VersionData is the payload used to create a new agreement version.
type VersionData struct {
	VersionNumber     int
	EffectiveDate     time.Time
	ExpiryDate        *time.Time
	SignedDate        *time.Time
	DocumentURL       string
	SalaryData        Section
	WorkingConditions Section
	LeaveProvisions   Section
	OtherBenefits     Section
}

// AgreementVersion is a dated snapshot of an agreement.
type AgreementVersion struct {
	ID                string
	AgreementID       string
	VersionNumber     int
	EffectiveDate     time.Time
	ExpiryDate        *time.Time
	SignedDate        *time.Time
	DocumentURL       string
	SalaryData        Section
	WorkingConditions Section
	LeaveProvisions   Section
	OtherBenefits     Section
	IsCurrent         bool
	CreatedAt         time.Time
}

// Section returns the content of the given category.
func (v AgreementVersion) Section(c Category) Section {
	switch c {
	case CategorySalary:
		return v.SalaryData
	case CategoryWorkingConditions:
		return v.WorkingConditions
	case CategoryLeaveProvisions:
		return v.LeaveProvisions
	case CategoryOtherBenefits:
		return v.OtherBenefits
	default:
		return nil
	}
}

// FieldChange records a scalar modification.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// SectionDiff is the structural diff of one section. Modified values are
// FieldChange for scalars and SectionDiff for nested sections.
type SectionDiff struct {
	Added    map[string]any `json:"added"`
	Removed  map[string]any `json:"removed"`
	Modified map[string]any `json:"modified"`
}

// Empty reports whether nothing changed.
func (d SectionDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Count returns the number of changed keys at this level.
func (d SectionDiff) Count() int {
	return len(d.Added) + len(d.Removed) + len(d.Modified)
}

// VersionDiff groups section diffs by category.
type VersionDiff map[Category]SectionDiff

// Empty reports whether no category changed.
func (d VersionDiff) Empty() bool {
	for _, s := range d {
		if !s.Empty() {
			return false
		}
	}
	return true
}

// Change-log types.
const (
	ChangeTypeCreation = "creation"
	ChangeTypeUpdate   = "update"
	ChangeTypeRollback = "rollback"
)

// ChangeLog records what changed between two versions.
type ChangeLog struct {
	ID                string
	AgreementID       string
	OldVersionID      *string
	NewVersionID      string
	ChangeType        string
	Summary           string
	DetailedChanges   VersionDiff
	Analysis          ChangeSet
	SignificanceScore float64
	ChangesCount      int
	CreatedBy         string
	CreatedAt         time.Time
}

// Clone returns a deep copy of the section.
func (s Section) Clone() Section {
	if s == nil {
		return nil
	}
	out := make(Section, len(s))
	for k, v := range s {
		if nested, ok := AsSection(v); ok {
			out[k] = nested.Clone()
			continue
		}
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of the version.
func (v AgreementVersion) Clone() AgreementVersion {
	out := v
	out.SalaryData = v.SalaryData.Clone()
	out.WorkingConditions = v.WorkingConditions.Clone()
	out.LeaveProvisions = v.LeaveProvisions.Clone()
	out.OtherBenefits = v.OtherBenefits.Clone()
	return out
}
