package domain

// Direction tags for field-level changes.
const (
	DirectionIncreased = "increased"
	DirectionDecreased = "decreased"
	DirectionModified  = "modified"
)

// WageChange is the movement of one wage level.
type WageChange struct {
	Old        float64 `json:"old"`
	New        float64 `json:"new"`
	Change     float64 `json:"change"`
	Percentage float64 `json:"percentage"`
}

// SalaryChanges partitions every wage level found in either version into exactly one bucket.
type SalaryChanges struct {
	Increased map[string]WageChange `json:"increased"`
	Decreased map[string]WageChange `json:"decreased"`
	Unchanged map[string]float64    `json:"unchanged"`
	Added     map[string]float64    `json:"added"`
	Removed   map[string]float64    `json:"removed"`
}

// Levels returns the number of wage levels seen across all buckets.
func (s SalaryChanges) Levels() int {
	return len(s.Increased) + len(s.Decreased) + len(s.Unchanged) + len(s.Added) + len(s.Removed)
}

// Changed reports whether any level moved, appeared or disappeared.
func (s SalaryChanges) Changed() bool {
	return len(s.Increased)+len(s.Decreased)+len(s.Added)+len(s.Removed) > 0
}

// MaxIncreasePercentage returns the largest percentage increase, or 0.
func (s SalaryChanges) MaxIncreasePercentage() float64 {
	var best float64
	for _, c := range s.Increased {
		if c.Percentage > best {
			best = c.Percentage
		}
	}
	return best
}

// FieldDelta is one changed field. Delta is set only when both sides are numeric.
type FieldDelta struct {
	Old       any      `json:"old"`
	New       any      `json:"new"`
	Delta     *float64 `json:"delta,omitempty"`
	Direction string   `json:"direction"`
}

// StructuralChanges flags section-level reshaping between two versions.
type StructuralChanges struct {
	AddedSections   []Category `json:"added_sections"`
	RemovedSections []Category `json:"removed_sections"`
	Restructured    []Category `json:"major_restructuring"`
}

// Empty reports whether nothing structural changed.
func (s StructuralChanges) Empty() bool {
	return len(s.AddedSections) == 0 && len(s.RemovedSections) == 0 && len(s.Restructured) == 0
}

// ChangeSet is the detailed analysis of a version-to-version change.
type ChangeSet struct {
	Salary            SalaryChanges         `json:"salary_changes"`
	WorkingConditions map[string]FieldDelta `json:"working_conditions_changes"`
	LeaveProvisions   map[string]FieldDelta `json:"leave_provision_changes"`
	NewBenefits       []string              `json:"new_benefits"`
	Structural        StructuralChanges     `json:"structural_changes"`
	OtherChanges      int                   `json:"other_changes"`
}

// Count returns the number of individual changes recorded.
func (c ChangeSet) Count() int {
	s := c.Salary
	return len(s.Increased) + len(s.Decreased) + len(s.Added) + len(s.Removed) +
		len(c.WorkingConditions) + len(c.LeaveProvisions) + len(c.NewBenefits) + c.OtherChanges
}
