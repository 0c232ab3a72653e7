package version

import (
	"reflect"

	"CCNLMonitor/internal/domain"
)

// Compare builds the structural diff of every category. Each category is
// present in the result with non-nil maps, even when nothing changed.
func Compare(old, next domain.AgreementVersion) domain.VersionDiff {
	diff := make(domain.VersionDiff, len(domain.Categories))
	for _, category := range domain.Categories {
		diff[category] = CompareSections(old.Section(category), next.Section(category))
	}
	return diff
}

// CompareSections diffs two sections. Nested sections recurse; scalar
// modifications are recorded as FieldChange.
func CompareSections(old, next domain.Section) domain.SectionDiff {
	d := domain.SectionDiff{
		Added:    map[string]any{},
		Removed:  map[string]any{},
		Modified: map[string]any{},
	}

	for key, oldValue := range old {
		newValue, ok := next[key]
		if !ok {
			d.Removed[key] = oldValue
			continue
		}
		if valuesEqual(oldValue, newValue) {
			continue
		}

		oldSection, oldNested := domain.AsSection(oldValue)
		newSection, newNested := domain.AsSection(newValue)
		if oldNested && newNested {
			if nested := CompareSections(oldSection, newSection); !nested.Empty() {
				d.Modified[key] = nested
			}
			continue
		}
		d.Modified[key] = domain.FieldChange{Old: oldValue, New: newValue}
	}

	for key, newValue := range next {
		if _, ok := old[key]; !ok {
			d.Added[key] = newValue
		}
	}
	return d
}

func valuesEqual(a, b any) bool {
	if af, ok := domain.ToFloat(a); ok {
		if bf, ok := domain.ToFloat(b); ok {
			return af == bf
		}
	}
	as, aNested := domain.AsSection(a)
	bs, bNested := domain.AsSection(b)
	if aNested && bNested {
		return CompareSections(as, bs).Empty()
	}
	return reflect.DeepEqual(a, b)
}
