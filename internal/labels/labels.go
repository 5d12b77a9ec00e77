// Package labels implements label-completeness filtering for imported records.
package labels

import "sort"

// LabelMap maps a label type to its ordered label values for one record.
type LabelMap = map[string][]string

// ObservedTypes returns the sorted union of label types seen across all
// records. A label type observed on at least one record is considered
// required for every record.
func ObservedTypes(records map[string]LabelMap) []string {
	seen := make(map[string]struct{})
	for _, labelMap := range records {
		for labelType := range labelMap {
			seen[labelType] = struct{}{}
		}
	}

	types := make([]string, 0, len(seen))
	for labelType := range seen {
		types = append(types, labelType)
	}
	sort.Strings(types)
	return types
}

// FilterIncomplete returns the subset of records that carry at least one
// value for every required label type. The input is not modified. Identical
// input always produces identical output.
func FilterIncomplete(records map[string]LabelMap, requiredTypes []string) map[string]LabelMap {
	filtered := make(map[string]LabelMap, len(records))

	for id, labelMap := range records {
		complete := true
		for _, labelType := range requiredTypes {
			if len(labelMap[labelType]) == 0 {
				complete = false
				break
			}
		}
		if complete {
			filtered[id] = labelMap
		}
	}

	return filtered
}
