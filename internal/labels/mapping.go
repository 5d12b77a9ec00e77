package labels

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/camtrap/camtrap-go/internal/errors"
)

// ClassMapping assigns every observed label value a stable numeric code,
// per label type. Codes are dense and sorted lexically by value so the same
// data always yields the same mapping.
type ClassMapping map[string]map[string]int

// BuildClassMapping derives the class mapping from the label maps of a
// record set.
func BuildClassMapping(records map[string]LabelMap) ClassMapping {
	values := make(map[string]map[string]struct{})
	for _, labelMap := range records {
		for labelType, labelValues := range labelMap {
			if values[labelType] == nil {
				values[labelType] = make(map[string]struct{})
			}
			for _, v := range labelValues {
				values[labelType][v] = struct{}{}
			}
		}
	}

	mapping := make(ClassMapping, len(values))
	for labelType, set := range values {
		sorted := make([]string, 0, len(set))
		for v := range set {
			sorted = append(sorted, v)
		}
		sort.Strings(sorted)

		codes := make(map[string]int, len(sorted))
		for i, v := range sorted {
			codes[v] = i
		}
		mapping[labelType] = codes
	}
	return mapping
}

// Classes returns the number of classes for a label type.
func (m ClassMapping) Classes(labelType string) int {
	return len(m[labelType])
}

// SaveClassMapping writes the mapping as indented JSON.
func SaveClassMapping(m ClassMapping, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	return nil
}

// LoadClassMapping reads a mapping written by SaveClassMapping.
func LoadClassMapping(path string) (ClassMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	var m ClassMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileParsing).
			FileContext(path, 0).
			Build()
	}
	return m, nil
}
