package inventory

import (
	"log/slog"
	"sort"
)

// ValueCount is the record count for one label value.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// TypeStatistics aggregates one label type over the current inventory.
type TypeStatistics struct {
	// Counts is ordered by descending count; ties keep first-encountered
	// order of the canonical ID-sorted scan. Reporting consumers rely on
	// this ordering.
	Counts []ValueCount `json:"counts"`

	// TotalRecords is the number of records carrying this label type.
	TotalRecords int `json:"total_records"`

	// MultiLabelRecords is the number of records with more than one value
	// for this label type.
	MultiLabelRecords int `json:"multi_label_records"`
}

// LabelStatistics is a derived, read-only aggregate over the inventory.
// It is recomputed on demand and never cached; after any Remove or
// SampleToFraction call the caller must recompute.
type LabelStatistics struct {
	Types map[string]*TypeStatistics `json:"types"`
}

// ComputeLabelStatistics makes a single pass over all records counting
// records per (label type, label value) pair and, per label type, records
// carrying more than one value.
func (inv *Inventory) ComputeLabelStatistics() *LabelStatistics {
	stats := &LabelStatistics{Types: make(map[string]*TypeStatistics)}

	type valueOrder struct {
		index map[string]int // value -> position in Counts
	}
	orders := make(map[string]*valueOrder)

	for _, id := range inv.RecordIDs() {
		record := inv.records[id]
		for labelType, values := range record.Labels {
			ts := stats.Types[labelType]
			if ts == nil {
				ts = &TypeStatistics{}
				stats.Types[labelType] = ts
				orders[labelType] = &valueOrder{index: make(map[string]int)}
			}

			if len(values) == 0 {
				continue
			}
			ts.TotalRecords++
			if len(values) > 1 {
				ts.MultiLabelRecords++
			}

			order := orders[labelType]
			for _, value := range values {
				pos, seen := order.index[value]
				if !seen {
					pos = len(ts.Counts)
					order.index[value] = pos
					ts.Counts = append(ts.Counts, ValueCount{Value: value})
				}
				ts.Counts[pos].Count++
			}
		}
	}

	// stable sort preserves first-encountered order among equal counts
	for _, ts := range stats.Types {
		sort.SliceStable(ts.Counts, func(i, j int) bool {
			return ts.Counts[i].Count > ts.Counts[j].Count
		})
	}

	return stats
}

// LabelTypes returns the label types present in the statistics, sorted.
func (s *LabelStatistics) LabelTypes() []string {
	types := make([]string, 0, len(s.Types))
	for labelType := range s.Types {
		types = append(types, labelType)
	}
	sort.Strings(types)
	return types
}

// LogSummary writes per-value counts with percentage shares and multi-label
// counts, mirroring the reporting produced at import time.
func (s *LabelStatistics) LogSummary(log *slog.Logger) {
	for _, labelType := range s.LabelTypes() {
		ts := s.Types[labelType]

		total := 0
		for _, vc := range ts.Counts {
			total += vc.Count
		}

		for _, vc := range ts.Counts {
			share := 0.0
			if total > 0 {
				share = 100 * float64(vc.Count) / float64(total)
			}
			log.Info("label statistics",
				"label_type", labelType,
				"label", vc.Value,
				"records", vc.Count,
				"of", total,
				"share_pct", share)
		}

		log.Info("multi-label records",
			"label_type", labelType,
			"records", ts.MultiLabelRecords)
	}
}
