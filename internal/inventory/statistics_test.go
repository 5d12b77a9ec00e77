package inventory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticsCountsAndMultiLabel(t *testing.T) {
	t.Parallel()

	inv := newTestInventory(t, map[string]Record{
		"r1": {Labels: map[string][]string{"species": {"cat"}}},
		"r2": {Labels: map[string][]string{"species": {"cat", "dog"}}},
		"r3": {Labels: map[string][]string{"species": {"dog"}, "count": {"2"}}},
	})

	stats := inv.ComputeLabelStatistics()

	species := stats.Types["species"]
	require.NotNil(t, species)
	assert.Equal(t, 3, species.TotalRecords)
	assert.Equal(t, 1, species.MultiLabelRecords)

	counts := map[string]int{}
	for _, vc := range species.Counts {
		counts[vc.Value] = vc.Count
	}
	assert.Equal(t, map[string]int{"cat": 2, "dog": 2}, counts)

	count := stats.Types["count"]
	require.NotNil(t, count)
	assert.Equal(t, 1, count.TotalRecords)
	assert.Zero(t, count.MultiLabelRecords)

	// multi-label count never exceeds the per-type record count
	for _, ts := range stats.Types {
		assert.LessOrEqual(t, ts.MultiLabelRecords, ts.TotalRecords)
	}
}

func TestStatisticsOrderingDescendingWithFirstSeenTies(t *testing.T) {
	t.Parallel()

	// counts: a=5, b=9, c=9; scan order over sorted IDs encounters b before c
	records := make(map[string]Record)
	add := func(prefix, value string, n int) {
		for i := range n {
			records[fmt.Sprintf("%s%02d", prefix, i)] = Record{
				Labels: map[string][]string{"species": {value}},
			}
		}
	}
	add("k", "b", 9) // ids k00..k08 sort before m*, so b is seen first
	add("m", "c", 9)
	add("z", "a", 5)

	inv := newTestInventory(t, records)
	stats := inv.ComputeLabelStatistics()

	species := stats.Types["species"]
	require.NotNil(t, species)
	require.Len(t, species.Counts, 3)

	assert.Equal(t, ValueCount{Value: "b", Count: 9}, species.Counts[0])
	assert.Equal(t, ValueCount{Value: "c", Count: 9}, species.Counts[1])
	assert.Equal(t, ValueCount{Value: "a", Count: 5}, species.Counts[2])
}

func TestStatisticsSumMatchesTypeTotal(t *testing.T) {
	t.Parallel()

	inv := newTestInventory(t, map[string]Record{
		"r1": {Labels: map[string][]string{"species": {"cat"}}},
		"r2": {Labels: map[string][]string{"species": {"dog"}}},
		"r3": {Labels: map[string][]string{"species": {"dog"}}},
	})

	stats := inv.ComputeLabelStatistics()
	species := stats.Types["species"]
	require.NotNil(t, species)

	sum := 0
	for _, vc := range species.Counts {
		sum += vc.Count
	}
	// single-label records: value counts sum to the per-type record count
	assert.Equal(t, species.TotalRecords, sum)
}

func TestStatisticsRecomputedAfterMutation(t *testing.T) {
	t.Parallel()

	inv := newTestInventory(t, map[string]Record{
		"r1": {Labels: map[string][]string{"species": {"cat"}}},
		"r2": {Labels: map[string][]string{"species": {"dog"}}},
	})

	before := inv.ComputeLabelStatistics()
	assert.Equal(t, 2, before.Types["species"].TotalRecords)

	inv.Remove("r1")

	after := inv.ComputeLabelStatistics()
	assert.Equal(t, 1, after.Types["species"].TotalRecords)
	// the earlier aggregate is a detached snapshot
	assert.Equal(t, 2, before.Types["species"].TotalRecords)
}

func TestLabelTypesSorted(t *testing.T) {
	t.Parallel()

	inv := newTestInventory(t, map[string]Record{
		"r1": {Labels: map[string][]string{"species": {"cat"}, "count": {"1"}, "behavior": {"standing"}}},
	})

	stats := inv.ComputeLabelStatistics()
	assert.Equal(t, []string{"behavior", "count", "species"}, stats.LabelTypes())
}
