package reader

import (
	"github.com/camtrap/camtrap-go/internal/inventory"
)

// SamplesFromInventory adapts inventory records into reader samples, in the
// inventory's canonical ID order.
func SamplesFromInventory(inv *inventory.Inventory) []Sample {
	ids := inv.RecordIDs()
	samples := make([]Sample, 0, len(ids))
	for _, id := range ids {
		record, err := inv.Record(id)
		if err != nil {
			continue
		}
		samples = append(samples, Sample{
			ID:     id,
			Labels: record.Labels,
			Images: record.Images,
		})
	}
	return samples
}
