// Package inventory implements the canonical in-memory record store for one
// dataset: membership operations, sampling and label statistics.
package inventory

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"os"
	"sort"

	"github.com/camtrap/camtrap-go/internal/errors"
	"github.com/camtrap/camtrap-go/internal/importer"
	"github.com/camtrap/camtrap-go/internal/labels"
	"github.com/camtrap/camtrap-go/internal/logging"
)

// Record is one labeled data item. Labels maps a label type to a non-empty
// ordered collection of label values; Images and Meta carry opaque source
// metadata. Membership operations never mutate a Record's content.
type Record struct {
	Labels map[string][]string `json:"labels"`
	Images []string            `json:"images,omitempty"`
	Meta   map[string]string   `json:"meta,omitempty"`
}

// Inventory is the in-memory mapping from record ID to Record. It is built
// once per import call; membership is mutable, record content is not.
// Inventory is not safe for concurrent mutation.
type Inventory struct {
	records map[string]Record
	log     *slog.Logger
}

// New returns an empty, not-yet-created inventory.
func New() *Inventory {
	return &Inventory{log: logging.ForService("inventory")}
}

// CreateFromSource builds an inventory by invoking the importer registered
// for sourceType and dropping every record that lacks a value for any label
// type observed on at least one imported record.
func CreateFromSource(ctx context.Context, sourceType, path string) (*Inventory, error) {
	imp, err := importer.Create(sourceType)
	if err != nil {
		return nil, err
	}

	raw, err := imp.Import(ctx, path)
	if err != nil {
		return nil, err
	}

	labelMaps := make(map[string]labels.LabelMap, len(raw))
	for id, attrs := range raw {
		labelMaps[id] = attrs.Labels
	}

	required := labels.ObservedTypes(labelMaps)
	if len(required) == 0 {
		return nil, errors.SchemaError("no label types survived filtering, inventory would be unusable")
	}

	kept := labels.FilterIncomplete(labelMaps, required)
	if len(kept) == 0 {
		return nil, errors.SchemaError("no record carries every observed label type, inventory would be empty")
	}

	inv := New()
	inv.records = make(map[string]Record, len(kept))
	for id := range kept {
		attrs := raw[id]
		inv.records[id] = Record{
			Labels: attrs.Labels,
			Images: attrs.Images,
			Meta:   attrs.Meta,
		}
	}

	inv.log.Info("created inventory from source",
		"source_type", sourceType,
		"imported", len(raw),
		"kept", len(kept),
		"dropped", len(raw)-len(kept),
		"required_label_types", required)

	return inv, nil
}

// LoadJSON restores an inventory from a snapshot written by ExportJSON.
func LoadJSON(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileParsing).
			FileContext(path, 0).
			Build()
	}

	inv := New()
	inv.records = records
	return inv, nil
}

// LoadJSONFiles restores one inventory from several snapshot files, merging
// records by ID. Later files win on duplicate IDs.
func LoadJSONFiles(paths ...string) (*Inventory, error) {
	if len(paths) == 0 {
		return nil, errors.Newf("no inventory snapshot files given").
			Category(errors.CategoryValidation).
			Build()
	}

	merged := New()
	merged.records = make(map[string]Record)
	for _, path := range paths {
		inv, err := LoadJSON(path)
		if err != nil {
			return nil, err
		}
		for id, record := range inv.records {
			merged.records[id] = record
		}
	}
	return merged, nil
}

// Count returns the number of records currently in the inventory.
func (inv *Inventory) Count() int {
	return len(inv.records)
}

// RecordIDs returns all record IDs in sorted order. Sorted order is the
// canonical scan order for statistics and sampling, which keeps both
// reproducible.
func (inv *Inventory) RecordIDs() []string {
	ids := make([]string, 0, len(inv.records))
	for id := range inv.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Record returns the record for an ID.
func (inv *Inventory) Record(id string) (Record, error) {
	record, ok := inv.records[id]
	if !ok {
		return Record{}, errors.Newf("record %q not found in inventory", id).
			Category(errors.CategoryNotFound).
			Context("record_id", id).
			Build()
	}
	return record, nil
}

// Remove deletes a record from the inventory membership. Removing an absent
// ID is a no-op.
func (inv *Inventory) Remove(id string) {
	delete(inv.records, id)
}

// SampleToFraction keeps floor(n*p) records selected uniformly at random
// without replacement and drops the rest. p must be in [0, 1]. Passing a
// seeded rng makes the selection reproducible; a nil rng uses a
// time-seeded source.
func (inv *Inventory) SampleToFraction(p float64, rng *rand.Rand) error {
	if p < 0 || p > 1 {
		return errors.Newf("sampling fraction %v outside [0, 1]", p).
			Category(errors.CategoryValidation).
			Context("fraction", p).
			Build()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ids := inv.RecordIDs()
	nTotal := len(ids)
	nKeep := int(float64(nTotal) * p) // truncation, not rounding

	// partial Fisher-Yates over the sorted ID list
	for i := range nKeep {
		j := i + rng.IntN(nTotal-i)
		ids[i], ids[j] = ids[j], ids[i]
	}

	sampled := make(map[string]Record, nKeep)
	for _, id := range ids[:nKeep] {
		sampled[id] = inv.records[id]
	}
	inv.records = sampled

	inv.log.Info("sampled inventory", "fraction", p, "kept", nKeep, "from", nTotal)
	return nil
}

// ExportJSON serializes the full ID to Record mapping. Exporting an
// inventory that was never created logs a warning and writes nothing.
func (inv *Inventory) ExportJSON(path string) error {
	if inv.records == nil {
		inv.log.Warn("cannot export inventory, no inventory created yet", "path", path)
		return nil
	}

	data, err := json.MarshalIndent(inv.records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	inv.log.Info("inventory exported", "path", path, "records", len(inv.records))
	return nil
}
