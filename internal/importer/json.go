package importer

import (
	"context"
	"encoding/json"
	"os"

	"github.com/camtrap/camtrap-go/internal/errors"
)

func init() {
	Register("json", func() Importer { return &jsonImporter{} })
}

// jsonImporter reads a record map from a single JSON file keyed by record ID.
// The format matches the inventory snapshot written by export, so exported
// inventories can be re-imported unchanged.
type jsonImporter struct{}

func (j *jsonImporter) Import(ctx context.Context, path string) (map[string]RawAttributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ImportError(err, "json", path)
	}

	var records map[string]RawAttributes
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.ImportError(err, "json", path)
	}

	return records, nil
}
