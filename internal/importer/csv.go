package importer

import (
	"context"
	"encoding/csv"
	"os"
	"strings"

	"github.com/camtrap/camtrap-go/internal/errors"
)

// CSV column names with special meaning; all other columns are label types.
const (
	csvColumnID    = "id"
	csvColumnImage = "image"

	// multiple label values in one cell are separated by a pipe
	csvValueSeparator = "|"
)

func init() {
	Register("csv", func() Importer { return &csvImporter{} })
}

// csvImporter reads records from a CSV file with an "id" column, an optional
// "image" column and one column per label type. Empty cells yield no values
// for that label type. Repeated record IDs merge image paths and label
// values across rows, supporting one-row-per-image exports.
type csvImporter struct{}

func (c *csvImporter) Import(ctx context.Context, path string) (map[string]RawAttributes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ImportError(err, "csv", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.ImportError(err, "csv", path)
	}
	if len(rows) < 2 {
		return nil, errors.Newf("csv source %s has no data rows", path).
			Category(errors.CategoryImport).
			Build()
	}

	header := rows[0]
	idCol := -1
	imageCol := -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case csvColumnID:
			idCol = i
		case csvColumnImage:
			imageCol = i
		}
	}
	if idCol < 0 {
		return nil, errors.Newf("csv source %s is missing the %q column", path, csvColumnID).
			Category(errors.CategoryImport).
			Build()
	}

	records := make(map[string]RawAttributes)
	for _, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := strings.TrimSpace(row[idCol])
		if id == "" {
			continue
		}

		attrs, exists := records[id]
		if !exists {
			attrs = RawAttributes{Labels: make(map[string][]string)}
		}

		if imageCol >= 0 && imageCol < len(row) {
			if image := strings.TrimSpace(row[imageCol]); image != "" {
				attrs.Images = appendUnique(attrs.Images, image)
			}
		}

		for i, cell := range row {
			if i == idCol || i == imageCol || i >= len(header) {
				continue
			}
			labelType := strings.ToLower(strings.TrimSpace(header[i]))
			for _, value := range strings.Split(cell, csvValueSeparator) {
				if value = strings.TrimSpace(value); value != "" {
					attrs.Labels[labelType] = appendUnique(attrs.Labels[labelType], value)
				}
			}
		}

		records[id] = attrs
	}

	return records, nil
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}
