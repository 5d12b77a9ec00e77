package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/camtrap/camtrap-go/internal/errors"
)

// ClassLabelType is the label type assigned by the image directory importer.
const ClassLabelType = "class"

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

func init() {
	Register("image_dir", func() Importer { return &imageDirImporter{} })
}

// imageDirImporter builds records from a class-per-subdirectory layout:
// root/<class name>/<image files>. Each image becomes one record labeled
// with its directory name under the "class" label type.
type imageDirImporter struct{}

func (d *imageDirImporter) Import(ctx context.Context, path string) (map[string]RawAttributes, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.ImportError(err, "image_dir", path)
	}

	records := make(map[string]RawAttributes)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		className := entry.Name()
		classDir := filepath.Join(path, className)
		images, err := os.ReadDir(classDir)
		if err != nil {
			return nil, errors.ImportError(err, "image_dir", classDir)
		}

		for _, image := range images {
			if image.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(image.Name()))] {
				continue
			}
			id := fmt.Sprintf("%s#%s", className, strings.TrimSuffix(image.Name(), filepath.Ext(image.Name())))
			records[id] = RawAttributes{
				Labels: map[string][]string{ClassLabelType: {className}},
				Images: []string{filepath.Join(classDir, image.Name())},
			}
		}
	}

	if len(records) == 0 {
		return nil, errors.Newf("no class directories with images found in %s", path).
			Category(errors.CategoryImport).
			Build()
	}

	return records, nil
}
