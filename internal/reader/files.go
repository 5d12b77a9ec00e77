package reader

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/camtrap/camtrap-go/internal/errors"
)

// SplitFileExt is the extension of exported record files making up a split.
const SplitFileExt = ".json"

// FindSplitFiles walks a split directory (including subdirectories) and
// returns the sorted record files whose name contains every given pattern.
func FindSplitFiles(root string, patterns []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), SplitFileExt) {
			return nil
		}
		for _, pattern := range patterns {
			if !strings.Contains(d.Name(), pattern) {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("dir", root).
			Build()
	}

	if len(files) == 0 {
		return nil, errors.Newf("no record files matching %v found under %s", patterns, root).
			Category(errors.CategoryNotFound).
			Context("dir", root).
			Build()
	}

	sort.Strings(files)
	return files, nil
}
