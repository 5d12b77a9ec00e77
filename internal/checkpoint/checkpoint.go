// Package checkpoint provides deterministic checkpoint file naming and
// most-recent-checkpoint resolution.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/camtrap/camtrap-go/internal/errors"
)

// Ext is the checkpoint file extension.
const Ext = ".ckpt"

// BestName is the fixed, overwritten per-run best checkpoint filename.
const BestName = "model_best" + Ext

// FinalBestName is the stable best-model filename in the model save dir.
const FinalBestName = "best_model" + Ext

// Filename formats the per-epoch checkpoint name with the epoch index and
// validation loss embedded. Epochs are reported 1-based in filenames.
func Filename(epoch int, valLoss float64) string {
	return fmt.Sprintf("model_epoch_%02d_loss_%.2f%s", epoch, valLoss, Ext)
}

// FileInfo is one candidate checkpoint file.
type FileInfo struct {
	Path    string
	ModTime time.Time
}

// MostRecent returns the path with the latest modification time. Equal
// timestamps are broken by the lexicographically larger path so the choice
// stays deterministic. An empty candidate list is a not-found error.
func MostRecent(files []FileInfo) (string, error) {
	if len(files) == 0 {
		return "", errors.Newf("no checkpoint files to resolve").
			Category(errors.CategoryNotFound).
			Build()
	}

	best := files[0]
	for _, f := range files[1:] {
		if f.ModTime.After(best.ModTime) ||
			(f.ModTime.Equal(best.ModTime) && f.Path > best.Path) {
			best = f
		}
	}
	return best.Path, nil
}

// ResolveLatest scans a directory for checkpoint files and returns the most
// recently produced one. The filesystem walk is a thin adapter; selection
// itself is MostRecent.
func ResolveLatest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return "", errors.New(err).
				Category(errors.CategoryFileIO).
				Context("dir", dir).
				Build()
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(dir, entry.Name()),
			ModTime: info.ModTime(),
		})
	}

	path, err := MostRecent(files)
	if err != nil {
		return "", errors.Newf("no checkpoint files (%s) found in %s", Ext, dir).
			Category(errors.CategoryNotFound).
			Context("dir", dir).
			Build()
	}
	return path, nil
}

// Resolve turns a user-supplied checkpoint reference into a concrete file:
// a file path is returned as-is, a directory resolves to its most recent
// checkpoint.
func Resolve(pathOrDir string) (string, error) {
	info, err := os.Stat(pathOrDir)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryNotFound).
			Context("path", pathOrDir).
			Build()
	}
	if info.IsDir() {
		return ResolveLatest(pathOrDir)
	}
	return pathOrDir, nil
}
