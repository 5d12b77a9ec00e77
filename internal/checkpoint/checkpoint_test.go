package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camtrap/camtrap-go/internal/errors"
)

func TestFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "model_epoch_03_loss_0.52.ckpt", Filename(3, 0.52))
	assert.Equal(t, "model_epoch_12_loss_1.70.ckpt", Filename(12, 1.6999))
}

func TestMostRecent(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(time.Minute)

	tests := []struct {
		name    string
		files   []FileInfo
		want    string
		wantErr bool
	}{
		{
			name: "latest timestamp wins",
			files: []FileInfo{
				{Path: "a.ckpt", ModTime: t1},
				{Path: "b.ckpt", ModTime: t3},
				{Path: "c.ckpt", ModTime: t2},
			},
			want: "b.ckpt",
		},
		{
			name: "timestamp ties break lexicographically",
			files: []FileInfo{
				{Path: "a.ckpt", ModTime: t2},
				{Path: "z.ckpt", ModTime: t2},
				{Path: "m.ckpt", ModTime: t2},
			},
			want: "z.ckpt",
		},
		{
			name: "single candidate",
			files: []FileInfo{
				{Path: "only.ckpt", ModTime: t1},
			},
			want: "only.ckpt",
		},
		{
			name:    "empty list",
			files:   nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := MostRecent(tt.files)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsNotFound(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveLatest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	for i, name := range []string{
		Filename(1, 0.90),
		Filename(2, 0.70),
		Filename(3, 0.75),
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		stamp := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, stamp, stamp))
	}
	// a non-checkpoint file never wins even when newer
	other := filepath.Join(dir, "training.csv")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	got, err := ResolveLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Filename(3, 0.75)), got)
}

func TestResolveLatestEmptyDir(t *testing.T) {
	t.Parallel()

	_, err := ResolveLatest(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, Filename(5, 0.33))
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	// explicit file path passes through
	got, err := Resolve(file)
	require.NoError(t, err)
	assert.Equal(t, file, got)

	// directory resolves to the latest checkpoint inside
	got, err = Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, file, got)

	// missing path is a not-found error
	_, err = Resolve(filepath.Join(dir, "absent"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
