package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/camtrap/camtrap-go/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func makeSamples(n int) []Sample {
	samples := make([]Sample, n)
	for i := range n {
		samples[i] = Sample{
			ID:     fmt.Sprintf("r%03d", i),
			Labels: map[string][]string{"species": {"cat"}},
		}
	}
	return samples
}

func drain(t *testing.T, src *Source) []Batch {
	t.Helper()
	var batches []Batch
	for {
		batch, err := src.Next(context.Background())
		if errors.Is(err, ErrExhausted) {
			return batches
		}
		require.NoError(t, err)
		batches = append(batches, batch)
	}
}

func TestSingleRepeatYieldsAllSamplesOnce(t *testing.T) {
	t.Parallel()

	src, err := New(makeSamples(10), nil, Config{BatchSize: 4, NRepeats: 1, Workers: 2, BufferSize: 8})
	require.NoError(t, err)
	defer func() { require.NoError(t, src.Close()) }()

	batches := drain(t, src)
	require.Len(t, batches, 3) // 4 + 4 + 2

	seen := map[string]int{}
	total := 0
	for _, b := range batches {
		total += b.Size()
		for _, s := range b.Samples {
			seen[s.ID]++
		}
	}
	assert.Equal(t, 10, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "sample %s seen %d times", id, n)
	}
}

func TestDropRemainder(t *testing.T) {
	t.Parallel()

	src, err := New(makeSamples(10), nil, Config{BatchSize: 4, NRepeats: 1, DropRemainder: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, src.Close()) }()

	batches := drain(t, src)
	require.Len(t, batches, 2)
	for _, b := range batches {
		assert.Equal(t, 4, b.Size())
	}
}

func TestMultipleRepeats(t *testing.T) {
	t.Parallel()

	src, err := New(makeSamples(5), nil, Config{BatchSize: 5, NRepeats: 3})
	require.NoError(t, err)
	defer func() { require.NoError(t, src.Close()) }()

	batches := drain(t, src)
	total := 0
	for _, b := range batches {
		total += b.Size()
	}
	assert.Equal(t, 15, total)
}

func TestUnboundedRepeatsKeepProducing(t *testing.T) {
	t.Parallel()

	src, err := New(makeSamples(3), nil, Config{BatchSize: 3, NRepeats: 0, Workers: 2, BufferSize: 4})
	require.NoError(t, err)
	defer func() { require.NoError(t, src.Close()) }()

	// far more batches than one pass could provide
	for range 10 {
		batch, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, batch.Size())
	}
}

func TestShuffleReproducibleWithSeed(t *testing.T) {
	t.Parallel()

	run := func() []string {
		src, err := New(makeSamples(20), nil, Config{BatchSize: 20, NRepeats: 1, Shuffle: true, Seed: 1234})
		require.NoError(t, err)
		defer func() { require.NoError(t, src.Close()) }()

		batch, err := src.Next(context.Background())
		require.NoError(t, err)
		ids := make([]string, 0, batch.Size())
		for _, s := range batch.Samples {
			ids = append(ids, s.ID)
		}
		return ids
	}

	assert.Equal(t, run(), run())
}

func TestDecodeHookApplied(t *testing.T) {
	t.Parallel()

	decode := func(_ context.Context, s Sample) (Sample, error) {
		s.Features = []float32{1, 2, 3}
		return s, nil
	}

	src, err := New(makeSamples(4), decode, Config{BatchSize: 2, NRepeats: 1})
	require.NoError(t, err)
	defer func() { require.NoError(t, src.Close()) }()

	for _, b := range drain(t, src) {
		for _, s := range b.Samples {
			assert.Equal(t, []float32{1, 2, 3}, s.Features)
		}
	}
}

func TestDecodeErrorSurfaces(t *testing.T) {
	t.Parallel()

	decode := func(_ context.Context, s Sample) (Sample, error) {
		if s.ID == "r002" {
			return s, errors.NewStd("corrupt image")
		}
		return s, nil
	}

	src, err := New(makeSamples(5), decode, Config{BatchSize: 5, NRepeats: 1})
	require.NoError(t, err)
	defer func() { require.NoError(t, src.Close()) }()

	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryReader))
}

func TestCloseUnblocksProducers(t *testing.T) {
	t.Parallel()

	var decoded atomic.Int64
	decode := func(_ context.Context, s Sample) (Sample, error) {
		decoded.Add(1)
		return s, nil
	}

	// unbounded repeats with a tiny buffer: producers stay busy until Close
	src, err := New(makeSamples(8), decode, Config{BatchSize: 2, NRepeats: 0, Workers: 3, BufferSize: 2})
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.NoError(t, err)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close()) // idempotent

	// once closed the source reports exhaustion
	_, err = src.Next(context.Background())
	assert.True(t, errors.Is(err, ErrExhausted))
}

func TestCloseWithoutNext(t *testing.T) {
	t.Parallel()

	src, err := New(makeSamples(4), nil, Config{BatchSize: 2, NRepeats: 1})
	require.NoError(t, err)
	require.NoError(t, src.Close())
}

func TestInvalidBatchSize(t *testing.T) {
	t.Parallel()

	_, err := New(makeSamples(4), nil, Config{BatchSize: 0})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestFindSplitFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, p := range []string{
		"a/train_000.json",
		"a/train_001.json",
		"a/val_000.json",
		"b/train_002.json",
		"b/notes.txt",
	} {
		full := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("{}"), 0o644))
	}

	files, err := FindSplitFiles(root, []string{"train"})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(root, "a", "train_000.json"), files[0])

	// all patterns must match
	files, err = FindSplitFiles(root, []string{"train", "002"})
	require.NoError(t, err)
	require.Len(t, files, 1)

	_, err = FindSplitFiles(root, []string{"test"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
