package predict

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camtrap/camtrap-go/internal/checkpoint"
	"github.com/camtrap/camtrap-go/internal/conf"
	"github.com/camtrap/camtrap-go/internal/labels"
	"github.com/camtrap/camtrap-go/internal/model"
	"github.com/camtrap/camtrap-go/internal/reader"
)

// writeModelDir builds a finalized model directory around a trained
// frequency-baseline checkpoint.
func writeModelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	m, err := model.New(model.Options{
		Architecture:        model.BaselineArchitecture,
		Labels:              []string{"species"},
		InitialLearningRate: 1.0,
	})
	require.NoError(t, err)

	batch := reader.Batch{Samples: []reader.Sample{
		{ID: "r1", Labels: map[string][]string{"species": {"cat"}}},
		{ID: "r2", Labels: map[string][]string{"species": {"cat"}}},
		{ID: "r3", Labels: map[string][]string{"species": {"dog"}}},
	}}
	_, err = m.TrainBatch(context.Background(), batch)
	require.NoError(t, err)
	require.NoError(t, m.Save(filepath.Join(dir, checkpoint.FinalBestName)))

	runCfg := &conf.RunConfig{
		Model:               model.BaselineArchitecture,
		Labels:              []string{"species"},
		InitialLearningRate: 1.0,
		ImageProcessing:     conf.DefaultImageProcessing(),
	}
	require.NoError(t, conf.SaveRunConfig(runCfg, filepath.Join(dir, RunConfigName)))

	imgCfg := conf.DefaultImageProcessing()
	imgCfg.IsTraining = true
	require.NoError(t, conf.SaveImageProcessing(&imgCfg, filepath.Join(dir, ImageConfigName)))

	mapping := labels.BuildClassMapping(map[string]labels.LabelMap{
		"r1": {"species": {"cat", "dog"}},
	})
	require.NoError(t, labels.SaveClassMapping(mapping, filepath.Join(dir, ClassMappingsName)))

	return dir
}

func TestLoadAndPredictInventoryEndToEnd(t *testing.T) {
	t.Parallel()

	dir := writeModelDir(t)
	p, err := Load(dir)
	require.NoError(t, err)

	// the loaded image config switches to inference mode
	assert.False(t, p.ImageProcessing().IsTraining)

	src, err := reader.New([]reader.Sample{
		{ID: "u1"},
		{ID: "u2"},
	}, nil, reader.Config{BatchSize: 2, NRepeats: 1, Workers: 1})
	require.NoError(t, err)

	preds, err := p.PredictSource(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, preds, 2)

	// the baseline predicts the trained class frequencies
	dist := preds[0].Labels["species"]
	require.Len(t, dist, 2)
	assert.Equal(t, "cat", dist[0].Label)
	assert.Greater(t, dist[0].Probability, dist[1].Probability)
}

func TestLoadMissingArtifacts(t *testing.T) {
	t.Parallel()

	t.Run("empty dir", func(t *testing.T) {
		t.Parallel()
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("missing checkpoint", func(t *testing.T) {
		t.Parallel()
		dir := writeModelDir(t)
		require.NoError(t, os.Remove(filepath.Join(dir, checkpoint.FinalBestName)))
		_, err := Load(dir)
		assert.Error(t, err)
	})
}

func TestExportJSON(t *testing.T) {
	t.Parallel()

	preds := []model.Prediction{
		{ID: "u1", Labels: map[string][]model.LabelProbability{
			"species": {{Label: "cat", Probability: 0.75}, {Label: "dog", Probability: 0.25}},
		}},
	}

	path := filepath.Join(t.TempDir(), "predictions.json")
	require.NoError(t, ExportJSON(preds, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var restored []model.Prediction
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, preds, restored)
}
