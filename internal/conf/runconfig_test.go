package conf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camtrap/camtrap-go/internal/errors"
)

func baseTrainSettings() *TrainSettings {
	return &TrainSettings{
		Model:             "small_cnn",
		Labels:            []string{"species"},
		BatchSize:         128,
		Workers:           2,
		BufferSize:        512,
		MaxEpochs:         10,
		Optimizer:         "sgd",
		EarlyStopPatience: 3,
		PlateauPatience:   2,
		StatsSampleCap:    4096,
	}
}

func TestResolveRunConfigModelDefaults(t *testing.T) {
	t.Parallel()

	cfg, notes, err := ResolveRunConfig(baseTrainSettings(), DefaultModelCatalog(), nil)
	require.NoError(t, err)
	assert.Empty(t, notes)

	// small_cnn profile overrides the built-in defaults
	assert.Equal(t, 150, cfg.ImageProcessing.OutputWidth)
	assert.Equal(t, 150, cfg.ImageProcessing.OutputHeight)
	assert.Equal(t, ColorAugmentationLittle, cfg.ImageProcessing.ColorAugmentation)
	assert.Equal(t, 0.01, cfg.InitialLearningRate)
	assert.Equal(t, TransferLastLayer, cfg.TransferLearningType)
}

func TestResolveRunConfigUnknownModel(t *testing.T) {
	t.Parallel()

	s := baseTrainSettings()
	s.Model = "does_not_exist"
	_, _, err := ResolveRunConfig(s, DefaultModelCatalog(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestResolveRunConfigGrayscaleStackingRule(t *testing.T) {
	t.Parallel()

	s := baseTrainSettings()
	s.ImageOverrides = ImageProcessingOverrides{
		ImageChoiceForSets: strptr(ImageChoiceGrayscaleStacking),
	}

	cfg, notes, err := ResolveRunConfig(s, DefaultModelCatalog(), nil)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, ColorAugmentationNone, cfg.ImageProcessing.ColorAugmentation)
}

func TestResolveRunConfigPreviousRunLayer(t *testing.T) {
	t.Parallel()

	prevCfg := DefaultImageProcessing()
	prevCfg.OutputWidth = 96
	prevCfg.OutputHeight = 96
	prev := prevCfg.Overrides()

	s := baseTrainSettings()
	s.ContinueTraining = true

	cfg, _, err := ResolveRunConfig(s, DefaultModelCatalog(), &prev)
	require.NoError(t, err)
	// the previous run's persisted shape wins over the model profile
	assert.Equal(t, 96, cfg.ImageProcessing.OutputWidth)

	// but an explicit user override still wins over the previous run
	s.ImageOverrides = ImageProcessingOverrides{OutputWidth: intptr(128)}
	cfg, _, err = ResolveRunConfig(s, DefaultModelCatalog(), &prev)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.ImageProcessing.OutputWidth)
}

func TestResolveRunConfigMutuallyExclusiveModes(t *testing.T) {
	t.Parallel()

	s := baseTrainSettings()
	s.TransferLearning = true
	s.ContinueTraining = true
	_, _, err := ResolveRunConfig(s, DefaultModelCatalog(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestImageProcessingRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := DefaultImageProcessing()
	cfg.ImageMeans = []float64{0.4851, 0.4621, 0.4201}
	cfg.ImageStdevs = []float64{0.2291, 0.2241, 0.2251}

	path := filepath.Join(t.TempDir(), "image_processing.json")
	require.NoError(t, SaveImageProcessing(&cfg, path))

	loaded, err := LoadImageProcessing(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestLoadModelCatalogOverridesBuiltin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	yamlBody := []byte(`
small_cnn:
  input_width: 96
  input_height: 96
  initial_learning_rate: 0.02
custom_net:
  input_width: 64
  input_height: 64
  initial_learning_rate: 0.1
`)
	require.NoError(t, writeFile(path, yamlBody))

	catalog, err := LoadModelCatalog(path)
	require.NoError(t, err)

	small, ok := catalog.Profile("small_cnn")
	require.True(t, ok)
	assert.Equal(t, 96, small.InputWidth)

	custom, ok := catalog.Profile("custom_net")
	require.True(t, ok)
	assert.Equal(t, 0.1, custom.InitialLearningRate)

	// built-in entries not mentioned in the file survive
	_, ok = catalog.Profile("resnet50")
	assert.True(t, ok)
}
