package conf

import (
	"encoding/json"
	"os"

	"github.com/camtrap/camtrap-go/internal/errors"
)

// Transfer learning styles.
const (
	TransferLastLayer = "last_layer"
	TransferAllLayers = "all_layers"
)

// RunConfig is the fully resolved configuration of one training run,
// produced by the CONFIGURE stage. Identical inputs always resolve to an
// identical RunConfig.
type RunConfig struct {
	Model  string   `json:"model"`
	Labels []string `json:"labels"`

	BatchSize     int `json:"batch_size"`
	Workers       int `json:"workers"`
	BufferSize    int `json:"buffer_size"`
	MaxEpochs     int `json:"max_epochs"`
	StartingEpoch int `json:"starting_epoch"`

	InitialLearningRate float64   `json:"initial_learning_rate"`
	Optimizer           string    `json:"optimizer"`
	LabelLossWeights    []float64 `json:"label_loss_weights,omitempty"`
	EarlyStopPatience   int       `json:"early_stop_patience"`
	PlateauPatience     int       `json:"plateau_patience"`

	TransferLearning     bool   `json:"transfer_learning"`
	TransferLearningType string `json:"transfer_learning_type"`
	ContinueTraining     bool   `json:"continue_training"`
	RebuildModel         bool   `json:"rebuild_model"`
	ModelToLoad          string `json:"model_to_load,omitempty"`

	Seed           int64 `json:"seed"`
	StatsSampleCap int   `json:"stats_sample_cap"`

	ImageProcessing ImageProcessingConfig `json:"image_processing"`
}

// ResolveRunConfig merges the four configuration layers in ascending
// priority: built-in defaults, model-specific defaults, a previous run's
// persisted configuration (continue mode only), and explicit user overrides.
// Later layers win key by key. Returned notes describe forced adjustments
// and must be logged by the caller.
func ResolveRunConfig(s *TrainSettings, catalog ModelCatalog, previous *ImageProcessingOverrides) (*RunConfig, []string, error) {
	profile, ok := catalog.Profile(s.Model)
	if !ok {
		return nil, nil, errors.Newf("model %q not found in model catalog", s.Model).
			Category(errors.CategoryConfiguration).
			Context("model", s.Model).
			Build()
	}

	layers := []ImageProcessingOverrides{profile.ImageOverrides()}
	if previous != nil {
		layers = append(layers, *previous)
	}
	layers = append(layers, s.ImageOverrides)

	effective, notes := MergeImageProcessing(DefaultImageProcessing(), layers...)
	if err := effective.Validate(); err != nil {
		return nil, nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Build()
	}

	lr := profile.InitialLearningRate
	if s.InitialLearningRate > 0 {
		lr = s.InitialLearningRate
	}

	transferType := s.TransferLearningType
	if transferType == "" {
		transferType = TransferLastLayer
	}
	if transferType != TransferLastLayer && transferType != TransferAllLayers {
		return nil, nil, errors.Newf("unsupported transfer_learning_type %q", transferType).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if s.TransferLearning && s.ContinueTraining {
		return nil, nil, errors.Newf("transfer_learning and continue_training are mutually exclusive").
			Category(errors.CategoryConfiguration).
			Build()
	}

	cfg := &RunConfig{
		Model:                s.Model,
		Labels:               append([]string(nil), s.Labels...),
		BatchSize:            s.BatchSize,
		Workers:              s.Workers,
		BufferSize:           s.BufferSize,
		MaxEpochs:            s.MaxEpochs,
		StartingEpoch:        s.StartingEpoch,
		InitialLearningRate:  lr,
		Optimizer:            s.Optimizer,
		LabelLossWeights:     append([]float64(nil), s.LabelLossWeights...),
		EarlyStopPatience:    s.EarlyStopPatience,
		PlateauPatience:      s.PlateauPatience,
		TransferLearning:     s.TransferLearning,
		TransferLearningType: transferType,
		ContinueTraining:     s.ContinueTraining,
		RebuildModel:         s.RebuildModel,
		ModelToLoad:          s.ModelToLoad,
		Seed:                 s.Seed,
		StatsSampleCap:       s.StatsSampleCap,
		ImageProcessing:      effective,
	}
	return cfg, notes, nil
}

// LoadRunConfig reads a persisted run_config.json artifact.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileParsing).
			FileContext(path, 0).
			Build()
	}
	return &cfg, nil
}

// SaveRunConfig persists the resolved run configuration so a later run can
// continue from it and the predictor can reconstruct the model.
func SaveRunConfig(cfg *RunConfig, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	return nil
}

// LoadImageProcessing reads a persisted image_processing.json artifact.
func LoadImageProcessing(path string) (*ImageProcessingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	var cfg ImageProcessingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileParsing).
			FileContext(path, 0).
			Build()
	}
	return &cfg, nil
}

// SaveImageProcessing persists the effective image-processing configuration
// together with the computed channel statistics.
func SaveImageProcessing(cfg *ImageProcessingConfig, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	return nil
}
