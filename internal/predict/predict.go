// Package predict loads a finalized model directory and produces structured
// predictions for unseen records.
package predict

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/camtrap/camtrap-go/internal/checkpoint"
	"github.com/camtrap/camtrap-go/internal/conf"
	"github.com/camtrap/camtrap-go/internal/errors"
	"github.com/camtrap/camtrap-go/internal/inventory"
	"github.com/camtrap/camtrap-go/internal/labels"
	"github.com/camtrap/camtrap-go/internal/logging"
	"github.com/camtrap/camtrap-go/internal/model"
	"github.com/camtrap/camtrap-go/internal/reader"
)

// Artifact filenames inside a finalized model directory.
const (
	RunConfigName     = "run_config.json"
	ImageConfigName   = "image_processing.json"
	ClassMappingsName = "label_mappings.json"
)

// Predictor wraps a loaded model together with the run artifacts it was
// finalized with.
type Predictor struct {
	model    model.Model
	runCfg   *conf.RunConfig
	imageCfg *conf.ImageProcessingConfig
	mapping  labels.ClassMapping
	log      *slog.Logger
}

// Load opens a finalized model directory: the stable best-model checkpoint
// plus the run configuration, image-processing and class-mapping side files
// written at finalization.
func Load(modelDir string) (*Predictor, error) {
	runCfg, err := conf.LoadRunConfig(filepath.Join(modelDir, RunConfigName))
	if err != nil {
		return nil, err
	}

	imageCfg, err := conf.LoadImageProcessing(filepath.Join(modelDir, ImageConfigName))
	if err != nil {
		return nil, err
	}

	mapping, err := labels.LoadClassMapping(filepath.Join(modelDir, ClassMappingsName))
	if err != nil {
		return nil, err
	}

	ckptPath := filepath.Join(modelDir, checkpoint.FinalBestName)
	if _, err := os.Stat(ckptPath); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryModelLoad).
			Context("model_dir", modelDir).
			Build()
	}

	classesPerLabel := make(map[string]int, len(runCfg.Labels))
	for _, labelType := range runCfg.Labels {
		classesPerLabel[labelType] = mapping.Classes(labelType)
	}

	m, err := model.New(model.Options{
		Architecture: runCfg.Model,
		InputShape: [3]int{
			runCfg.ImageProcessing.OutputHeight,
			runCfg.ImageProcessing.OutputWidth,
			3,
		},
		Labels:              runCfg.Labels,
		ClassesPerLabel:     classesPerLabel,
		InitialLearningRate: runCfg.InitialLearningRate,
		Optimizer:           runCfg.Optimizer,
		ContinueTraining:    true,
		CheckpointPath:      ckptPath,
	})
	if err != nil {
		return nil, err
	}

	return &Predictor{
		model:    m,
		runCfg:   runCfg,
		imageCfg: imageCfg,
		mapping:  mapping,
		log:      logging.ForService("predict"),
	}, nil
}

// RunConfig returns the run configuration the model was finalized with.
func (p *Predictor) RunConfig() *conf.RunConfig { return p.runCfg }

// ImageProcessing returns the image-processing configuration the model was
// finalized with. Prediction always runs it with augmentation off.
func (p *Predictor) ImageProcessing() conf.ImageProcessingConfig {
	cfg := *p.imageCfg
	cfg.IsTraining = false
	return cfg
}

// PredictSource drains a record source and returns predictions for every
// sample, in consumption order.
func (p *Predictor) PredictSource(ctx context.Context, src *reader.Source) ([]model.Prediction, error) {
	defer src.Close()

	var out []model.Prediction
	for {
		batch, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, reader.ErrExhausted) {
				break
			}
			return nil, err
		}
		preds, err := p.model.PredictBatch(ctx, batch)
		if err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryPrediction).
				Build()
		}
		out = append(out, preds...)
	}

	p.log.Info("prediction complete", "records", len(out))
	return out, nil
}

// PredictInventory predicts every record of an inventory in a single
// non-shuffled pass.
func (p *Predictor) PredictInventory(ctx context.Context, inv *inventory.Inventory, batchSize, workers int) ([]model.Prediction, error) {
	src, err := reader.New(reader.SamplesFromInventory(inv), nil, reader.Config{
		BatchSize: batchSize,
		NRepeats:  1,
		Workers:   workers,
	})
	if err != nil {
		return nil, err
	}
	return p.PredictSource(ctx, src)
}

// ExportJSON writes predictions as an indented JSON array.
func ExportJSON(preds []model.Prediction, path string) error {
	data, err := json.MarshalIndent(preds, "", "  ")
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
