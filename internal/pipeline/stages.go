package pipeline

import (
	"context"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"

	"github.com/camtrap/camtrap-go/internal/checkpoint"
	"github.com/camtrap/camtrap-go/internal/conf"
	"github.com/camtrap/camtrap-go/internal/errors"
	"github.com/camtrap/camtrap-go/internal/imagestats"
	"github.com/camtrap/camtrap-go/internal/inventory"
	"github.com/camtrap/camtrap-go/internal/labels"
	"github.com/camtrap/camtrap-go/internal/model"
	"github.com/camtrap/camtrap-go/internal/predict"
	"github.com/camtrap/camtrap-go/internal/reader"
)

// configure resolves the layered run configuration, loads the split
// inventories and exports the class mapping.
func (p *Pipeline) configure(ctx context.Context) error {
	s := p.settings

	// In continue mode the previous run's persisted image processing is an
	// override layer below explicit user flags.
	var previous *conf.ImageProcessingOverrides
	if s.ContinueTraining {
		prevPath := filepath.Join(s.RunOutputsDir, predict.ImageConfigName)
		if prevCfg, err := conf.LoadImageProcessing(prevPath); err == nil {
			overrides := prevCfg.Overrides()
			previous = &overrides
			p.log.Info("loaded previous run configuration", "path", prevPath)
		}
	}

	cfg, notes, err := conf.ResolveRunConfig(s, p.catalog, previous)
	if err != nil {
		return err
	}
	for _, note := range notes {
		p.log.Warn(note)
	}

	p.trainInv, err = loadSplit(s.TrainPath, s.TrainPattern)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("split", "train").
			Build()
	}
	if p.trainInv.Count() == 0 {
		return errors.Newf("training split is empty").
			Category(errors.CategoryConfiguration).
			Context("path", s.TrainPath).
			Build()
	}

	p.valInv, err = loadSplit(s.ValPath, s.ValPattern)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("split", "val").
			Build()
	}

	if s.TestPath != "" {
		p.testInv, err = loadSplit(s.TestPath, s.TestPattern)
		if err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("split", "test").
				Build()
		}
	}

	mapping, err := p.classMapping()
	if err != nil {
		return err
	}

	if len(cfg.Labels) == 0 {
		for labelType := range mapping {
			cfg.Labels = append(cfg.Labels, labelType)
		}
		sort.Strings(cfg.Labels)
	}
	for _, labelType := range cfg.Labels {
		if mapping.Classes(labelType) == 0 {
			return errors.Newf("label type %q has no classes in the training data", labelType).
				Category(errors.CategoryConfiguration).
				Context("label_type", labelType).
				Build()
		}
	}

	if err := os.MkdirAll(s.RunOutputsDir, 0o755); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("dir", s.RunOutputsDir).
			Build()
	}
	if err := labels.SaveClassMapping(mapping, filepath.Join(s.RunOutputsDir, predict.ClassMappingsName)); err != nil {
		return err
	}

	p.state.Config = cfg
	p.state.Mapping = mapping
	p.state.StartingEpoch = cfg.StartingEpoch
	p.state.TrainRecords = p.trainInv.Count()
	p.state.ValRecords = p.valInv.Count()
	if p.testInv != nil {
		p.state.TestRecords = p.testInv.Count()
	}

	p.log.Info("configuration resolved",
		"model", cfg.Model,
		"labels", cfg.Labels,
		"train_records", p.state.TrainRecords,
		"val_records", p.state.ValRecords,
		"continue", cfg.ContinueTraining,
		"transfer", cfg.TransferLearning)
	return nil
}

// classMapping loads a user-supplied mapping or derives one from the
// training split.
func (p *Pipeline) classMapping() (labels.ClassMapping, error) {
	if p.settings.ClassMappingPath != "" {
		return labels.LoadClassMapping(p.settings.ClassMappingPath)
	}

	labelMaps := make(map[string]labels.LabelMap, p.trainInv.Count())
	for _, id := range p.trainInv.RecordIDs() {
		record, err := p.trainInv.Record(id)
		if err != nil {
			continue
		}
		labelMaps[id] = record.Labels
	}
	return labels.BuildClassMapping(labelMaps), nil
}

// stats computes channel statistics over a bounded training sample and
// persists the effective image-processing artifact.
func (p *Pipeline) stats(ctx context.Context) error {
	cfg := p.state.Config

	if p.trainInv.Count() == 0 {
		return errors.Newf("training split is empty, cannot compute statistics").
			Category(errors.CategoryConfiguration).
			Build()
	}

	paths := p.sampleImagePaths(cfg.StatsSampleCap, cfg.Seed)
	imageCfg := cfg.ImageProcessing
	if len(paths) == 0 {
		p.log.Warn("training records carry no image files, keeping catalog normalization constants")
	} else {
		stats, err := imagestats.Compute(ctx, paths)
		if err != nil {
			return err
		}
		imageCfg.ImageMeans = stats.Means
		imageCfg.ImageStdevs = stats.Stdevs
		p.log.Info("computed channel statistics",
			"sampled_images", len(paths),
			"means", stats.Means,
			"stdevs", stats.Stdevs)
	}

	imageCfg.IsTraining = true
	if err := conf.SaveImageProcessing(&imageCfg, filepath.Join(p.settings.RunOutputsDir, predict.ImageConfigName)); err != nil {
		return err
	}

	p.imageCfg = imageCfg
	p.state.Config.ImageProcessing = imageCfg
	return nil
}

// sampleImagePaths picks up to limit records uniformly without replacement
// and returns their image paths.
func (p *Pipeline) sampleImagePaths(limit int, seed int64) []string {
	ids := p.trainInv.RecordIDs()
	if limit > 0 && len(ids) > limit {
		rng := newRand(seed)
		for i := range limit {
			j := i + rng.IntN(len(ids)-i)
			ids[i], ids[j] = ids[j], ids[i]
		}
		ids = ids[:limit]
	}

	var paths []string
	for _, id := range ids {
		record, err := p.trainInv.Record(id)
		if err != nil {
			continue
		}
		paths = append(paths, record.Images...)
	}
	return paths
}

// prepare sizes the epoch, resolves the checkpoint to load and constructs
// the model.
func (p *Pipeline) prepare(ctx context.Context) error {
	cfg := p.state.Config
	s := p.settings

	p.state.BatchesPerEpoch = (p.state.TrainRecords + cfg.BatchSize - 1) / cfg.BatchSize

	var ckptPath string
	if cfg.ContinueTraining || cfg.TransferLearning {
		ref := cfg.ModelToLoad
		if ref == "" {
			if cfg.TransferLearning {
				return errors.Newf("transfer learning requires a model to load").
					Category(errors.CategoryConfiguration).
					Build()
			}
			ref = s.RunOutputsDir
		}
		resolved, err := checkpoint.Resolve(ref)
		if err != nil {
			return err
		}
		ckptPath = resolved
		p.log.Info("resolved checkpoint to load", "checkpoint", ckptPath)
	}
	p.state.ResolvedCheckpoint = ckptPath

	classesPerLabel := make(map[string]int, len(cfg.Labels))
	for _, labelType := range cfg.Labels {
		classesPerLabel[labelType] = p.state.Mapping.Classes(labelType)
	}

	m, err := model.New(model.Options{
		Architecture: cfg.Model,
		InputShape: [3]int{
			cfg.ImageProcessing.OutputHeight,
			cfg.ImageProcessing.OutputWidth,
			3,
		},
		Labels:               cfg.Labels,
		ClassesPerLabel:      classesPerLabel,
		InitialLearningRate:  cfg.InitialLearningRate,
		Optimizer:            cfg.Optimizer,
		LossWeights:          cfg.LabelLossWeights,
		ContinueTraining:     cfg.ContinueTraining,
		RebuildModel:         cfg.RebuildModel,
		TransferLearning:     cfg.TransferLearning,
		TransferLearningType: cfg.TransferLearningType,
		CheckpointPath:       ckptPath,
	})
	if err != nil {
		return err
	}
	p.model = m

	p.log.Info("prepared training run",
		"batches_per_epoch", p.state.BatchesPerEpoch,
		"starting_epoch", p.state.StartingEpoch,
		"max_epochs", cfg.MaxEpochs)
	return nil
}

// finalize promotes the per-run best checkpoint to the stable model save
// directory alongside the artifacts prediction needs.
func (p *Pipeline) finalize(ctx context.Context) error {
	s := p.settings

	srcPath := filepath.Join(s.RunOutputsDir, checkpoint.BestName)
	if _, err := os.Stat(srcPath); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("checkpoint", srcPath).
			Context("hint", "no best checkpoint was produced by the run").
			Build()
	}

	if err := os.MkdirAll(s.ModelSaveDir, 0o755); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("dir", s.ModelSaveDir).
			Build()
	}

	bestPath := filepath.Join(s.ModelSaveDir, checkpoint.FinalBestName)
	if err := copyFile(srcPath, bestPath); err != nil {
		return err
	}

	if err := conf.SaveRunConfig(p.state.Config, filepath.Join(s.ModelSaveDir, predict.RunConfigName)); err != nil {
		return err
	}

	inferenceCfg := p.imageCfg
	inferenceCfg.IsTraining = false
	if err := conf.SaveImageProcessing(&inferenceCfg, filepath.Join(s.ModelSaveDir, predict.ImageConfigName)); err != nil {
		return err
	}

	if err := labels.SaveClassMapping(p.state.Mapping, filepath.Join(s.ModelSaveDir, predict.ClassMappingsName)); err != nil {
		return err
	}

	p.state.BestModelPath = bestPath
	p.log.Info("finalized best model", "path", bestPath)
	return nil
}

// predictStage predicts the test split with the finalized model. A failure
// here is recorded on the run state but does not fail the run; the trained
// model already exists.
func (p *Pipeline) predictStage(ctx context.Context) error {
	if p.testInv == nil {
		p.log.Debug("no test split configured, skipping prediction")
		return nil
	}

	err := p.runPrediction(ctx)
	if p.metrics != nil {
		p.metrics.Training.RecordPrediction(p.state.RunID, err)
	}
	if err != nil {
		p.state.PredictionError = err.Error()
		p.log.Error("prediction stage failed, run is still finalized", "error", err)
	}
	return nil
}

func (p *Pipeline) runPrediction(ctx context.Context) error {
	cfg := p.state.Config

	predictor, err := predict.Load(p.settings.ModelSaveDir)
	if err != nil {
		return err
	}

	preds, err := predictor.PredictInventory(ctx, p.testInv, cfg.BatchSize, cfg.Workers)
	if err != nil {
		return err
	}

	outPath := filepath.Join(p.settings.RunOutputsDir, "predictions.json")
	if err := predict.ExportJSON(preds, outPath); err != nil {
		return err
	}

	p.state.PredictionsPath = outPath
	p.log.Info("exported test predictions", "path", outPath, "records", len(preds))
	return nil
}

// loadSplit finds and merges the snapshot files of one split.
func loadSplit(root string, patterns []string) (*inventory.Inventory, error) {
	files, err := reader.FindSplitFiles(root, patterns)
	if err != nil {
		return nil, err
	}
	return inventory.LoadJSONFiles(files...)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(src, 0).
			Build()
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(dst, 0).
			Build()
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(dst, 0).
			Build()
	}
	return out.Close()
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}
