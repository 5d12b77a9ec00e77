package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/camtrap/camtrap-go/internal/checkpoint"
	"github.com/camtrap/camtrap-go/internal/errors"
	"github.com/camtrap/camtrap-go/internal/inventory"
	"github.com/camtrap/camtrap-go/internal/monitor"
	"github.com/camtrap/camtrap-go/internal/reader"
)

// CSVLogName is the per-epoch metrics log filename.
const CSVLogName = "training.csv"

// train runs the epoch loop under monitor control.
func (p *Pipeline) train(ctx context.Context) error {
	cfg := p.state.Config
	s := p.settings

	logDir := s.LogOutputDir
	if logDir == "" {
		logDir = s.RunOutputsDir
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("dir", logDir).
			Build()
	}

	csvLog, err := monitor.NewCSVLogger(filepath.Join(logDir, CSVLogName), cfg.ContinueTraining)
	if err != nil {
		return err
	}
	defer csvLog.Close()

	monitors := monitor.Set{
		monitor.NewEarlyStopping(cfg.EarlyStopPatience, 0),
		monitor.NewReduceLROnPlateau(cfg.PlateauPatience),
		monitor.NewCheckpointWriter(s.RunOutputsDir, p.model),
		monitor.NewBestCheckpointWriter(filepath.Join(s.RunOutputsDir, checkpoint.BestName), p.model),
		csvLog,
	}

	bestValLoss := math.Inf(1)
	for epoch := p.state.StartingEpoch; epoch < cfg.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		epochStart := time.Now()

		trainLoss, err := p.runEpoch(ctx, p.trainInv, "train", epoch)
		if err != nil {
			return err
		}
		valLoss, err := p.runEpoch(ctx, p.valInv, "val", epoch)
		if err != nil {
			return err
		}

		signal, err := monitors.OnEpochEnd(monitor.Metrics{
			Epoch:        epoch,
			TrainLoss:    trainLoss,
			ValLoss:      valLoss,
			LearningRate: p.model.LearningRate(),
		})
		if err != nil {
			return err
		}

		p.state.EpochsRun++
		improved := valLoss < bestValLoss
		if improved {
			bestValLoss = valLoss
			p.state.BestValLoss = bestValLoss
		}

		if p.metrics != nil {
			p.metrics.Training.RecordEpoch(p.state.RunID, cfg.Model,
				trainLoss, valLoss, p.model.LearningRate(), time.Since(epochStart).Seconds())
			p.metrics.Training.RecordCheckpoint(p.state.RunID, "epoch")
			if improved {
				p.metrics.Training.RecordCheckpoint(p.state.RunID, "best")
				p.metrics.Training.RecordBestValLoss(p.state.RunID, bestValLoss)
			}
		}

		p.log.Info("epoch complete",
			"epoch", epoch+1,
			"train_loss", trainLoss,
			"val_loss", valLoss,
			"learning_rate", p.model.LearningRate())

		if signal.NewLearningRate != nil {
			p.model.SetLearningRate(*signal.NewLearningRate)
			p.log.Info("reduced learning rate on plateau", "learning_rate", *signal.NewLearningRate)
		}
		if signal.Stop {
			p.state.StoppedEarly = true
			p.log.Info("early stopping triggered", "epoch", epoch+1, "best_val_loss", bestValLoss)
			break
		}
	}

	if p.state.EpochsRun == 0 {
		return errors.Newf("no epochs to run: starting epoch %d, max epochs %d",
			p.state.StartingEpoch, cfg.MaxEpochs).
			Category(errors.CategoryTraining).
			Build()
	}
	return nil
}

// runEpoch streams one full pass of a split through the model. The training
// split is reshuffled each epoch with an epoch-offset seed so runs with the
// same seed replay the same order.
func (p *Pipeline) runEpoch(ctx context.Context, inv *inventory.Inventory, split string, epoch int) (float64, error) {
	cfg := p.state.Config
	training := split == "train"

	seed := cfg.Seed
	if seed != 0 {
		seed += int64(epoch) + 1
	}

	src, err := reader.New(reader.SamplesFromInventory(inv), p.Decode, reader.Config{
		BatchSize:  cfg.BatchSize,
		Shuffle:    training,
		NRepeats:   1,
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		Seed:       seed,
	})
	if err != nil {
		return 0, err
	}
	defer src.Close()

	lossSum := 0.0
	samples := 0
	for {
		batch, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, reader.ErrExhausted) {
				break
			}
			return 0, err
		}

		var loss float64
		if training {
			loss, err = p.model.TrainBatch(ctx, batch)
		} else {
			loss, err = p.model.EvaluateBatch(ctx, batch)
		}
		if err != nil {
			return 0, errors.New(err).
				Category(errors.CategoryTraining).
				Context("split", split).
				Build()
		}

		lossSum += loss * float64(batch.Size())
		samples += batch.Size()
		if p.metrics != nil {
			p.metrics.Training.RecordBatch(p.state.RunID, split, batch.Size())
		}
	}

	if samples == 0 {
		return 0, errors.Newf("%s split produced no samples", split).
			Category(errors.CategoryTraining).
			Build()
	}
	return lossSum / float64(samples), nil
}
