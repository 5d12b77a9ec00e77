package train

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/camtrap/camtrap-go/internal/conf"
	"github.com/camtrap/camtrap-go/internal/logging"
	"github.com/camtrap/camtrap-go/internal/observability"
	"github.com/camtrap/camtrap-go/internal/pipeline"
)

// imageFlags captures optional image-processing flags. Only flags the user
// actually changed become overrides; unset flags must not shadow model
// defaults.
type imageFlags struct {
	colorAugmentation string
	preserveAspect    bool
	cropFactor        float64
	zoomFactor        float64
	rotateByAngle     int
	flipHorizontally  bool
	imageChoice       string
	outputWidth       int
	outputHeight      int
}

// Command creates the train command for running a full training pipeline.
func Command(settings *conf.Settings) *cobra.Command {
	var img imageFlags

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a classifier on inventory splits",
		Long: `Run the full training pipeline: resolve configuration, compute image
statistics, train under monitor control and finalize the best model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyImageOverrides(cmd, &img, &settings.Train)

			catalog, err := conf.LoadModelCatalog(settings.Train.ModelCatalogPath)
			if err != nil {
				return err
			}

			metrics, err := observability.NewMetrics()
			if err != nil {
				return err
			}

			p := pipeline.New(&settings.Train, catalog, metrics)
			state, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}

			log := logging.ForService("train-cmd")
			log.Info("training finished",
				"run_id", state.RunID,
				"epochs_run", state.EpochsRun,
				"best_val_loss", state.BestValLoss,
				"stopped_early", state.StoppedEarly,
				"best_model", state.BestModelPath)
			if state.PredictionError != "" {
				log.Warn("test prediction failed", "error", state.PredictionError)
			}
			return nil
		},
	}

	setupFlags(cmd, settings, &img)
	return cmd
}

// setupFlags configures flags specific to the train command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings, img *imageFlags) {
	s := &settings.Train

	cmd.Flags().StringVar(&s.TrainPath, "train-path", "", "Directory containing training split files")
	cmd.Flags().StringSliceVar(&s.TrainPattern, "train-pattern", viper.GetStringSlice("train.trainpattern"), "Filename patterns of training split files")
	cmd.Flags().StringVar(&s.ValPath, "val-path", "", "Directory containing validation split files")
	cmd.Flags().StringSliceVar(&s.ValPattern, "val-pattern", viper.GetStringSlice("train.valpattern"), "Filename patterns of validation split files")
	cmd.Flags().StringVar(&s.TestPath, "test-path", "", "Optional directory with test split files, enables prediction")
	cmd.Flags().StringSliceVar(&s.TestPattern, "test-pattern", viper.GetStringSlice("train.testpattern"), "Filename patterns of test split files")

	cmd.Flags().StringVar(&s.ClassMappingPath, "class-mapping", "", "Optional class mapping JSON, derived from training data when empty")
	cmd.Flags().StringVarP(&s.RunOutputsDir, "run-outputs", "o", "", "Directory for run artifacts (checkpoints, logs)")
	cmd.Flags().StringVar(&s.ModelSaveDir, "model-save-dir", "", "Stable output directory for the finalized best model")
	cmd.Flags().StringVar(&s.LogOutputDir, "log-dir", "", "Directory for the epoch CSV log, defaults to the run outputs")

	cmd.Flags().StringVarP(&s.Model, "model", "m", "", "Model architecture name from the catalog")
	cmd.Flags().StringVar(&s.ModelCatalogPath, "model-catalog", "", "Optional YAML model catalog merged over the built-ins")
	cmd.Flags().StringSliceVar(&s.Labels, "labels", nil, "Label types to train on, defaults to all observed types")
	cmd.Flags().Float64SliceVar(&s.LabelLossWeights, "label-loss-weights", nil, "Per-label-type loss weights")

	cmd.Flags().IntVar(&s.BatchSize, "batch-size", viper.GetInt("train.batchsize"), "Samples per batch")
	cmd.Flags().IntVar(&s.Workers, "workers", viper.GetInt("train.workers"), "Decode worker count")
	cmd.Flags().IntVar(&s.BufferSize, "buffer-size", viper.GetInt("train.buffersize"), "Bounded buffer capacity between decode workers and the batcher")
	cmd.Flags().IntVar(&s.MaxEpochs, "max-epochs", viper.GetInt("train.maxepochs"), "Maximum number of epochs")
	cmd.Flags().IntVar(&s.StartingEpoch, "starting-epoch", viper.GetInt("train.startingepoch"), "First epoch index, used when continuing a run")

	cmd.Flags().Float64Var(&s.InitialLearningRate, "learning-rate", 0, "Initial learning rate, model default when zero")
	cmd.Flags().StringVar(&s.Optimizer, "optimizer", viper.GetString("train.optimizer"), "Optimizer name")
	cmd.Flags().IntVar(&s.EarlyStopPatience, "early-stop-patience", viper.GetInt("train.earlystoppatience"), "Epochs without improvement before stopping")
	cmd.Flags().IntVar(&s.PlateauPatience, "plateau-patience", viper.GetInt("train.plateaupatience"), "Epochs without improvement before reducing the learning rate")

	cmd.Flags().BoolVar(&s.TransferLearning, "transfer-learning", false, "Load a checkpoint and retrain the head")
	cmd.Flags().StringVar(&s.TransferLearningType, "transfer-learning-type", viper.GetString("train.transferlearningtype"), "Transfer style: last_layer or all_layers")
	cmd.Flags().BoolVar(&s.ContinueTraining, "continue-training", false, "Resume the most recent checkpoint of a previous run")
	cmd.Flags().BoolVar(&s.RebuildModel, "rebuild-model", false, "Keep weights but rebuild the training state")
	cmd.Flags().StringVar(&s.ModelToLoad, "model-to-load", "", "Checkpoint file or directory to load")

	cmd.Flags().Int64Var(&s.Seed, "seed", viper.GetInt64("train.seed"), "Seed for shuffling and sampling, 0 means time-based")
	cmd.Flags().IntVar(&s.StatsSampleCap, "stats-sample-cap", viper.GetInt("train.statssamplecap"), "Max records sampled for image statistics")

	cmd.Flags().StringVar(&img.colorAugmentation, "color-augmentation", "", "Color augmentation mode: none, little, full_fast, full_randomized")
	cmd.Flags().BoolVar(&img.preserveAspect, "preserve-aspect-ratio", false, "Preserve aspect ratio when resizing")
	cmd.Flags().Float64Var(&img.cropFactor, "crop-factor", 0, "Random crop factor in [0, 0.5]")
	cmd.Flags().Float64Var(&img.zoomFactor, "zoom-factor", 0, "Random zoom factor in [0, 0.5]")
	cmd.Flags().IntVar(&img.rotateByAngle, "rotate-by-angle", 0, "Max random rotation in degrees")
	cmd.Flags().BoolVar(&img.flipHorizontally, "flip-horizontally", false, "Randomly flip images horizontally")
	cmd.Flags().StringVar(&img.imageChoice, "image-choice-for-sets", "", "Multi-image strategy: random or grayscale_stacking")
	cmd.Flags().IntVar(&img.outputWidth, "output-width", 0, "Model input width")
	cmd.Flags().IntVar(&img.outputHeight, "output-height", 0, "Model input height")
}

// applyImageOverrides turns changed image flags into the explicit user
// override layer.
func applyImageOverrides(cmd *cobra.Command, img *imageFlags, s *conf.TrainSettings) {
	o := &s.ImageOverrides
	if cmd.Flags().Changed("color-augmentation") {
		v := img.colorAugmentation
		if v == "none" {
			v = conf.ColorAugmentationNone
		}
		o.ColorAugmentation = &v
	}
	if cmd.Flags().Changed("preserve-aspect-ratio") {
		o.PreserveAspectRatio = &img.preserveAspect
	}
	if cmd.Flags().Changed("crop-factor") {
		o.CropFactor = &img.cropFactor
	}
	if cmd.Flags().Changed("zoom-factor") {
		o.ZoomFactor = &img.zoomFactor
	}
	if cmd.Flags().Changed("rotate-by-angle") {
		o.RotateByAngle = &img.rotateByAngle
	}
	if cmd.Flags().Changed("flip-horizontally") {
		o.RandomlyFlipHorizontally = &img.flipHorizontally
	}
	if cmd.Flags().Changed("image-choice-for-sets") {
		o.ImageChoiceForSets = &img.imageChoice
	}
	if cmd.Flags().Changed("output-width") {
		o.OutputWidth = &img.outputWidth
	}
	if cmd.Flags().Changed("output-height") {
		o.OutputHeight = &img.outputHeight
	}
}
