package predict

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/camtrap/camtrap-go/internal/conf"
	"github.com/camtrap/camtrap-go/internal/inventory"
	"github.com/camtrap/camtrap-go/internal/logging"
	"github.com/camtrap/camtrap-go/internal/predict"
)

// Command creates the predict command for classifying records with a
// finalized model.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Classify records with a finalized model",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &settings.Predict

			var inv *inventory.Inventory
			var err error
			if s.SourceType == "snapshot" {
				inv, err = inventory.LoadJSON(s.SourcePath)
			} else {
				inv, err = inventory.CreateFromSource(cmd.Context(), s.SourceType, s.SourcePath)
			}
			if err != nil {
				return err
			}

			predictor, err := predict.Load(s.ModelDir)
			if err != nil {
				return err
			}

			preds, err := predictor.PredictInventory(cmd.Context(), inv, s.BatchSize, s.Workers)
			if err != nil {
				return err
			}
			if err := predict.ExportJSON(preds, s.OutputPath); err != nil {
				return err
			}

			logging.ForService("predict-cmd").Info("predictions exported",
				"records", len(preds), "path", s.OutputPath)
			return nil
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

// setupFlags configures flags specific to the predict command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	s := &settings.Predict
	cmd.Flags().StringVarP(&s.ModelDir, "model-dir", "m", "", "Finalized model directory")
	cmd.Flags().StringVarP(&s.SourceType, "source-type", "t", viper.GetString("predict.sourcetype"), "Record source: json, image_dir, csv or snapshot")
	cmd.Flags().StringVarP(&s.SourcePath, "source", "s", "", "Source file or directory")
	cmd.Flags().StringVarP(&s.OutputPath, "output", "o", viper.GetString("predict.outputpath"), "Predictions JSON destination")
	cmd.Flags().IntVar(&s.BatchSize, "batch-size", viper.GetInt("predict.batchsize"), "Samples per batch")
	cmd.Flags().IntVar(&s.Workers, "workers", viper.GetInt("predict.workers"), "Decode worker count")
	_ = cmd.MarkFlagRequired("model-dir")
}
