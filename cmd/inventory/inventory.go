package inventory

import (
	"encoding/json"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/camtrap/camtrap-go/internal/conf"
	"github.com/camtrap/camtrap-go/internal/inventory"
	"github.com/camtrap/camtrap-go/internal/logging"
)

// SnapshotSource selects loading an exported inventory snapshot instead of
// running an importer.
const SnapshotSource = "snapshot"

// Command creates the inventory command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Build and inspect dataset inventories",
	}

	setupFlags(cmd, settings)
	cmd.AddCommand(
		createCommand(settings),
		statsCommand(settings),
		sampleCommand(settings),
		exportCommand(settings),
	)
	return cmd
}

// setupFlags configures flags shared by all inventory subcommands.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	s := &settings.Inventory
	cmd.PersistentFlags().StringVarP(&s.SourceType, "source-type", "t", viper.GetString("inventory.sourcetype"), "Record source: json, image_dir, csv or snapshot")
	cmd.PersistentFlags().StringVarP(&s.SourcePath, "source", "s", "", "Source file or directory")
}

func createCommand(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Import a record source and export the filtered inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := load(cmd, settings)
			if err != nil {
				return err
			}
			return inv.ExportJSON(settings.Inventory.ExportPath)
		},
	}
	cmd.Flags().StringVarP(&settings.Inventory.ExportPath, "export", "e", "inventory.json", "Inventory snapshot destination")
	return cmd
}

func statsCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print label statistics for a record source",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := load(cmd, settings)
			if err != nil {
				return err
			}

			stats := inv.ComputeLabelStatistics()
			stats.LogSummary(logging.ForService("inventory-cmd"))

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func sampleCommand(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Sample a record source down to a fraction and export it",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &settings.Inventory

			inv, err := load(cmd, settings)
			if err != nil {
				return err
			}

			var rng *rand.Rand
			if s.Seed != 0 {
				rng = rand.New(rand.NewPCG(uint64(s.Seed), uint64(s.Seed)))
			}
			if err := inv.SampleToFraction(s.SampleFraction, rng); err != nil {
				return err
			}
			return inv.ExportJSON(s.ExportPath)
		},
	}
	cmd.Flags().Float64VarP(&settings.Inventory.SampleFraction, "fraction", "f", viper.GetFloat64("inventory.samplefraction"), "Fraction of records to keep, in [0, 1]")
	cmd.Flags().Int64Var(&settings.Inventory.Seed, "seed", viper.GetInt64("inventory.seed"), "Sampling seed, 0 means time-based")
	cmd.Flags().StringVarP(&settings.Inventory.ExportPath, "export", "e", "inventory_sampled.json", "Sampled snapshot destination")
	return cmd
}

func exportCommand(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Re-export a record source as a normalized inventory snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := load(cmd, settings)
			if err != nil {
				return err
			}
			return inv.ExportJSON(settings.Inventory.ExportPath)
		},
	}
	cmd.Flags().StringVarP(&settings.Inventory.ExportPath, "export", "e", "inventory.json", "Snapshot destination")
	return cmd
}

// load builds the inventory from the configured source.
func load(cmd *cobra.Command, settings *conf.Settings) (*inventory.Inventory, error) {
	s := &settings.Inventory
	if s.SourceType == SnapshotSource {
		return inventory.LoadJSON(s.SourcePath)
	}
	return inventory.CreateFromSource(cmd.Context(), s.SourceType, s.SourcePath)
}
