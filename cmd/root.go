package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	invcmd "github.com/camtrap/camtrap-go/cmd/inventory"
	predictcmd "github.com/camtrap/camtrap-go/cmd/predict"
	traincmd "github.com/camtrap/camtrap-go/cmd/train"
	"github.com/camtrap/camtrap-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "camtrap",
		Short: "CamTrap-Go CLI",
		Long:  `Build dataset inventories and train camera-trap image classifiers.`,
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		invcmd.Command(settings),
		traincmd.Command(settings),
		predictcmd.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
}
