// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "CamTrap-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "camtrap.log")
	viper.SetDefault("main.log.rotation", "daily")
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("train.trainpattern", []string{"train"})
	viper.SetDefault("train.valpattern", []string{"val"})
	viper.SetDefault("train.testpattern", []string{"test"})

	viper.SetDefault("train.batchsize", 128)
	viper.SetDefault("train.workers", 4)
	viper.SetDefault("train.buffersize", 32768)
	viper.SetDefault("train.maxepochs", 70)
	viper.SetDefault("train.startingepoch", 0)

	viper.SetDefault("train.initiallearningrate", 0.01)
	viper.SetDefault("train.optimizer", "sgd")
	viper.SetDefault("train.earlystoppatience", 3)
	viper.SetDefault("train.plateaupatience", 2)

	viper.SetDefault("train.transferlearningtype", "last_layer")
	viper.SetDefault("train.statssamplecap", 4096)
	viper.SetDefault("train.seed", 0)

	viper.SetDefault("inventory.sourcetype", "json")
	viper.SetDefault("inventory.samplefraction", 1.0)
	viper.SetDefault("inventory.seed", 0)

	viper.SetDefault("predict.sourcetype", "json")
	viper.SetDefault("predict.outputpath", "predictions.json")
	viper.SetDefault("predict.batchsize", 128)
	viper.SetDefault("predict.workers", 4)
}
