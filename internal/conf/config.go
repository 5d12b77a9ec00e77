// Package conf handles application settings and the layered run configuration.
package conf

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool   // true to enable this log
	Path     string // path to log file
	Rotation string // rotation policy: daily, weekly or size
	MaxSize  int64  // max size in bytes for size rotation
}

// MainSettings contains main application settings
type MainSettings struct {
	Name string    // name of the node
	Log  LogConfig // run log settings
}

// TrainSettings contains all inputs of one training invocation. Optional
// image-processing values are carried as an override layer so that unset
// flags do not shadow model defaults.
type TrainSettings struct {
	TrainPath    string   // directory containing training split files
	TrainPattern []string // filename patterns that training files must match
	ValPath      string
	ValPattern   []string
	TestPath     string // optional, enables the prediction stage
	TestPattern  []string

	ClassMappingPath string // label type -> label value -> numeric code JSON
	RunOutputsDir    string // per-run artifacts (checkpoints, logs, side files)
	ModelSaveDir     string // stable output location for the best model
	LogOutputDir     string // defaults to RunOutputsDir

	Model            string   // model architecture name from the catalog
	ModelCatalogPath string   // optional YAML catalog merged over the built-ins
	Labels           []string // label types to train on
	LabelLossWeights []float64

	BatchSize     int
	Workers       int // decode workers feeding the batch buffer
	BufferSize    int // shuffle buffer capacity
	MaxEpochs     int
	StartingEpoch int

	InitialLearningRate float64
	Optimizer           string
	EarlyStopPatience   int
	PlateauPatience     int

	TransferLearning     bool
	TransferLearningType string // last_layer or all_layers
	ContinueTraining     bool
	RebuildModel         bool
	ModelToLoad          string // checkpoint file or directory to resolve

	Seed           int64 // seed for shuffling and sampling, 0 means time-based
	StatsSampleCap int   // max records sampled for image statistics

	ImageOverrides ImageProcessingOverrides // explicit user overrides
}

// InventorySettings contains inputs for the inventory subcommands.
type InventorySettings struct {
	SourceType     string  // importer name: json, image_dir, csv
	SourcePath     string  // source location
	ExportPath     string  // inventory snapshot destination
	SampleFraction float64 // fraction of records to keep when sampling
	Seed           int64
}

// PredictSettings contains inputs for the standalone predict subcommand.
type PredictSettings struct {
	ModelDir   string // finalized model directory
	SourceType string // importer name or "snapshot" for exported inventories
	SourcePath string
	OutputPath string
	BatchSize  int
	Workers    int
}

// Settings is the top level configuration structure.
type Settings struct {
	Debug bool

	Main      MainSettings
	Train     TrainSettings
	Inventory InventorySettings
	Predict   PredictSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.Mutex
)

// Load reads the configuration into the package singleton. An empty
// configPath is allowed; defaults and flags then fully define the settings.
func Load(configPath string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings, err := load(configPath)
	if err != nil {
		return nil, err
	}
	settingsInstance = settings
	return settingsInstance, nil
}

func load(configPath string) (*Settings, error) {
	setDefaultConfig()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return settings, nil
}

// Setting returns the current settings instance, loading defaults if needed.
func Setting() *Settings {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	if settingsInstance == nil {
		settings, err := load("")
		if err != nil {
			return &Settings{}
		}
		settingsInstance = settings
	}
	return settingsInstance
}
