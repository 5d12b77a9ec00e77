package conf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelProfile holds per-architecture defaults layered between the built-in
// image-processing defaults and any user overrides.
type ModelProfile struct {
	InputWidth          int     `yaml:"input_width"`
	InputHeight         int     `yaml:"input_height"`
	InitialLearningRate float64 `yaml:"initial_learning_rate"`

	// Architecture-specific image processing defaults, sparse on purpose.
	ColorAugmentation  *string `yaml:"color_augmentation"`
	ImageChoiceForSets *string `yaml:"image_choice_for_sets"`
}

// ImageOverrides returns the profile's image-processing override layer.
func (p *ModelProfile) ImageOverrides() ImageProcessingOverrides {
	o := ImageProcessingOverrides{
		ColorAugmentation:  p.ColorAugmentation,
		ImageChoiceForSets: p.ImageChoiceForSets,
	}
	if p.InputWidth > 0 {
		w := p.InputWidth
		o.OutputWidth = &w
	}
	if p.InputHeight > 0 {
		h := p.InputHeight
		o.OutputHeight = &h
	}
	return o
}

func strptr(s string) *string { return &s }

// builtinModels is the default architecture catalog. Entries may be extended
// or replaced by a user-supplied catalog file.
var builtinModels = map[string]ModelProfile{
	"frequency_baseline": {
		InputWidth:          224,
		InputHeight:         224,
		InitialLearningRate: 1.0,
		ColorAugmentation:   strptr(ColorAugmentationNone),
	},
	"small_cnn": {
		InputWidth:          150,
		InputHeight:         150,
		InitialLearningRate: 0.01,
		ColorAugmentation:   strptr(ColorAugmentationLittle),
	},
	"resnet50": {
		InputWidth:          224,
		InputHeight:         224,
		InitialLearningRate: 0.01,
	},
	"xception": {
		InputWidth:          299,
		InputHeight:         299,
		InitialLearningRate: 0.01,
	},
	"inception_resnet_v2": {
		InputWidth:          299,
		InputHeight:         299,
		InitialLearningRate: 0.005,
	},
}

// ModelCatalog maps architecture names to their profiles.
type ModelCatalog map[string]ModelProfile

// DefaultModelCatalog returns a copy of the built-in catalog.
func DefaultModelCatalog() ModelCatalog {
	catalog := make(ModelCatalog, len(builtinModels))
	for name, profile := range builtinModels {
		catalog[name] = profile
	}
	return catalog
}

// LoadModelCatalog merges a YAML catalog file over the built-in catalog.
// File entries win over built-in entries of the same name.
func LoadModelCatalog(path string) (ModelCatalog, error) {
	catalog := DefaultModelCatalog()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading model catalog %s: %w", path, err)
	}

	var fileCatalog map[string]ModelProfile
	if err := yaml.Unmarshal(data, &fileCatalog); err != nil {
		return nil, fmt.Errorf("error parsing model catalog %s: %w", path, err)
	}

	for name, profile := range fileCatalog {
		catalog[name] = profile
	}
	return catalog, nil
}

// Profile looks up an architecture by name.
func (c ModelCatalog) Profile(name string) (ModelProfile, bool) {
	profile, ok := c[name]
	return profile, ok
}
