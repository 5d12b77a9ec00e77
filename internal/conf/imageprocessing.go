package conf

import "fmt"

// Color augmentation modes. An empty string disables color augmentation.
const (
	ColorAugmentationNone           = ""
	ColorAugmentationLittle         = "little"
	ColorAugmentationFullFast       = "full_fast"
	ColorAugmentationFullRandomized = "full_randomized"
)

// Strategies for records carrying multiple images.
const (
	ImageChoiceRandom            = "random"
	ImageChoiceGrayscaleStacking = "grayscale_stacking"
)

// ImageProcessingConfig is the effective image pre-processing configuration
// for one run. The JSON field names match the persisted
// image_processing.json artifact consumed by prediction.
type ImageProcessingConfig struct {
	ColorAugmentation        string    `json:"color_augmentation" mapstructure:"coloraugmentation"`
	PreserveAspectRatio      bool      `json:"preserve_aspect_ratio" mapstructure:"preserveaspectratio"`
	CropFactor               float64   `json:"crop_factor" mapstructure:"cropfactor"`
	ZoomFactor               float64   `json:"zoom_factor" mapstructure:"zoomfactor"`
	RotateByAngle            int       `json:"rotate_by_angle" mapstructure:"rotatebyangle"`
	RandomlyFlipHorizontally bool      `json:"randomly_flip_horizontally" mapstructure:"randomlyfliphorizontally"`
	ImageChoiceForSets       string    `json:"image_choice_for_sets" mapstructure:"imagechoiceforsets"`
	OutputWidth              int       `json:"output_width" mapstructure:"outputwidth"`
	OutputHeight             int       `json:"output_height" mapstructure:"outputheight"`
	ImageMeans               []float64 `json:"image_means,omitempty" mapstructure:"-"`
	ImageStdevs              []float64 `json:"image_stdevs,omitempty" mapstructure:"-"`
	IsTraining               bool      `json:"is_training" mapstructure:"-"`
}

// ImageProcessingOverrides is one override layer of the image-processing
// configuration. Nil fields leave the lower layers untouched; a non-nil
// pointer to the zero value is an explicit setting (e.g. disabling color
// augmentation).
type ImageProcessingOverrides struct {
	ColorAugmentation        *string
	PreserveAspectRatio      *bool
	CropFactor               *float64
	ZoomFactor               *float64
	RotateByAngle            *int
	RandomlyFlipHorizontally *bool
	ImageChoiceForSets       *string
	OutputWidth              *int
	OutputHeight             *int
}

// Overrides converts an effective configuration into a full override layer.
// Used to replay a previous run's persisted configuration in continue mode.
func (c *ImageProcessingConfig) Overrides() ImageProcessingOverrides {
	return ImageProcessingOverrides{
		ColorAugmentation:        &c.ColorAugmentation,
		PreserveAspectRatio:      &c.PreserveAspectRatio,
		CropFactor:               &c.CropFactor,
		ZoomFactor:               &c.ZoomFactor,
		RotateByAngle:            &c.RotateByAngle,
		RandomlyFlipHorizontally: &c.RandomlyFlipHorizontally,
		ImageChoiceForSets:       &c.ImageChoiceForSets,
		OutputWidth:              &c.OutputWidth,
		OutputHeight:             &c.OutputHeight,
	}
}

// DefaultImageProcessing returns the built-in base layer of the
// image-processing configuration.
func DefaultImageProcessing() ImageProcessingConfig {
	return ImageProcessingConfig{
		ColorAugmentation:        ColorAugmentationFullRandomized,
		PreserveAspectRatio:      false,
		CropFactor:               0.1,
		ZoomFactor:               0.1,
		RotateByAngle:            5,
		RandomlyFlipHorizontally: true,
		ImageChoiceForSets:       ImageChoiceRandom,
		OutputWidth:              224,
		OutputHeight:             224,
	}
}

func (o *ImageProcessingOverrides) apply(c *ImageProcessingConfig) {
	if o.ColorAugmentation != nil {
		c.ColorAugmentation = *o.ColorAugmentation
	}
	if o.PreserveAspectRatio != nil {
		c.PreserveAspectRatio = *o.PreserveAspectRatio
	}
	if o.CropFactor != nil {
		c.CropFactor = *o.CropFactor
	}
	if o.ZoomFactor != nil {
		c.ZoomFactor = *o.ZoomFactor
	}
	if o.RotateByAngle != nil {
		c.RotateByAngle = *o.RotateByAngle
	}
	if o.RandomlyFlipHorizontally != nil {
		c.RandomlyFlipHorizontally = *o.RandomlyFlipHorizontally
	}
	if o.ImageChoiceForSets != nil {
		c.ImageChoiceForSets = *o.ImageChoiceForSets
	}
	if o.OutputWidth != nil {
		c.OutputWidth = *o.OutputWidth
	}
	if o.OutputHeight != nil {
		c.OutputHeight = *o.OutputHeight
	}
}

// MergeImageProcessing merges override layers onto a base configuration in
// ascending priority order and applies cross-option compatibility rules.
// It returns the effective configuration and a list of adjustment notes for
// the caller to log. The merge is deterministic: identical inputs always
// produce an identical result.
func MergeImageProcessing(base ImageProcessingConfig, layers ...ImageProcessingOverrides) (ImageProcessingConfig, []string) {
	effective := base
	for i := range layers {
		layers[i].apply(&effective)
	}

	var notes []string

	// Grayscale stacking converts image sets to a synthetic RGB image;
	// color augmentation would corrupt the stacked channels.
	if effective.ImageChoiceForSets == ImageChoiceGrayscaleStacking &&
		effective.ColorAugmentation != ColorAugmentationNone {
		effective.ColorAugmentation = ColorAugmentationNone
		notes = append(notes,
			"disabling color_augmentation because of incompatibility with grayscale_stacking")
	}

	return effective, notes
}

// ValidColorAugmentation reports whether the given mode is supported.
func ValidColorAugmentation(mode string) bool {
	switch mode {
	case ColorAugmentationNone, ColorAugmentationLittle,
		ColorAugmentationFullFast, ColorAugmentationFullRandomized:
		return true
	}
	return false
}

// ValidImageChoice reports whether the given image set strategy is supported.
func ValidImageChoice(choice string) bool {
	return choice == ImageChoiceRandom || choice == ImageChoiceGrayscaleStacking
}

// Validate checks the effective configuration for out-of-range values.
func (c *ImageProcessingConfig) Validate() error {
	if !ValidColorAugmentation(c.ColorAugmentation) {
		return fmt.Errorf("unsupported color_augmentation %q", c.ColorAugmentation)
	}
	if !ValidImageChoice(c.ImageChoiceForSets) {
		return fmt.Errorf("unsupported image_choice_for_sets %q", c.ImageChoiceForSets)
	}
	if c.CropFactor < 0 || c.CropFactor > 0.5 {
		return fmt.Errorf("crop_factor %v outside [0, 0.5]", c.CropFactor)
	}
	if c.ZoomFactor < 0 || c.ZoomFactor > 0.5 {
		return fmt.Errorf("zoom_factor %v outside [0, 0.5]", c.ZoomFactor)
	}
	if c.RotateByAngle < 0 || c.RotateByAngle > 180 {
		return fmt.Errorf("rotate_by_angle %v outside [0, 180]", c.RotateByAngle)
	}
	if c.OutputWidth <= 0 || c.OutputHeight <= 0 {
		return fmt.Errorf("output size %dx%d must be positive", c.OutputWidth, c.OutputHeight)
	}
	return nil
}
