package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolptr(v bool) *bool      { return &v }
func intptr(v int) *int         { return &v }
func f64ptr(v float64) *float64 { return &v }

func TestMergeImageProcessingPrecedence(t *testing.T) {
	t.Parallel()

	base := DefaultImageProcessing()

	modelLayer := ImageProcessingOverrides{
		ColorAugmentation: strptr(ColorAugmentationLittle),
		OutputWidth:       intptr(150),
		OutputHeight:      intptr(150),
	}
	userLayer := ImageProcessingOverrides{
		OutputWidth: intptr(320),
	}

	effective, notes := MergeImageProcessing(base, modelLayer, userLayer)

	assert.Empty(t, notes)
	// user layer wins over model layer
	assert.Equal(t, 320, effective.OutputWidth)
	// model layer wins over built-in defaults
	assert.Equal(t, 150, effective.OutputHeight)
	assert.Equal(t, ColorAugmentationLittle, effective.ColorAugmentation)
	// untouched keys keep the base value
	assert.Equal(t, 0.1, effective.CropFactor)
}

func TestMergeGrayscaleStackingDisablesColorAugmentation(t *testing.T) {
	t.Parallel()

	base := DefaultImageProcessing() // color_augmentation: full_randomized

	modelLayer := ImageProcessingOverrides{
		ColorAugmentation: strptr(ColorAugmentationLittle),
	}
	// explicit user choice of no color augmentation plus grayscale stacking
	userLayer := ImageProcessingOverrides{
		ColorAugmentation:  strptr(ColorAugmentationNone),
		ImageChoiceForSets: strptr(ImageChoiceGrayscaleStacking),
	}

	effective, notes := MergeImageProcessing(base, modelLayer, userLayer)
	assert.Equal(t, ColorAugmentationNone, effective.ColorAugmentation)
	assert.Empty(t, notes) // already disabled, nothing forced

	// the incompatibility rule wins regardless of override order
	effective, notes = MergeImageProcessing(base,
		ImageProcessingOverrides{ImageChoiceForSets: strptr(ImageChoiceGrayscaleStacking)},
		modelLayer)
	assert.Equal(t, ColorAugmentationNone, effective.ColorAugmentation)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "grayscale_stacking")
}

func TestMergeIsDeterministic(t *testing.T) {
	t.Parallel()

	base := DefaultImageProcessing()
	layer := ImageProcessingOverrides{
		CropFactor:          f64ptr(0.2),
		PreserveAspectRatio: boolptr(true),
		RotateByAngle:       intptr(15),
	}

	first, _ := MergeImageProcessing(base, layer)
	second, _ := MergeImageProcessing(base, layer)
	assert.Equal(t, first, second)
}

func TestImageProcessingValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*ImageProcessingConfig)
		wantErr bool
	}{
		{"defaults valid", func(c *ImageProcessingConfig) {}, false},
		{"crop factor too large", func(c *ImageProcessingConfig) { c.CropFactor = 0.6 }, true},
		{"negative zoom", func(c *ImageProcessingConfig) { c.ZoomFactor = -0.1 }, true},
		{"rotate beyond 180", func(c *ImageProcessingConfig) { c.RotateByAngle = 200 }, true},
		{"zero output width", func(c *ImageProcessingConfig) { c.OutputWidth = 0 }, true},
		{"unknown augmentation", func(c *ImageProcessingConfig) { c.ColorAugmentation = "extreme" }, true},
		{"none augmentation ok", func(c *ImageProcessingConfig) { c.ColorAugmentation = ColorAugmentationNone }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultImageProcessing()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
