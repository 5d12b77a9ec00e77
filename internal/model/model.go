// Package model defines the trainable-model capability consumed by the
// training pipeline. Concrete model runtimes register factories by
// architecture name.
package model

import (
	"context"
	"sort"
	"sync"

	"github.com/camtrap/camtrap-go/internal/errors"
	"github.com/camtrap/camtrap-go/internal/reader"
)

// LabelProbability is one entry of a predicted class distribution.
type LabelProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Prediction holds per-label-type predicted distributions for one record.
type Prediction struct {
	ID     string                        `json:"id"`
	Labels map[string][]LabelProbability `json:"labels"`
}

// Model is a handle to a trainable model. The pipeline drives it with
// batches and monitor-directed learning-rate changes; everything else about
// the model is opaque.
type Model interface {
	// TrainBatch performs one training step and returns the batch loss.
	TrainBatch(ctx context.Context, b reader.Batch) (float64, error)

	// EvaluateBatch computes the batch loss without updating the model.
	EvaluateBatch(ctx context.Context, b reader.Batch) (float64, error)

	// PredictBatch returns per-record label distributions.
	PredictBatch(ctx context.Context, b reader.Batch) ([]Prediction, error)

	LearningRate() float64
	SetLearningRate(lr float64)

	// Save persists the model state to a checkpoint file.
	Save(path string) error
}

// Options carries everything needed to construct a model fresh, loaded for
// continued training, or loaded for transfer learning.
type Options struct {
	Architecture    string
	InputShape      [3]int // height, width, channels
	Labels          []string
	ClassesPerLabel map[string]int

	InitialLearningRate float64
	Optimizer           string
	LossWeights         []float64

	ContinueTraining     bool
	RebuildModel         bool
	TransferLearning     bool
	TransferLearningType string
	CheckpointPath       string // resolved checkpoint to load, if any
}

// Factory constructs a model for one architecture, honoring the load
// options in Options.
type Factory func(opts Options) (Model, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a model factory under an architecture name.
func Register(architecture string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[architecture] = factory
}

// New constructs a model using the factory registered for the requested
// architecture.
func New(opts Options) (Model, error) {
	registryMu.RLock()
	factory, ok := registry[opts.Architecture]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Newf("no trainable model registered for architecture %q (available: %v)",
			opts.Architecture, Architectures()).
			Category(errors.CategoryModelInit).
			Context("architecture", opts.Architecture).
			Build()
	}
	return factory(opts)
}

// Architectures returns the sorted list of registered architecture names.
func Architectures() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
