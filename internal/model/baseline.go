package model

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/camtrap/camtrap-go/internal/errors"
	"github.com/camtrap/camtrap-go/internal/reader"
)

// BaselineArchitecture is the name of the built-in frequency baseline.
const BaselineArchitecture = "frequency_baseline"

func init() {
	Register(BaselineArchitecture, NewBaseline)
}

// baselineState is the persisted checkpoint payload.
type baselineState struct {
	Architecture string                        `json:"architecture"`
	LearningRate float64                       `json:"learning_rate"`
	Counts       map[string]map[string]float64 `json:"counts"` // label type -> value -> weight
}

// Baseline is a class-frequency model: it predicts the smoothed label-value
// distribution observed during training. It serves as a floor for real
// model runtimes and exercises the full pipeline without an accelerator.
type Baseline struct {
	labels []string
	lr     float64
	counts map[string]map[string]float64
}

// NewBaseline constructs the baseline honoring the standard load options.
func NewBaseline(opts Options) (Model, error) {
	b := &Baseline{
		labels: append([]string(nil), opts.Labels...),
		lr:     opts.InitialLearningRate,
		counts: make(map[string]map[string]float64),
	}
	for _, labelType := range b.labels {
		b.counts[labelType] = make(map[string]float64)
	}

	if opts.CheckpointPath != "" && (opts.ContinueTraining || opts.TransferLearning) {
		state, err := loadBaselineState(opts.CheckpointPath)
		if err != nil {
			return nil, err
		}

		if opts.ContinueTraining && !opts.RebuildModel {
			b.lr = state.LearningRate
		}

		resetHead := opts.TransferLearning && opts.TransferLearningType == "last_layer"
		if !resetHead {
			for labelType, values := range state.Counts {
				if _, keep := b.counts[labelType]; keep {
					for value, weight := range values {
						b.counts[labelType][value] = weight
					}
				}
			}
		}
	}

	return b, nil
}

func loadBaselineState(path string) (*baselineState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryModelLoad).
			FileContext(path, 0).
			Build()
	}
	var state baselineState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryModelLoad).
			FileContext(path, 0).
			Build()
	}
	return &state, nil
}

// TrainBatch updates the frequency counts and returns the pre-update loss.
func (b *Baseline) TrainBatch(ctx context.Context, batch reader.Batch) (float64, error) {
	loss, err := b.EvaluateBatch(ctx, batch)
	if err != nil {
		return 0, err
	}

	for _, sample := range batch.Samples {
		for _, labelType := range b.labels {
			for _, value := range sample.Labels[labelType] {
				b.counts[labelType][value] += b.lr
			}
		}
	}
	return loss, nil
}

// EvaluateBatch returns the mean negative log-likelihood of the true labels
// under the current smoothed distribution.
func (b *Baseline) EvaluateBatch(ctx context.Context, batch reader.Batch) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if batch.Size() == 0 {
		return 0, errors.Newf("cannot evaluate an empty batch").
			Category(errors.CategoryTraining).
			Build()
	}

	total := 0.0
	n := 0
	for _, sample := range batch.Samples {
		for _, labelType := range b.labels {
			for _, value := range sample.Labels[labelType] {
				total += -math.Log(b.probability(labelType, value))
				n++
			}
		}
	}
	if n == 0 {
		return 0, errors.Newf("batch carries no values for trained label types %v", b.labels).
			Category(errors.CategoryTraining).
			Build()
	}
	return total / float64(n), nil
}

// probability returns the Laplace-smoothed share of a label value.
func (b *Baseline) probability(labelType, value string) float64 {
	values := b.counts[labelType]
	total := 0.0
	for _, weight := range values {
		total += weight
	}
	classes := float64(len(values))
	if classes == 0 {
		classes = 1
	}
	return (values[value] + 1) / (total + classes)
}

// PredictBatch returns the smoothed distribution for every sample, sorted
// by descending probability.
func (b *Baseline) PredictBatch(ctx context.Context, batch reader.Batch) ([]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	predictions := make([]Prediction, 0, batch.Size())
	for _, sample := range batch.Samples {
		pred := Prediction{
			ID:     sample.ID,
			Labels: make(map[string][]LabelProbability, len(b.labels)),
		}
		for _, labelType := range b.labels {
			values := make([]string, 0, len(b.counts[labelType]))
			for value := range b.counts[labelType] {
				values = append(values, value)
			}
			sort.Strings(values)

			dist := make([]LabelProbability, 0, len(values))
			for _, value := range values {
				dist = append(dist, LabelProbability{
					Label:       value,
					Probability: b.probability(labelType, value),
				})
			}
			sort.SliceStable(dist, func(i, j int) bool {
				return dist[i].Probability > dist[j].Probability
			})
			pred.Labels[labelType] = dist
		}
		predictions = append(predictions, pred)
	}
	return predictions, nil
}

// LearningRate returns the current count increment weight.
func (b *Baseline) LearningRate() float64 { return b.lr }

// SetLearningRate sets the count increment weight.
func (b *Baseline) SetLearningRate(lr float64) { b.lr = lr }

// Save writes the model state as a JSON checkpoint.
func (b *Baseline) Save(path string) error {
	state := baselineState{
		Architecture: BaselineArchitecture,
		LearningRate: b.lr,
		Counts:       b.counts,
	}
	data, err := json.MarshalIndent(&state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	return nil
}
