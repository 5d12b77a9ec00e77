// Package metrics provides custom Prometheus metrics for training and
// prediction runs.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// TrainingMetrics contains all Prometheus metrics related to a training run.
type TrainingMetrics struct {
	// Progress counters
	EpochsCompleted  *prometheus.CounterVec
	BatchesConsumed  *prometheus.CounterVec
	SamplesConsumed  *prometheus.CounterVec
	CheckpointsSaved *prometheus.CounterVec
	PredictionsTotal *prometheus.CounterVec

	// Current state gauges
	TrainLossGauge    *prometheus.GaugeVec
	ValLossGauge      *prometheus.GaugeVec
	BestValLossGauge  *prometheus.GaugeVec
	LearningRateGauge *prometheus.GaugeVec

	// Stage durations
	EpochDuration *prometheus.HistogramVec
	StageDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewTrainingMetrics creates a new instance of TrainingMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewTrainingMetrics(registry *prometheus.Registry) (*TrainingMetrics, error) {
	m := &TrainingMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register training metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for TrainingMetrics.
func (m *TrainingMetrics) initMetrics() {
	m.EpochsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camtrap_training_epochs_completed_total",
			Help: "Total number of completed training epochs",
		},
		[]string{"run_id", "model"},
	)
	m.BatchesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camtrap_training_batches_consumed_total",
			Help: "Total number of batches consumed from the reader",
		},
		[]string{"run_id", "split"},
	)
	m.SamplesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camtrap_training_samples_consumed_total",
			Help: "Total number of samples consumed from the reader",
		},
		[]string{"run_id", "split"},
	)
	m.CheckpointsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camtrap_training_checkpoints_saved_total",
			Help: "Total number of checkpoint files written",
		},
		[]string{"run_id", "kind"},
	)
	m.PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camtrap_predictions_total",
			Help: "Total number of prediction requests",
		},
		[]string{"run_id", "status"},
	)

	m.TrainLossGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camtrap_training_train_loss",
			Help: "Training loss of the most recent epoch",
		},
		[]string{"run_id"},
	)
	m.ValLossGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camtrap_training_val_loss",
			Help: "Validation loss of the most recent epoch",
		},
		[]string{"run_id"},
	)
	m.BestValLossGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camtrap_training_best_val_loss",
			Help: "Best validation loss observed so far in the run",
		},
		[]string{"run_id"},
	)
	m.LearningRateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camtrap_training_learning_rate",
			Help: "Learning rate in effect for the current epoch",
		},
		[]string{"run_id"},
	)

	m.EpochDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "camtrap_training_epoch_duration_seconds",
			Help:    "Time taken to run one training epoch",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		},
		[]string{"run_id"},
	)
	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "camtrap_training_stage_duration_seconds",
			Help:    "Time taken to run one pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~3min
		},
		[]string{"run_id", "stage"},
	)
}

// RecordEpoch records the outcome of one completed epoch.
func (m *TrainingMetrics) RecordEpoch(runID, model string, trainLoss, valLoss, learningRate, durationSeconds float64) {
	m.EpochsCompleted.WithLabelValues(runID, model).Inc()
	m.TrainLossGauge.WithLabelValues(runID).Set(trainLoss)
	m.ValLossGauge.WithLabelValues(runID).Set(valLoss)
	m.LearningRateGauge.WithLabelValues(runID).Set(learningRate)
	m.EpochDuration.WithLabelValues(runID).Observe(durationSeconds)
}

// RecordBestValLoss records a new best validation loss for the run.
func (m *TrainingMetrics) RecordBestValLoss(runID string, valLoss float64) {
	m.BestValLossGauge.WithLabelValues(runID).Set(valLoss)
}

// RecordBatch records one batch consumed from the given split.
func (m *TrainingMetrics) RecordBatch(runID, split string, samples int) {
	m.BatchesConsumed.WithLabelValues(runID, split).Inc()
	m.SamplesConsumed.WithLabelValues(runID, split).Add(float64(samples))
}

// RecordCheckpoint records one written checkpoint of the given kind
// ("epoch", "best" or "final").
func (m *TrainingMetrics) RecordCheckpoint(runID, kind string) {
	m.CheckpointsSaved.WithLabelValues(runID, kind).Inc()
}

// RecordStage records the duration of one completed pipeline stage.
func (m *TrainingMetrics) RecordStage(runID, stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(runID, stage).Observe(durationSeconds)
}

// RecordPrediction records the outcome of one prediction request.
func (m *TrainingMetrics) RecordPrediction(runID string, err error) {
	if err != nil {
		m.PredictionsTotal.WithLabelValues(runID, "error").Inc()
	} else {
		m.PredictionsTotal.WithLabelValues(runID, "success").Inc()
	}
}

// Describe implements the prometheus.Collector interface.
func (m *TrainingMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.EpochsCompleted.Describe(ch)
	m.BatchesConsumed.Describe(ch)
	m.SamplesConsumed.Describe(ch)
	m.CheckpointsSaved.Describe(ch)
	m.PredictionsTotal.Describe(ch)

	m.TrainLossGauge.Describe(ch)
	m.ValLossGauge.Describe(ch)
	m.BestValLossGauge.Describe(ch)
	m.LearningRateGauge.Describe(ch)

	m.EpochDuration.Describe(ch)
	m.StageDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *TrainingMetrics) Collect(ch chan<- prometheus.Metric) {
	m.EpochsCompleted.Collect(ch)
	m.BatchesConsumed.Collect(ch)
	m.SamplesConsumed.Collect(ch)
	m.CheckpointsSaved.Collect(ch)
	m.PredictionsTotal.Collect(ch)

	m.TrainLossGauge.Collect(ch)
	m.ValLossGauge.Collect(ch)
	m.BestValLossGauge.Collect(ch)
	m.LearningRateGauge.Collect(ch)

	m.EpochDuration.Collect(ch)
	m.StageDuration.Collect(ch)
}
