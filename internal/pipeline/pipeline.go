// Package pipeline implements the training run orchestrator: a fixed stage
// sequence from configuration resolution through training to finalization
// and optional prediction.
package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/camtrap/camtrap-go/internal/conf"
	"github.com/camtrap/camtrap-go/internal/inventory"
	"github.com/camtrap/camtrap-go/internal/labels"
	"github.com/camtrap/camtrap-go/internal/logging"
	"github.com/camtrap/camtrap-go/internal/model"
	"github.com/camtrap/camtrap-go/internal/observability"
	"github.com/camtrap/camtrap-go/internal/reader"
)

// Stage is one step of the training run sequence.
type Stage int

// Stages run strictly in this order. PREDICT only runs when a test split is
// configured.
const (
	StageConfigure Stage = iota
	StageStats
	StagePrepare
	StageTrain
	StageFinalize
	StagePredict
)

func (s Stage) String() string {
	switch s {
	case StageConfigure:
		return "configure"
	case StageStats:
		return "stats"
	case StagePrepare:
		return "prepare"
	case StageTrain:
		return "train"
	case StageFinalize:
		return "finalize"
	case StagePredict:
		return "predict"
	}
	return "unknown"
}

// RunState is the observable outcome of a run: which stage it reached and
// what each completed stage produced.
type RunState struct {
	RunID string
	Stage Stage

	Config  *conf.RunConfig
	Mapping labels.ClassMapping

	TrainRecords    int
	ValRecords      int
	TestRecords     int
	BatchesPerEpoch int
	StartingEpoch   int

	// ResolvedCheckpoint is the checkpoint loaded for continue or transfer
	// runs, empty for fresh runs.
	ResolvedCheckpoint string

	EpochsRun    int
	BestValLoss  float64
	StoppedEarly bool

	BestModelPath   string
	PredictionsPath string

	// PredictionError records a failed prediction stage. The run itself
	// still counts as finalized.
	PredictionError string
}

// Pipeline drives one training run end to end.
type Pipeline struct {
	settings *conf.TrainSettings
	catalog  conf.ModelCatalog
	metrics  *observability.Metrics
	log      *slog.Logger

	// Decode is the per-sample decode hook handed to record sources. Nil
	// passes samples through, which suits label-frequency models.
	Decode reader.DecodeFunc

	state    *RunState
	model    model.Model
	imageCfg conf.ImageProcessingConfig
	trainInv *inventory.Inventory
	valInv   *inventory.Inventory
	testInv  *inventory.Inventory
}

// New creates a pipeline for one training invocation. Metrics may be nil.
func New(settings *conf.TrainSettings, catalog conf.ModelCatalog, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		settings: settings,
		catalog:  catalog,
		metrics:  metrics,
		log:      logging.ForService("pipeline"),
	}
}

// Run executes the stage sequence. On failure it returns the state reached
// so far together with the failing stage's error.
func (p *Pipeline) Run(ctx context.Context) (*RunState, error) {
	p.state = &RunState{RunID: uuid.New().String()}

	// each run gets its own log file next to its other artifacts
	if p.settings.RunOutputsDir != "" {
		runLog, closeLog, err := logging.NewFileLogger(&logging.FileConfig{
			Path:     filepath.Join(p.settings.RunOutputsDir, "run.log"),
			Rotation: logging.RotationSize,
			MaxSize:  64 * 1024 * 1024,
		}, "pipeline", slog.LevelDebug)
		if err != nil {
			p.log.Warn("could not open run log file, logging to console only", "error", err)
		} else {
			defer closeLog() //nolint:errcheck // best-effort flush
			p.log = runLog
		}
	}

	p.log = p.log.With("run_id", p.state.RunID)
	p.log.Info("starting training run", "model", p.settings.Model)

	stages := []struct {
		stage Stage
		run   func(context.Context) error
	}{
		{StageConfigure, p.configure},
		{StageStats, p.stats},
		{StagePrepare, p.prepare},
		{StageTrain, p.train},
		{StageFinalize, p.finalize},
		{StagePredict, p.predictStage},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return p.state, err
		}

		p.state.Stage = s.stage
		p.log.Info("entering stage", "stage", s.stage.String())

		start := time.Now()
		err := s.run(ctx)
		if p.metrics != nil {
			p.metrics.Training.RecordStage(p.state.RunID, s.stage.String(), time.Since(start).Seconds())
		}
		if err != nil {
			p.log.Error("stage failed", "stage", s.stage.String(), "error", err)
			return p.state, err
		}
	}

	p.log.Info("training run complete",
		"epochs_run", p.state.EpochsRun,
		"best_val_loss", p.state.BestValLoss,
		"stopped_early", p.state.StoppedEarly,
		"best_model", p.state.BestModelPath)
	return p.state, nil
}
