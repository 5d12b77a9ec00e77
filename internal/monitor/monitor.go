// Package monitor implements composable training-loop observers: early
// stopping, learning-rate reduction, checkpoint writers and tabular logging.
package monitor

import (
	"math"

	"github.com/camtrap/camtrap-go/internal/errors"
)

// Default monitor parameters.
const (
	DefaultPlateauMinDelta = 0.0001
	DefaultPlateauFactor   = 0.1
	DefaultPlateauCoolDown = 1
	DefaultMinLearningRate = 1e-5
)

// Metrics is one epoch's outcome handed to every monitor.
type Metrics struct {
	Epoch        int // 0-based epoch index
	TrainLoss    float64
	ValLoss      float64
	LearningRate float64
}

// Signal is a monitor's reaction to an epoch. Monitors react only to the
// metric value, never to each other.
type Signal struct {
	Stop            bool
	NewLearningRate *float64
}

// Monitor observes epoch outcomes.
type Monitor interface {
	OnEpochEnd(m Metrics) (Signal, error)
}

// Set invokes a list of monitors and merges their signals. A raised stop
// signal wins over everything else; the last learning-rate directive in
// list order is applied.
type Set []Monitor

// OnEpochEnd runs every monitor and merges the signals.
func (s Set) OnEpochEnd(m Metrics) (Signal, error) {
	var merged Signal
	for _, monitor := range s {
		signal, err := monitor.OnEpochEnd(m)
		if err != nil {
			return Signal{}, err
		}
		if signal.Stop {
			merged.Stop = true
		}
		if signal.NewLearningRate != nil {
			merged.NewLearningRate = signal.NewLearningRate
		}
	}
	return merged, nil
}

// EarlyStopping signals pipeline termination when the validation loss has
// not improved by more than MinDelta within Patience epochs.
type EarlyStopping struct {
	Patience int
	MinDelta float64

	best float64
	wait int
	init bool
}

// NewEarlyStopping creates an early-stop monitor with the given patience.
func NewEarlyStopping(patience int, minDelta float64) *EarlyStopping {
	return &EarlyStopping{Patience: patience, MinDelta: minDelta}
}

func (e *EarlyStopping) OnEpochEnd(m Metrics) (Signal, error) {
	if !e.init {
		e.best = math.Inf(1)
		e.init = true
	}

	if m.ValLoss < e.best-e.MinDelta {
		e.best = m.ValLoss
		e.wait = 0
		return Signal{}, nil
	}

	e.wait++
	if e.wait >= e.Patience {
		return Signal{Stop: true}, nil
	}
	return Signal{}, nil
}

// ReduceLROnPlateau emits a learning-rate-reduction directive when the
// validation loss stagnates beyond its patience, with a cooldown between
// reductions and a floor it will not reduce below.
type ReduceLROnPlateau struct {
	Factor   float64
	Patience int
	MinDelta float64
	CoolDown int
	MinLR    float64

	best     float64
	wait     int
	cooldown int
	init     bool
}

// NewReduceLROnPlateau creates a plateau monitor with default factor,
// cooldown and learning-rate floor.
func NewReduceLROnPlateau(patience int) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{
		Factor:   DefaultPlateauFactor,
		Patience: patience,
		MinDelta: DefaultPlateauMinDelta,
		CoolDown: DefaultPlateauCoolDown,
		MinLR:    DefaultMinLearningRate,
	}
}

func (r *ReduceLROnPlateau) OnEpochEnd(m Metrics) (Signal, error) {
	if r.Factor <= 0 || r.Factor >= 1 {
		return Signal{}, errors.Newf("plateau factor %v outside (0, 1)", r.Factor).
			Category(errors.CategoryMonitor).
			Build()
	}
	if !r.init {
		r.best = math.Inf(1)
		r.init = true
	}

	if r.cooldown > 0 {
		r.cooldown--
		r.wait = 0
	}

	if m.ValLoss < r.best-r.MinDelta {
		r.best = m.ValLoss
		r.wait = 0
		return Signal{}, nil
	}

	if r.cooldown > 0 {
		return Signal{}, nil
	}

	r.wait++
	if r.wait < r.Patience {
		return Signal{}, nil
	}

	r.wait = 0
	r.cooldown = r.CoolDown
	if m.LearningRate <= r.MinLR {
		return Signal{}, nil
	}
	newLR := math.Max(m.LearningRate*r.Factor, r.MinLR)
	return Signal{NewLearningRate: &newLR}, nil
}
