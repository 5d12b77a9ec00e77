package monitor

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEarlyStoppingHaltsAfterPatience(t *testing.T) {
	t.Parallel()

	const patience = 3
	e := NewEarlyStopping(patience, 0)

	// epoch 0 improves on the initial +Inf baseline, then the loss never
	// improves again: the stop signal must arrive at epoch patience
	losses := []float64{1.0, 1.0, 1.0, 1.0, 1.0, 1.0}
	stoppedAt := -1
	for epoch, loss := range losses {
		signal, err := e.OnEpochEnd(Metrics{Epoch: epoch, ValLoss: loss})
		require.NoError(t, err)
		if signal.Stop {
			stoppedAt = epoch
			break
		}
	}
	assert.Equal(t, patience, stoppedAt)
}

func TestEarlyStoppingResetsOnImprovement(t *testing.T) {
	t.Parallel()

	e := NewEarlyStopping(2, 0)

	losses := []float64{1.0, 0.9, 0.95, 0.8, 0.85, 0.85}
	var signals []bool
	for epoch, loss := range losses {
		signal, err := e.OnEpochEnd(Metrics{Epoch: epoch, ValLoss: loss})
		require.NoError(t, err)
		signals = append(signals, signal.Stop)
	}
	// improvements at epochs 1 and 3 keep resetting the window; the two
	// flat epochs 4 and 5 finally exhaust the patience
	assert.Equal(t, []bool{false, false, false, false, false, true}, signals)
}

func TestEarlyStoppingMinDelta(t *testing.T) {
	t.Parallel()

	e := NewEarlyStopping(1, 0.1)

	_, err := e.OnEpochEnd(Metrics{Epoch: 0, ValLoss: 1.0})
	require.NoError(t, err)

	// a 0.05 improvement is below min delta, so it does not count
	signal, err := e.OnEpochEnd(Metrics{Epoch: 1, ValLoss: 0.95})
	require.NoError(t, err)
	assert.True(t, signal.Stop)
}

func TestReduceLROnPlateau(t *testing.T) {
	t.Parallel()

	r := NewReduceLROnPlateau(2)
	lr := 0.01

	fire := func(epoch int, loss float64) *float64 {
		signal, err := r.OnEpochEnd(Metrics{Epoch: epoch, ValLoss: loss, LearningRate: lr})
		require.NoError(t, err)
		if signal.NewLearningRate != nil {
			lr = *signal.NewLearningRate
		}
		return signal.NewLearningRate
	}

	assert.Nil(t, fire(0, 1.0)) // baseline improvement
	assert.Nil(t, fire(1, 1.0)) // wait 1
	newLR := fire(2, 1.0)       // wait 2 -> reduce
	require.NotNil(t, newLR)
	assert.InDelta(t, 0.001, *newLR, 1e-12)

	// cooldown epoch: no second reduction immediately
	assert.Nil(t, fire(3, 1.0))
}

func TestReduceLROnPlateauFloor(t *testing.T) {
	t.Parallel()

	r := NewReduceLROnPlateau(1)
	r.CoolDown = 0
	r.MinLR = 1e-5

	// learning rate already at the floor: plateau no longer fires
	_, err := r.OnEpochEnd(Metrics{Epoch: 0, ValLoss: 1.0, LearningRate: 1e-5})
	require.NoError(t, err)
	signal, err := r.OnEpochEnd(Metrics{Epoch: 1, ValLoss: 1.0, LearningRate: 1e-5})
	require.NoError(t, err)
	assert.Nil(t, signal.NewLearningRate)
}

func TestReduceLROnPlateauClampsToFloor(t *testing.T) {
	t.Parallel()

	r := NewReduceLROnPlateau(1)
	r.CoolDown = 0

	_, err := r.OnEpochEnd(Metrics{Epoch: 0, ValLoss: 1.0, LearningRate: 3e-5})
	require.NoError(t, err)
	signal, err := r.OnEpochEnd(Metrics{Epoch: 1, ValLoss: 1.0, LearningRate: 3e-5})
	require.NoError(t, err)
	require.NotNil(t, signal.NewLearningRate)
	assert.Equal(t, r.MinLR, *signal.NewLearningRate)
}

func TestReduceLROnPlateauInvalidFactor(t *testing.T) {
	t.Parallel()

	r := NewReduceLROnPlateau(1)
	r.Factor = 1.5
	_, err := r.OnEpochEnd(Metrics{})
	assert.Error(t, err)
}

type recordingSaver struct {
	paths []string
	fail  error
}

func (r *recordingSaver) Save(path string) error {
	if r.fail != nil {
		return r.fail
	}
	r.paths = append(r.paths, path)
	return nil
}

func TestCheckpointWriterWritesEveryEpoch(t *testing.T) {
	t.Parallel()

	saver := &recordingSaver{}
	w := NewCheckpointWriter("/run", saver)

	for epoch, loss := range []float64{0.9, 0.95, 0.7} {
		_, err := w.OnEpochEnd(Metrics{Epoch: epoch, ValLoss: loss})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"/run/model_epoch_01_loss_0.90.ckpt",
		"/run/model_epoch_02_loss_0.95.ckpt",
		"/run/model_epoch_03_loss_0.70.ckpt",
	}, saver.paths)
}

func TestBestCheckpointWriterWritesOnlyOnImprovement(t *testing.T) {
	t.Parallel()

	saver := &recordingSaver{}
	w := NewBestCheckpointWriter("/run/model_best.ckpt", saver)

	for epoch, loss := range []float64{0.9, 0.95, 0.9, 0.7} {
		_, err := w.OnEpochEnd(Metrics{Epoch: epoch, ValLoss: loss})
		require.NoError(t, err)
	}

	// epochs 1 and 2 do not beat the running best; only 0 and 3 write
	assert.Equal(t, []string{"/run/model_best.ckpt", "/run/model_best.ckpt"}, saver.paths)
}

func TestCSVLoggerWritesAndAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "training.csv")

	logger, err := NewCSVLogger(path, false)
	require.NoError(t, err)
	_, err = logger.OnEpochEnd(Metrics{Epoch: 0, LearningRate: 0.01, TrainLoss: 1.2, ValLoss: 1.1})
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	// continue mode appends instead of truncating
	logger, err = NewCSVLogger(path, true)
	require.NoError(t, err)
	_, err = logger.OnEpochEnd(Metrics{Epoch: 1, LearningRate: 0.01, TrainLoss: 1.0, ValLoss: 0.9})
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "0", rows[1][0])
	assert.Equal(t, "1", rows[2][0])
}

func TestCSVLoggerTruncatesWithoutAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "training.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale\ncontent\n"), 0o644))

	logger, err := NewCSVLogger(path, false)
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, csvHeader, rows[0])
}

type stopMonitor struct{}

func (stopMonitor) OnEpochEnd(Metrics) (Signal, error) { return Signal{Stop: true}, nil }

func TestSetMergesSignals(t *testing.T) {
	t.Parallel()

	r := NewReduceLROnPlateau(1)
	r.CoolDown = 0

	set := Set{stopMonitor{}, r}

	// baseline epoch for the plateau monitor
	_, err := set.OnEpochEnd(Metrics{Epoch: 0, ValLoss: 1.0, LearningRate: 0.01})
	require.NoError(t, err)

	signal, err := set.OnEpochEnd(Metrics{Epoch: 1, ValLoss: 1.0, LearningRate: 0.01})
	require.NoError(t, err)
	assert.True(t, signal.Stop)
	assert.NotNil(t, signal.NewLearningRate)
}
