package monitor

import (
	"math"
	"path/filepath"

	"github.com/camtrap/camtrap-go/internal/checkpoint"
)

// Saver persists trainable state to a checkpoint file. The trained model
// handle satisfies this.
type Saver interface {
	Save(path string) error
}

// CheckpointWriter writes a checkpoint after every epoch, named with the
// epoch index and validation loss embedded.
type CheckpointWriter struct {
	Dir   string
	Saver Saver
}

// NewCheckpointWriter creates an every-epoch checkpoint writer.
func NewCheckpointWriter(dir string, saver Saver) *CheckpointWriter {
	return &CheckpointWriter{Dir: dir, Saver: saver}
}

func (c *CheckpointWriter) OnEpochEnd(m Metrics) (Signal, error) {
	path := filepath.Join(c.Dir, checkpoint.Filename(m.Epoch+1, m.ValLoss))
	if err := c.Saver.Save(path); err != nil {
		return Signal{}, err
	}
	return Signal{}, nil
}

// BestCheckpointWriter overwrites a fixed path only when the validation
// loss improves on all prior epochs.
type BestCheckpointWriter struct {
	Path  string
	Saver Saver

	best float64
	init bool
}

// NewBestCheckpointWriter creates a strict best-only checkpoint writer.
func NewBestCheckpointWriter(path string, saver Saver) *BestCheckpointWriter {
	return &BestCheckpointWriter{Path: path, Saver: saver}
}

func (b *BestCheckpointWriter) OnEpochEnd(m Metrics) (Signal, error) {
	if !b.init {
		b.best = math.Inf(1)
		b.init = true
	}
	if m.ValLoss >= b.best {
		return Signal{}, nil
	}
	b.best = m.ValLoss
	if err := b.Saver.Save(b.Path); err != nil {
		return Signal{}, err
	}
	return Signal{}, nil
}
