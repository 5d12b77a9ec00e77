package monitor

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/camtrap/camtrap-go/internal/errors"
)

var csvHeader = []string{"epoch", "learning_rate", "train_loss", "val_loss"}

// CSVLogger appends one row of metrics per epoch to a persistent log file.
// In continue mode the existing file is appended to instead of truncated.
type CSVLogger struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVLogger opens (or, unless append is set, truncates) the training log
// and writes the header when starting a fresh file.
func NewCSVLogger(path string, appendMode bool) (*CSVLogger, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}

	logger := &CSVLogger{file: file, writer: csv.NewWriter(file)}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := logger.writer.Write(csvHeader); err != nil {
			_ = file.Close()
			return nil, err
		}
		logger.writer.Flush()
	}

	return logger, nil
}

func (l *CSVLogger) OnEpochEnd(m Metrics) (Signal, error) {
	row := []string{
		strconv.Itoa(m.Epoch),
		strconv.FormatFloat(m.LearningRate, 'g', -1, 64),
		strconv.FormatFloat(m.TrainLoss, 'g', -1, 64),
		strconv.FormatFloat(m.ValLoss, 'g', -1, 64),
	}
	if err := l.writer.Write(row); err != nil {
		return Signal{}, err
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return Signal{}, errors.New(err).
			Category(errors.CategoryFileIO).
			FileContext(l.file.Name(), 0).
			Build()
	}
	return Signal{}, nil
}

// Close flushes and closes the underlying log file.
func (l *CSVLogger) Close() error {
	l.writer.Flush()
	return l.file.Close()
}
