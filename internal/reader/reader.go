// Package reader implements the batched record source feeding the training
// loop: a bounded-buffer producer/consumer with decode workers and an
// optional shuffle per pass.
package reader

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/camtrap/camtrap-go/internal/errors"
)

// ErrExhausted is returned by Next once all repeats have been consumed.
var ErrExhausted = errors.NewStd("record source exhausted")

// Sample is one record travelling through the input pipeline. Features is
// populated by the decode hook; the reader itself never interprets it.
type Sample struct {
	ID       string
	Labels   map[string][]string
	Images   []string
	Features []float32
}

// Batch is an assembled group of decoded samples.
type Batch struct {
	Samples []Sample
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int { return len(b.Samples) }

// DecodeFunc decodes and augments one sample. It runs on reader worker
// goroutines and must be safe for concurrent use.
type DecodeFunc func(ctx context.Context, s Sample) (Sample, error)

// Config controls one record source.
type Config struct {
	BatchSize     int
	Shuffle       bool  // reshuffle sample order on every pass
	NRepeats      int   // number of passes over the data, 0 means unbounded
	Workers       int   // decode worker count, minimum 1
	BufferSize    int   // bounded buffer capacity between producers and consumer
	Seed          int64 // shuffle seed, 0 means time-based
	DropRemainder bool  // drop a trailing partial batch
}

type item struct {
	sample Sample
	err    error
}

// Source yields batches of decoded samples. Producers (decode workers) may
// run ahead of the consumer up to the buffer capacity; Next blocks while
// the buffer is empty. A Source is exhausted after NRepeats passes.
type Source struct {
	cfg     Config
	samples []Sample
	decode  DecodeFunc

	out    chan item
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	exhausted bool
}

// New creates a record source over an in-memory sample list. The decode hook
// may be nil, in which case samples pass through unchanged.
func New(samples []Sample, decode DecodeFunc, cfg Config) (*Source, error) {
	if cfg.BatchSize <= 0 {
		return nil, errors.Newf("batch size %d must be positive", cfg.BatchSize).
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.BatchSize
	}
	if decode == nil {
		decode = func(_ context.Context, s Sample) (Sample, error) { return s, nil }
	}
	return &Source{cfg: cfg, samples: samples, decode: decode}, nil
}

func (s *Source) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	work := make(chan int)
	s.out = make(chan item, s.cfg.BufferSize)

	// index generator: one pass per repeat, reshuffled when configured
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(work)

		var rng *rand.Rand
		if s.cfg.Shuffle {
			seed := uint64(s.cfg.Seed)
			if seed == 0 {
				seed = rand.Uint64()
			}
			rng = rand.New(rand.NewPCG(seed, seed))
		}

		for pass := 0; s.cfg.NRepeats == 0 || pass < s.cfg.NRepeats; pass++ {
			order := make([]int, len(s.samples))
			for i := range order {
				order[i] = i
			}
			if rng != nil {
				rng.Shuffle(len(order), func(i, j int) {
					order[i], order[j] = order[j], order[i]
				})
			}
			for _, idx := range order {
				select {
				case work <- idx:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// decode workers feed the bounded buffer
	var workerWG sync.WaitGroup
	for range s.cfg.Workers {
		workerWG.Add(1)
		s.wg.Add(1)
		go func() {
			defer workerWG.Done()
			defer s.wg.Done()
			for idx := range work {
				decoded, err := s.decode(ctx, s.samples[idx])
				select {
				case s.out <- item{sample: decoded, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		workerWG.Wait()
		close(s.out)
	}()
}

// Next assembles and returns the next batch. It returns ErrExhausted when
// all repeats are consumed, or the first decode error encountered.
func (s *Source) Next(ctx context.Context) (Batch, error) {
	s.mu.Lock()
	if !s.started {
		s.start()
		s.started = true
	}
	if s.exhausted {
		s.mu.Unlock()
		return Batch{}, ErrExhausted
	}
	s.mu.Unlock()

	batch := Batch{Samples: make([]Sample, 0, s.cfg.BatchSize)}
	for len(batch.Samples) < s.cfg.BatchSize {
		select {
		case it, ok := <-s.out:
			if !ok {
				s.mu.Lock()
				s.exhausted = true
				s.mu.Unlock()
				if len(batch.Samples) == 0 || s.cfg.DropRemainder {
					return Batch{}, ErrExhausted
				}
				return batch, nil
			}
			if it.err != nil {
				return Batch{}, errors.New(it.err).
					Category(errors.CategoryReader).
					Context("record_id", it.sample.ID).
					Build()
			}
			batch.Samples = append(batch.Samples, it.sample)
		case <-ctx.Done():
			return Batch{}, ctx.Err()
		}
	}
	return batch, nil
}

// Close stops the producer side and waits for all workers to exit. It is
// safe to call Close more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.started = true
		s.exhausted = true
		return nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		// drain so workers blocked on a full buffer can finish their send
		for range s.out {
		}
		s.wg.Wait()
	}
	s.exhausted = true
	return nil
}
