package dataset

import (
	"context"
	"math/rand/v2"

	"github.com/gopots/gopots/internal/parallel"
	"github.com/pkg/errors"
)

// Batch is a slice of a dataset addressed by sample indices.
type Batch struct {
	Indices []int
	X       [][][]float64
	XOri    [][][]float64
	XPred   [][][]float64
	Y       []int
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int { return len(b.Indices) }

// Loader cuts a dataset into batches, one epoch at a time.
type Loader struct {
	Dataset    *Dataset
	BatchSize  int
	Shuffle    bool
	NumWorkers int
	Seed       uint64

	epoch uint64
}

// NumBatches returns the number of batches per epoch.
func (l *Loader) NumBatches() int {
	if l.Dataset == nil || l.BatchSize <= 0 {
		return 0
	}
	n := l.Dataset.NSamples()
	return (n + l.BatchSize - 1) / l.BatchSize
}

// Epoch returns the batches of one pass over the dataset. With Shuffle the
// order is reshuffled on every call. With NumWorkers > 0 batches are
// assembled concurrently; their order is preserved.
func (l *Loader) Epoch(ctx context.Context) ([]Batch, error) {
	if l.Dataset == nil {
		return nil, errors.New("loader has no dataset")
	}
	if l.BatchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", l.BatchSize)
	}

	n := l.Dataset.NSamples()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if l.Shuffle {
		r := rand.New(rand.NewPCG(l.Seed, l.epoch))
		r.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	l.epoch++

	batches := make([]Batch, l.NumBatches())
	err := parallel.For(ctx, len(batches), func(b int) error {
		start := b * l.BatchSize
		end := min(start+l.BatchSize, n)
		batches[b] = l.assemble(order[start:end])
		return nil
	}, parallel.WithWorkers(l.NumWorkers))
	if err != nil {
		return nil, errors.Wrap(err, "assemble batches")
	}
	return batches, nil
}

func (l *Loader) assemble(indices []int) Batch {
	d := l.Dataset
	b := Batch{Indices: append([]int(nil), indices...)}
	b.X = pick(d.X, indices)
	b.XOri = pick(d.XOri, indices)
	b.XPred = pick(d.XPred, indices)
	if d.Y != nil {
		b.Y = make([]int, len(indices))
		for i, idx := range indices {
			b.Y[i] = d.Y[idx]
		}
	}
	return b
}

func pick(v [][][]float64, indices []int) [][][]float64 {
	if v == nil {
		return nil
	}
	out := make([][][]float64, len(indices))
	for i, idx := range indices {
		out[i] = v[idx]
	}
	return out
}
