package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
)

// MCAR hides a fraction rate of the observed values of ds completely at
// random. The returned dataset keeps the untouched values in XOri so the
// hidden entries can be scored.
func MCAR(ds *Dataset, rate float64, seed uint64) (*Dataset, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if rate < 0 || rate >= 1 || math.IsNaN(rate) {
		return nil, errors.Errorf("missing rate must be in [0, 1), got %v", rate)
	}

	r := rand.New(rand.NewPCG(seed, 0x6d636172))
	out := &Dataset{
		X:     clone3(ds.X),
		XOri:  clone3(ds.X),
		XPred: ds.XPred,
		Y:     ds.Y,
	}
	for _, sample := range out.X {
		for _, row := range sample {
			for f, v := range row {
				if !math.IsNaN(v) && r.Float64() < rate {
					row[f] = math.NaN()
				}
			}
		}
	}
	return out, nil
}

// SyntheticConfig describes a generated dataset.
type SyntheticConfig struct {
	Samples     int
	Steps       int
	Features    int
	Horizon     int
	Classes     int
	MissingRate float64
	Seed        uint64
}

// Synthetic generates noisy sine waves. Each class uses its own base
// frequency, and a fraction MissingRate of X is left unobserved. XPred holds
// the continuation of every series when Horizon > 0.
func Synthetic(cfg SyntheticConfig) (*Dataset, error) {
	if cfg.Samples <= 0 || cfg.Steps <= 0 || cfg.Features <= 0 {
		return nil, errors.Errorf("synthetic: samples, steps and features must be positive, got %d, %d, %d",
			cfg.Samples, cfg.Steps, cfg.Features)
	}
	if cfg.MissingRate < 0 || cfg.MissingRate >= 1 {
		return nil, errors.Errorf("synthetic: missing rate must be in [0, 1), got %v", cfg.MissingRate)
	}
	classes := max(cfg.Classes, 1)
	r := rand.New(rand.NewPCG(cfg.Seed, 0x73796e74))

	ds := &Dataset{X: make([][][]float64, cfg.Samples)}
	if cfg.Classes > 0 {
		ds.Y = make([]int, cfg.Samples)
	}
	if cfg.Horizon > 0 {
		ds.XPred = make([][][]float64, cfg.Samples)
	}

	total := cfg.Steps + cfg.Horizon
	for i := 0; i < cfg.Samples; i++ {
		class := i % classes
		if ds.Y != nil {
			ds.Y[i] = class
		}
		freq := float64(class+1) / float64(cfg.Steps)
		phase := r.Float64() * 2 * math.Pi

		series := make([][]float64, total)
		for t := range series {
			row := make([]float64, cfg.Features)
			for f := range row {
				row[f] = math.Sin(2*math.Pi*freq*float64(t)+phase+0.5*float64(f)) + 0.1*r.NormFloat64()
			}
			series[t] = row
		}
		for _, row := range series[:cfg.Steps] {
			for f := range row {
				if r.Float64() < cfg.MissingRate {
					row[f] = math.NaN()
				}
			}
		}
		ds.X[i] = series[:cfg.Steps]
		if cfg.Horizon > 0 {
			ds.XPred[i] = series[cfg.Steps:]
		}
	}
	return ds, nil
}

// Split moves the last fraction of the samples of ds into a second
// dataset. A zero fraction returns a nil validation set. Slices are shared
// with ds.
func Split(ds *Dataset, fraction float64) (train, val *Dataset, err error) {
	if err := ds.Validate(); err != nil {
		return nil, nil, err
	}
	if fraction < 0 || fraction >= 1 || math.IsNaN(fraction) {
		return nil, nil, errors.Errorf("split fraction must be in [0, 1), got %v", fraction)
	}
	n := ds.NSamples()
	nVal := int(math.Round(float64(n) * fraction))
	if nVal == 0 {
		return ds, nil, nil
	}
	if nVal >= n {
		return nil, nil, errors.Errorf("split of %d samples leaves nothing to train on", n)
	}
	cut := n - nVal
	part := func(lo, hi int) *Dataset {
		d := &Dataset{X: ds.X[lo:hi]}
		if ds.XOri != nil {
			d.XOri = ds.XOri[lo:hi]
		}
		if ds.XPred != nil {
			d.XPred = ds.XPred[lo:hi]
		}
		if ds.Y != nil {
			d.Y = ds.Y[lo:hi]
		}
		return d
	}
	return part(0, cut), part(cut, n), nil
}
