package engine

import (
	"github.com/born-ml/born/tensor"
	"github.com/gopots/gopots/internal/device"
)

// Replicated marks a module placed on several devices. born has no
// multi-device scheduler, so every call runs on the primary device; the
// wrapper keeps the placement and lets checkpoints store the plain module.
type Replicated struct {
	inner     Module
	placement device.Placement
}

// Replicate wraps m for p.
func Replicate(m Module, p device.Placement) *Replicated {
	return &Replicated{inner: m, placement: p}
}

// Unwrap returns the wrapped module.
func (r *Replicated) Unwrap() Module { return r.inner }

// Placement returns the devices the module was replicated to.
func (r *Replicated) Placement() device.Placement { return r.placement }

func (r *Replicated) Forward(x *Tensor) *Tensor { return r.inner.Forward(x) }

func (r *Replicated) Parameters() []*Parameter { return r.inner.Parameters() }

func (r *Replicated) StateDict() map[string]*tensor.RawTensor {
	return r.inner.StateDict()
}

func (r *Replicated) LoadStateDict(m map[string]*tensor.RawTensor) error {
	return r.inner.LoadStateDict(m)
}
