package device

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Prober reports which devices are present on the host.
type Prober interface {
	// Count returns the number of usable devices of kind k.
	Count(k Kind) int
	// Describe returns a human readable description of the default device of kind k.
	Describe(k Kind) string
}

type systemProber struct {
	once sync.Once
	cuda gpuInfo
	wgpu gpuInfo
}

type gpuInfo struct {
	count int
	desc  string
}

var system = &systemProber{}

// SystemProber returns the process-wide prober. Accelerators are probed once,
// on first use.
func SystemProber() Prober {
	return system
}

func (p *systemProber) probe() {
	p.once.Do(func() {
		p.cuda.count, p.cuda.desc = probeCUDA()
		p.wgpu.count, p.wgpu.desc = probeWebGPU()
	})
}

func (p *systemProber) Count(k Kind) int {
	switch k {
	case CPU:
		return 1
	case CUDA:
		p.probe()
		return p.cuda.count
	case WebGPU:
		p.probe()
		return p.wgpu.count
	}
	return 0
}

func (p *systemProber) Describe(k Kind) string {
	switch k {
	case CPU:
		return describeCPU()
	case CUDA:
		p.probe()
		return p.cuda.desc
	case WebGPU:
		p.probe()
		return p.wgpu.desc
	}
	return ""
}

func describeCPU() string {
	name := cpuid.CPU.BrandName
	if name == "" {
		name = runtime.GOARCH
	}
	simd := "scalar"
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		simd = "avx512"
	case cpuid.CPU.Supports(cpuid.AVX2):
		simd = "avx2"
	case cpuid.CPU.Supports(cpuid.ASIMD):
		simd = "neon"
	}
	return fmt.Sprintf("%s (%d cores, %d threads, %s)",
		name, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, simd)
}

// Report describes every device kind as seen by p.
type Report struct {
	Kind        Kind
	Count       int
	Description string
}

// Survey probes every kind and returns one report per kind, CPU first.
func Survey(p Prober) []Report {
	if p == nil {
		p = SystemProber()
	}
	out := make([]Report, 0, 3)
	for _, k := range []Kind{CPU, CUDA, WebGPU} {
		out = append(out, Report{Kind: k, Count: p.Count(k), Description: p.Describe(k)})
	}
	return out
}
