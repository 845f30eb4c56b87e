// Package device resolves user device requests into a concrete placement.
package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Sentinel errors returned by Parse and Resolve.
var (
	ErrInvalidDevice          = errors.New("invalid device")
	ErrNoDevices              = errors.New("empty device list")
	ErrMultiDeviceKind        = errors.New("multiple devices must all be accelerators")
	ErrMixedDeviceKinds       = errors.New("multiple devices must share one accelerator kind")
	ErrDuplicateDevice        = errors.New("device listed more than once")
	ErrAcceleratorUnavailable = errors.New("accelerator not available")
)

// Kind is a device family.
type Kind int

// Supported device kinds.
const (
	CPU Kind = iota
	CUDA
	WebGPU
)

// String returns the lowercase kind name used in device identifiers.
func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	case WebGPU:
		return "webgpu"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Accelerator reports whether the kind is a GPU family.
func (k Kind) Accelerator() bool {
	return k == CUDA || k == WebGPU
}

func parseKind(s string) (Kind, bool) {
	switch s {
	case "cpu":
		return CPU, true
	case "cuda", "gpu":
		return CUDA, true
	case "webgpu", "wgpu":
		return WebGPU, true
	}
	return 0, false
}

// Device is a single compute device. Index -1 selects the default ordinal.
type Device struct {
	Kind  Kind
	Index int
}

// Default returns the default device of kind k.
func Default(k Kind) Device {
	return Device{Kind: k, Index: -1}
}

// String formats the device as "kind" or "kind:index".
func (d Device) String() string {
	if d.Index < 0 {
		return d.Kind.String()
	}
	return d.Kind.String() + ":" + strconv.Itoa(d.Index)
}

// ordinal returns the index the runtime will actually use.
func (d Device) ordinal() int {
	if d.Index < 0 {
		return 0
	}
	return d.Index
}

// Parse parses a device identifier of the form kind[:index].
func Parse(id string) (Device, error) {
	s := strings.ToLower(strings.TrimSpace(id))
	if s == "" {
		return Device{}, errors.Wrap(ErrInvalidDevice, "empty identifier")
	}

	name, idx, hasIdx := strings.Cut(s, ":")
	kind, ok := parseKind(name)
	if !ok {
		return Device{}, errors.Wrapf(ErrInvalidDevice, "unknown device kind %q", id)
	}
	if !hasIdx {
		return Default(kind), nil
	}

	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return Device{}, errors.Wrapf(ErrInvalidDevice, "bad device index in %q", id)
	}
	return Device{Kind: kind, Index: n}, nil
}

// Spec is a user device request. A nil Spec means "not given".
type Spec []string

// UnmarshalYAML accepts either a scalar ("cuda:0") or a sequence of scalars.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = Spec{node.Value}
		return nil
	case yaml.SequenceNode:
		var ids []string
		if err := node.Decode(&ids); err != nil {
			return errors.Wrap(err, "decode device list")
		}
		if ids == nil {
			ids = []string{}
		}
		*s = Spec(ids)
		return nil
	default:
		return errors.Errorf("device: line %d: expected a string or a list of strings", node.Line)
	}
}

// Placement is the resolved, homogeneous set of devices a model runs on.
type Placement struct {
	Devices []Device
}

// Primary returns the first device of the placement.
func (p Placement) Primary() Device {
	if len(p.Devices) == 0 {
		return Default(CPU)
	}
	return p.Devices[0]
}

// Parallel reports whether the placement spans several devices.
func (p Placement) Parallel() bool {
	return len(p.Devices) > 1
}

func (p Placement) String() string {
	ids := make([]string, len(p.Devices))
	for i, d := range p.Devices {
		ids[i] = d.String()
	}
	return strings.Join(ids, ",")
}

// Resolve turns spec into a placement, checking availability against p.
//
// A nil spec selects the first available accelerator (CUDA, then WebGPU)
// and falls back to the CPU. Several devices must be distinct accelerators
// of the same kind.
func Resolve(spec Spec, p Prober, logger logrus.FieldLogger) (Placement, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if p == nil {
		p = SystemProber()
	}

	if spec == nil {
		d := Default(CPU)
		for _, k := range []Kind{CUDA, WebGPU} {
			if p.Count(k) > 0 {
				d = Default(k)
				break
			}
		}
		logger.WithField("device", d.String()).Info("no device given, using default device")
		return Placement{Devices: []Device{d}}, nil
	}
	if len(spec) == 0 {
		return Placement{}, ErrNoDevices
	}

	devices := make([]Device, 0, len(spec))
	for _, id := range spec {
		d, err := Parse(id)
		if err != nil {
			return Placement{}, err
		}
		devices = append(devices, d)
	}

	if len(devices) > 1 {
		seen := make(map[int]bool, len(devices))
		kind := devices[0].Kind
		for _, d := range devices {
			if !d.Kind.Accelerator() {
				return Placement{}, errors.Wrapf(ErrMultiDeviceKind, "got %s", d)
			}
			if d.Kind != kind {
				return Placement{}, errors.Wrapf(ErrMixedDeviceKinds, "%s and %s", kind, d.Kind)
			}
			if seen[d.ordinal()] {
				return Placement{}, errors.Wrapf(ErrDuplicateDevice, "%s", d)
			}
			seen[d.ordinal()] = true
		}
	}

	for _, d := range devices {
		if !d.Kind.Accelerator() {
			continue
		}
		n := p.Count(d.Kind)
		if n == 0 {
			return Placement{}, errors.Wrapf(ErrAcceleratorUnavailable, "no %s device found", d.Kind)
		}
		if d.ordinal() >= n {
			return Placement{}, errors.Wrapf(ErrAcceleratorUnavailable, "%s requested but only %d %s device(s) present", d, n, d.Kind)
		}
	}

	return Placement{Devices: devices}, nil
}
