package device

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type fakeProber map[Kind]int

func (f fakeProber) Count(k Kind) int {
	if k == CPU {
		return 1
	}
	return f[k]
}

func (f fakeProber) Describe(k Kind) string { return k.String() + " test device" }

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Device
		err  error
	}{
		{"cpu", Device{CPU, -1}, nil},
		{"CUDA", Device{CUDA, -1}, nil},
		{"cuda:1", Device{CUDA, 1}, nil},
		{" webgpu:0 ", Device{WebGPU, 0}, nil},
		{"tpu", Device{}, ErrInvalidDevice},
		{"cuda:-1", Device{}, ErrInvalidDevice},
		{"cuda:x", Device{}, ErrInvalidDevice},
		{"", Device{}, ErrInvalidDevice},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeviceString(t *testing.T) {
	assert.Equal(t, "cpu", Default(CPU).String())
	assert.Equal(t, "cuda:2", Device{CUDA, 2}.String())
}

func TestResolveDefault(t *testing.T) {
	logger, hook := test.NewNullLogger()

	p, err := Resolve(nil, fakeProber{}, logger)
	require.NoError(t, err)
	assert.Equal(t, []Device{Default(CPU)}, p.Devices)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "no device given, using default device", hook.LastEntry().Message)

	p, err = Resolve(nil, fakeProber{WebGPU: 1}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, WebGPU, p.Primary().Kind)

	p, err = Resolve(nil, fakeProber{CUDA: 2, WebGPU: 1}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, CUDA, p.Primary().Kind)
	assert.False(t, p.Parallel())
}

func TestResolveErrors(t *testing.T) {
	gpus := fakeProber{CUDA: 2}
	tests := []struct {
		name string
		spec Spec
		err  error
	}{
		{"empty list", Spec{}, ErrNoDevices},
		{"cpu in multi", Spec{"cpu", "cuda:0"}, ErrMultiDeviceKind},
		{"mixed kinds", Spec{"cuda:0", "webgpu:0"}, ErrMixedDeviceKinds},
		{"duplicate", Spec{"cuda:0", "cuda:0"}, ErrDuplicateDevice},
		{"default equals zero", Spec{"cuda", "cuda:0"}, ErrDuplicateDevice},
		{"index out of range", Spec{"cuda:2"}, ErrAcceleratorUnavailable},
		{"missing kind", Spec{"webgpu"}, ErrAcceleratorUnavailable},
		{"bad id", Spec{"cuda:one"}, ErrInvalidDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.spec, gpus, quietLogger())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}
}

func TestResolveExplicit(t *testing.T) {
	gpus := fakeProber{CUDA: 2}

	p, err := Resolve(Spec{"cpu"}, gpus, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "cpu", p.String())

	p, err = Resolve(Spec{"cuda:0", "cuda:1"}, gpus, quietLogger())
	require.NoError(t, err)
	assert.True(t, p.Parallel())
	assert.Equal(t, "cuda:0,cuda:1", p.String())
	for _, d := range p.Devices {
		assert.Equal(t, p.Primary().Kind, d.Kind)
	}
}

func TestSpecYAML(t *testing.T) {
	var cfg struct {
		Device Spec `yaml:"device"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("device: cuda:1\n"), &cfg))
	assert.Equal(t, Spec{"cuda:1"}, cfg.Device)

	cfg.Device = nil
	require.NoError(t, yaml.Unmarshal([]byte("device: [cuda:0, cuda:1]\n"), &cfg))
	assert.Equal(t, Spec{"cuda:0", "cuda:1"}, cfg.Device)

	cfg.Device = nil
	require.NoError(t, yaml.Unmarshal([]byte("device: []\n"), &cfg))
	assert.NotNil(t, cfg.Device)
	assert.Len(t, cfg.Device, 0)

	cfg.Device = Spec{"cpu"}
	require.NoError(t, yaml.Unmarshal([]byte("device: null\n"), &cfg))
	assert.Nil(t, cfg.Device)

	require.Error(t, yaml.Unmarshal([]byte("device: {a: b}\n"), &cfg))
}

func TestSurvey(t *testing.T) {
	reports := Survey(fakeProber{CUDA: 1})
	require.Len(t, reports, 3)
	assert.Equal(t, CPU, reports[0].Kind)
	assert.Equal(t, 1, reports[1].Count)
	assert.Equal(t, 0, reports[2].Count)
}

func TestSystemProberCPU(t *testing.T) {
	p := SystemProber()
	assert.Equal(t, 1, p.Count(CPU))
	assert.NotEmpty(t, p.Describe(CPU))
}
