package engine

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// MLP is a two-layer perceptron with a ReLU in between, or a single linear
// layer when built without a hidden width.
type MLP struct {
	in, hidden, out int

	fc1  *nn.Linear[Backend]
	relu *nn.ReLU[Backend]
	fc2  *nn.Linear[Backend]
}

// NewMLP builds in -> hidden -> out. hidden <= 0 gives a linear model.
func NewMLP(in, hidden, out int, b Backend) *MLP {
	m := &MLP{in: in, hidden: hidden, out: out}
	if hidden <= 0 {
		m.fc1 = nn.NewLinear(in, out, b)
		return m
	}
	m.fc1 = nn.NewLinear(in, hidden, b)
	m.relu = nn.NewReLU[Backend]()
	m.fc2 = nn.NewLinear(hidden, out, b)
	return m
}

// Forward maps [batch, in] to [batch, out].
func (m *MLP) Forward(x *Tensor) *Tensor {
	h := m.fc1.Forward(x)
	if m.fc2 == nil {
		return h
	}
	return m.fc2.Forward(m.relu.Forward(h))
}

// Parameters returns the weights of every layer.
func (m *MLP) Parameters() []*Parameter {
	params := m.fc1.Parameters()
	if m.fc2 != nil {
		params = append(params, m.fc2.Parameters()...)
	}
	return params
}

// StateDict prefixes layer weights with "fc1." and "fc2.".
func (m *MLP) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for _, l := range m.layers() {
		for k, v := range l.mod.StateDict() {
			state[l.name+"."+k] = v
		}
	}
	return state
}

// LoadStateDict copies weights saved by StateDict.
func (m *MLP) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for _, l := range m.layers() {
		sub := make(map[string]*tensor.RawTensor)
		for _, k := range []string{"weight", "bias"} {
			if v, ok := state[l.name+"."+k]; ok {
				sub[k] = v
			}
		}
		if err := l.mod.LoadStateDict(sub); err != nil {
			return errors.Wrapf(err, "layer %s", l.name)
		}
	}
	return nil
}

type namedLayer struct {
	name string
	mod  *nn.Linear[Backend]
}

func (m *MLP) layers() []namedLayer {
	if m.fc2 == nil {
		return []namedLayer{{"fc1", m.fc1}}
	}
	return []namedLayer{{"fc1", m.fc1}, {"fc2", m.fc2}}
}
