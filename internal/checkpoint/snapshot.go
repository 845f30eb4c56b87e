package checkpoint

import (
	"sort"

	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// StateLoader accepts a state dictionary, as born modules do.
type StateLoader interface {
	LoadStateDict(map[string]*tensor.RawTensor) error
}

// Snapshot is an in-memory deep copy of a state dictionary.
type Snapshot struct {
	state map[string]*tensor.RawTensor
}

// Take copies every tensor of src so later optimizer steps leave the
// snapshot untouched.
func Take(src map[string]*tensor.RawTensor) (*Snapshot, error) {
	state := make(map[string]*tensor.RawTensor, len(src))
	for name, raw := range src {
		c, err := deepCopy(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "snapshot %q", name)
		}
		state[name] = c
	}
	return &Snapshot{state: state}, nil
}

// deepCopy allocates a fresh buffer. RawTensor.Clone shares its buffer and
// optimizers write parameters in place, so a clone would follow training.
func deepCopy(raw *tensor.RawTensor) (*tensor.RawTensor, error) {
	c, err := tensor.NewRaw(raw.Shape().Clone(), raw.DType(), raw.Device())
	if err != nil {
		return nil, err
	}
	copy(c.Data(), raw.Data())
	return c, nil
}

// Restore loads the snapshot into dst.
func (s *Snapshot) Restore(dst StateLoader) error {
	if s == nil {
		return errors.New("restore from empty snapshot")
	}
	return errors.Wrap(dst.LoadStateDict(s.state), "restore snapshot")
}

// Len returns the number of tensors held.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.state)
}

// Names returns the tensor names in sorted order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.state))
	for name := range s.state {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tensor returns the stored copy of name.
func (s *Snapshot) Tensor(name string) (*tensor.RawTensor, bool) {
	if s == nil {
		return nil, false
	}
	raw, ok := s.state[name]
	return raw, ok
}
