package checkpoint

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidStrategy is returned for an unknown saving strategy.
var ErrInvalidStrategy = errors.New("invalid model saving strategy")

// Strategy decides when a model is written to disk automatically.
type Strategy int

const (
	// None never saves automatically.
	None Strategy = iota
	// Best saves once, after training finished, with the best weights.
	Best
	// Better saves every time the monitored loss improves during training.
	Better
)

// ParseStrategy maps "best", "better" and ""/"none"/"null" to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "null":
		return None, nil
	case "best":
		return Best, nil
	case "better":
		return Better, nil
	}
	return None, errors.Wrapf(ErrInvalidStrategy, "%q (want best, better or none)", s)
}

func (s Strategy) String() string {
	switch s {
	case None:
		return "none"
	case Best:
		return "best"
	case Better:
		return "better"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Validate rejects values outside the declared constants.
func (s Strategy) Validate() error {
	if s < None || s > Better {
		return errors.Wrapf(ErrInvalidStrategy, "value %d", int(s))
	}
	return nil
}

// ShouldSave reports whether an auto save is due. Better fires only while
// training is running and Best only once it has finished.
func (s Strategy) ShouldSave(finished bool) bool {
	switch s {
	case Better:
		return !finished
	case Best:
		return finished
	}
	return false
}

// UnmarshalYAML decodes a strategy name.
func (s *Strategy) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("model_saving_strategy: line %d: expected a string", node.Line)
	}
	v, err := ParseStrategy(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalYAML encodes the strategy by name.
func (s Strategy) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}
