package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Step operations understood by the scenario runner.
const (
	OpAttach       = "attach"
	OpDetach       = "detach"
	OpHasChildren  = "has_children"
	OpChildCount   = "child_count"
	OpChildren     = "children"
	OpProperties   = "properties"
	OpEvent        = "event"
	OpPolicy       = "policy"
	OpAdvance      = "advance"
	OpExpectCalls  = "expect_calls"
	OpExpectValues = "expect_values"
)

// Event kinds accepted by OpEvent.
const (
	EventSuspended         = "suspended"
	EventResumed           = "resumed"
	EventRefresh           = "refresh"
	EventElementEdited     = "element_edited"
	EventPropertiesChanged = "properties_changed"
)

// Scenario is a scripted session against the simulated target: a sequence
// of view requests interleaved with target events.
type Scenario struct {
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
	Policy   string `yaml:"policy"`
	// Sim overrides the environment's target shape when set.
	Sim   *SimSpec `yaml:"sim"`
	Steps []Step   `yaml:"steps"`
}

// SimSpec is the YAML form of Sim.
type SimSpec struct {
	Processes int    `yaml:"processes"`
	Threads   int    `yaml:"threads"`
	Frames    int    `yaml:"frames"`
	Variables int    `yaml:"variables"`
	Latency   string `yaml:"latency"`
}

// Step is one scenario operation. Path is relative to the session input;
// its depth selects the tree level (processes, threads, frames, variables).
type Step struct {
	Op     string   `yaml:"op"`
	Path   []string `yaml:"path"`
	Offset int      `yaml:"offset"`
	Length int      `yaml:"length"`
	Keys   []string `yaml:"keys"`
	Event  string   `yaml:"event"`
	ID     string   `yaml:"id"`
	// Calls is the expected number of source calls since the previous
	// expect_calls step (OpExpectCalls).
	Calls *int `yaml:"calls"`
	// Values are expected property values of the previous properties step
	// (OpExpectValues).
	Values map[string]any `yaml:"values"`
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScenario)
		}
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks every step.
func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScenario)
	}
	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			return fmt.Errorf("%w: step %d (%s): %v", ErrInvalidScenario, i+1, st.Op, err)
		}
	}
	return nil
}

// Apply overlays the non-zero fields of s on base.
func (s *SimSpec) Apply(base Sim) (Sim, error) {
	if s == nil {
		return base, nil
	}
	if s.Processes > 0 {
		base.Processes = s.Processes
	}
	if s.Threads > 0 {
		base.Threads = s.Threads
	}
	if s.Frames > 0 {
		base.Frames = s.Frames
	}
	if s.Variables > 0 {
		base.Variables = s.Variables
	}
	if s.Latency != "" {
		d, err := time.ParseDuration(s.Latency)
		if err != nil {
			return base, fmt.Errorf("%w: sim latency: %v", ErrInvalidScenario, err)
		}
		base.Latency = d
	}
	return base, base.Validate()
}

func (st Step) validate() error {
	switch st.Op {
	case OpAttach, OpDetach, OpAdvance:
		return nil
	case OpHasChildren, OpChildCount:
		return nil
	case OpChildren:
		if st.Offset < 0 && st.Length >= 0 {
			return errors.New("negative offset needs a negative length (all children)")
		}
		return nil
	case OpProperties:
		if len(st.Keys) == 0 {
			return errors.New("no keys")
		}
		return nil
	case OpEvent:
		switch st.Event {
		case EventSuspended, EventResumed, EventRefresh, EventPropertiesChanged:
			return nil
		case EventElementEdited:
			if len(st.Path) == 0 {
				return errors.New("element_edited needs a path")
			}
			return nil
		default:
			return fmt.Errorf("unknown event %q", st.Event)
		}
	case OpPolicy:
		if st.ID == "" {
			return errors.New("no policy id")
		}
		return nil
	case OpExpectCalls:
		if st.Calls == nil {
			return errors.New("no calls")
		}
		return nil
	case OpExpectValues:
		if len(st.Values) == 0 {
			return errors.New("no values")
		}
		return nil
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
}
