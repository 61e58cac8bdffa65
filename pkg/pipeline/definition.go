package pipeline

import "fmt"

// Stage is one named unit of pipeline work: a state transition bound to a
// capability step and the runtime parameters the step requires.
type Stage[E Entity] struct {
	// Name is the unique stage name, e.g. "create_repo".
	Name string

	// From is the state the entity must be in for this stage to run.
	From State

	// To is the state persisted after the step succeeds.
	To State

	// Requires lists the parameter names that must be present in the
	// caller-supplied Params for this stage.
	Requires []string

	// Step performs the stage's side-effecting work.
	Step Step[E]
}

// Definition is the fixed ordered list of stages for one provisioning
// workflow. It is immutable once built. Stage order defines a total order on
// valid state transitions: every non-terminal state has exactly one
// predecessor and one successor.
type Definition[E Entity] struct {
	initial  State
	terminal State
	stages   []Stage[E]
	byName   map[string]int
	byFrom   map[State]int
}

// NewDefinition builds and validates a pipeline definition. The stages must
// form a single linear chain from initial to terminal: the first stage's
// From is initial, each stage's From equals the previous stage's To, and the
// last stage's To is terminal. Names and states must be unique.
func NewDefinition[E Entity](initial, terminal State, stages []Stage[E]) (*Definition[E], error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline definition needs at least one stage")
	}

	byName := make(map[string]int, len(stages))
	byFrom := make(map[State]int, len(stages))

	expect := initial
	for i, st := range stages {
		if st.Name == "" {
			return nil, fmt.Errorf("stage %d has no name", i)
		}
		if st.Step == nil {
			return nil, fmt.Errorf("stage %q has no step", st.Name)
		}
		if _, dup := byName[st.Name]; dup {
			return nil, fmt.Errorf("duplicate stage name %q", st.Name)
		}
		if st.From != expect {
			return nil, fmt.Errorf("stage %q breaks the chain: from %q, want %q", st.Name, st.From, expect)
		}
		if _, dup := byFrom[st.From]; dup {
			return nil, fmt.Errorf("duplicate predecessor state %q", st.From)
		}
		byName[st.Name] = i
		byFrom[st.From] = i
		expect = st.To
	}

	if expect != terminal {
		return nil, fmt.Errorf("last stage ends in %q, want terminal state %q", expect, terminal)
	}

	return &Definition[E]{
		initial:  initial,
		terminal: terminal,
		stages:   stages,
		byName:   byName,
		byFrom:   byFrom,
	}, nil
}

// Initial returns the pipeline's initial state.
func (d *Definition[E]) Initial() State { return d.initial }

// Terminal returns the pipeline's terminal state.
func (d *Definition[E]) Terminal() State { return d.terminal }

// Stages returns the ordered stage list.
func (d *Definition[E]) Stages() []Stage[E] { return d.stages }

// StageNamed returns the stage with the given name.
func (d *Definition[E]) StageNamed(name string) (Stage[E], bool) {
	i, ok := d.byName[name]
	if !ok {
		return Stage[E]{}, false
	}
	return d.stages[i], true
}

// StageFrom returns the single stage whose predecessor state is from.
func (d *Definition[E]) StageFrom(from State) (Stage[E], bool) {
	i, ok := d.byFrom[from]
	if !ok {
		return Stage[E]{}, false
	}
	return d.stages[i], true
}
