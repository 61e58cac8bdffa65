package pipeline

import "context"

// State is a named pipeline state. Each pipeline defines its own enumeration:
// an initial state before the first stage, one state per completed stage, and
// a terminal state after the last.
type State string

// Entity is the thing being provisioned. Concrete entities (a project, a
// managed application) carry their own domain attributes; the engine only
// needs a stable identifier and access to the in-memory state field.
//
// The in-memory state is a view of the persisted state: the engine refreshes
// it from the StateStore before validating a transition and updates it after
// a successful persist.
type Entity interface {
	// EntityID returns the stable identifier of the entity.
	EntityID() string

	// State returns the entity's in-memory pipeline state.
	State() State

	// SetState replaces the entity's in-memory pipeline state.
	SetState(State)
}

// Params carries the caller-supplied named values for one invocation, such
// as an access token. The engine validates presence of declared parameters
// and passes them through to the step; it never stores them.
type Params map[string]string

// Get returns the named parameter and whether it was supplied.
func (p Params) Get(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

// StateStore is the durable record of an entity's current state. The engine
// is the only writer during pipeline execution; external layers read it for
// display.
//
// CompareAndSetState must be atomic with respect to concurrent accessors of
// the same entity: it persists to only if the stored state still equals
// from, and reports a conflict otherwise. Combined with the engine's
// per-entity lock this guarantees two concurrent callers can never both
// commit the same transition.
type StateStore interface {
	GetState(ctx context.Context, entityID string) (State, error)
	CompareAndSetState(ctx context.Context, entityID string, from, to State) error
}

// Step is a single named unit of side-effecting work bound to a stage. It
// either succeeds or reports a classified failure; it produces no structured
// output beyond "done".
//
// A step may perform network or filesystem I/O and must be safe to re-invoke
// from scratch if the engine never recorded its success. Idempotency, where
// required, is the step author's responsibility: a "create repo" step must
// tolerate or detect "already exists".
type Step[E Entity] interface {
	Execute(ctx context.Context, entity E, params Params) error
}

// StepFunc adapts a function to the Step interface.
type StepFunc[E Entity] func(ctx context.Context, entity E, params Params) error

// Execute implements Step.
func (f StepFunc[E]) Execute(ctx context.Context, entity E, params Params) error {
	return f(ctx, entity, params)
}
