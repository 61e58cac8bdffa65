// Package pipeline implements the provisioning pipeline engine: a strictly
// linear state machine over a durable per-entity state field.
//
// A pipeline is described by a Definition, an ordered list of stages. Each
// stage names a transition (From -> To), declares the runtime parameters it
// requires, and binds a single Step that performs the side-effecting work.
// The Engine executes stages one at a time: it validates the requested
// transition against the entity's persisted state, runs the step, and only
// after the step fully succeeds persists the successor state. A failing step
// leaves persisted state untouched, so every stage is safely retryable.
//
// Pipelines are linear rather than DAGs on purpose. Every known workflow is
// a dependency chain where each step's side effects are prerequisites for
// the next, so the schedule is encoded directly in the state enumeration and
// is trivially resumable after a crash by re-reading the persisted state.
package pipeline
