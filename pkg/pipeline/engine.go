package pipeline

import (
	"context"
	"time"

	"github.com/siteforge/siteforge/pkg/telemetry"
)

// Transition describes one successful state change. It is handed to the
// engine's Notifier exactly once per persisted transition.
type Transition struct {
	// EntityID identifies the entity that changed state.
	EntityID string `json:"entity_id"`

	// Stage is the stage that completed.
	Stage string `json:"stage"`

	// From is the state before the stage ran.
	From State `json:"from"`

	// To is the newly persisted state.
	To State `json:"to"`

	// At is when the transition was persisted.
	At time.Time `json:"at"`
}

// Notifier receives successful transitions. It is invoked after the new
// state has been durably persisted, never before, and never on failure.
type Notifier func(Transition)

// Engine executes one pipeline definition against entities of type E.
//
// The engine performs exactly one side effect of its own: after a step fully
// succeeds it persists the stage's successor state through the StateStore.
// Everything else (network calls, working copies, rendered files) belongs to
// the steps. If a step fails, the engine re-raises the failure unchanged and
// leaves persisted state byte-for-byte as it was.
type Engine[E Entity] struct {
	def     *Definition[E]
	store   StateStore
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	notify  Notifier
	locks   *keyedMutex
}

// Option configures an Engine.
type Option[E Entity] func(*Engine[E])

// WithLogger attaches a structured logger to the engine.
func WithLogger[E Entity](log *telemetry.Logger) Option[E] {
	return func(e *Engine[E]) { e.log = log.NewComponentLogger("pipeline") }
}

// WithMetrics attaches stage metrics to the engine.
func WithMetrics[E Entity](m *telemetry.Metrics) Option[E] {
	return func(e *Engine[E]) { e.metrics = m }
}

// WithTracer attaches a tracer; each stage execution becomes a span.
func WithTracer[E Entity](t *telemetry.Tracer) Option[E] {
	return func(e *Engine[E]) { e.tracer = t }
}

// WithNotifier attaches a transition observer. The notifier fires exactly
// once per successful persist, carrying the entity ID and the new state.
func WithNotifier[E Entity](n Notifier) Option[E] {
	return func(e *Engine[E]) { e.notify = n }
}

// NewEngine creates an engine for the given definition and state store.
func NewEngine[E Entity](def *Definition[E], store StateStore, opts ...Option[E]) *Engine[E] {
	e := &Engine[E]{
		def:   def,
		store: store,
		log:   telemetry.NopLogger(),
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Definition returns the pipeline definition the engine executes.
func (e *Engine[E]) Definition() *Definition[E] { return e.def }

// CurrentState returns the entity's persisted state and refreshes the
// entity's in-memory view. Read-only; intended for display.
func (e *Engine[E]) CurrentState(ctx context.Context, entity E) (State, error) {
	state, err := e.store.GetState(ctx, entity.EntityID())
	if err != nil {
		return "", err
	}
	entity.SetState(state)
	return state, nil
}

// ApplyStage executes the named stage against the entity.
//
// It confirms the stage's declared predecessor state equals the entity's
// persisted state, confirms all required parameters are present, runs the
// step, and on success persists the successor state. Any step failure
// propagates unchanged with no state mutation.
func (e *Engine[E]) ApplyStage(ctx context.Context, entity E, stageName string, params Params) error {
	id := entity.EntityID()

	unlock := e.locks.Lock(id)
	defer unlock()

	stage, ok := e.def.StageNamed(stageName)
	if !ok {
		return NewUnknownStage(stageName).WithEntity(id)
	}

	current, err := e.store.GetState(ctx, id)
	if err != nil {
		return err
	}
	entity.SetState(current)

	if stage.From != current {
		return NewOutOfOrder(stage.Name, stage.From, current).WithEntity(id)
	}

	for _, req := range stage.Requires {
		if _, supplied := params.Get(req); !supplied {
			return NewMissingParameter(stage.Name, req).WithEntity(id)
		}
	}

	log := e.log.WithEntity(id).WithStage(stage.Name)
	log.Debug("executing stage")

	ctx, span := e.tracer.Start(ctx, "pipeline.stage."+stage.Name)
	started := time.Now()
	err = stage.Step.Execute(ctx, entity, params)
	elapsed := time.Since(started)
	span.End()

	if err != nil {
		e.metrics.ObserveStage(stage.Name, "failure", elapsed)
		e.metrics.IncFailure(string(kindOf(err)))
		log.WithError(err).Error("stage failed, state unchanged")
		return err
	}

	if err := e.store.CompareAndSetState(ctx, id, stage.From, stage.To); err != nil {
		e.metrics.ObserveStage(stage.Name, "failure", elapsed)
		log.WithError(err).Error("failed to persist state transition")
		return err
	}
	entity.SetState(stage.To)

	e.metrics.ObserveStage(stage.Name, "success", elapsed)
	log.WithField("state", string(stage.To)).Info("stage completed")

	if e.notify != nil {
		e.notify(Transition{
			EntityID: id,
			Stage:    stage.Name,
			From:     stage.From,
			To:       stage.To,
			At:       time.Now().UTC(),
		})
	}
	return nil
}

// Advance computes the single next stage whose predecessor state equals the
// entity's persisted state and applies it. Returns a terminal-state failure
// if the entity has already completed the pipeline.
func (e *Engine[E]) Advance(ctx context.Context, entity E, params Params) error {
	current, err := e.store.GetState(ctx, entity.EntityID())
	if err != nil {
		return err
	}
	entity.SetState(current)

	if current == e.def.Terminal() {
		return NewTerminalState(current).WithEntity(entity.EntityID())
	}

	stage, ok := e.def.StageFrom(current)
	if !ok {
		return NewUnknownStage(string(current)).WithEntity(entity.EntityID())
	}

	// ApplyStage re-reads state under the entity lock, so a concurrent
	// caller advancing the same entity is caught as out-of-order there.
	return e.ApplyStage(ctx, entity, stage.Name, params)
}

// RunToCompletion repeatedly advances the entity until the terminal state is
// reached or a stage fails. On failure it stops immediately and propagates
// the failure; the entity's state remains at the last completed stage, so a
// later call with corrected parameters resumes from there.
func (e *Engine[E]) RunToCompletion(ctx context.Context, entity E, params Params) error {
	for range e.def.Stages() {
		current, err := e.store.GetState(ctx, entity.EntityID())
		if err != nil {
			return err
		}
		if current == e.def.Terminal() {
			entity.SetState(current)
			return nil
		}
		if err := e.Advance(ctx, entity, params); err != nil {
			return err
		}
	}

	// Every stage applied once; the loop bound equals the stage count, so
	// the entity is terminal here unless the definition was invalid.
	current, err := e.store.GetState(ctx, entity.EntityID())
	if err != nil {
		return err
	}
	entity.SetState(current)
	return nil
}
