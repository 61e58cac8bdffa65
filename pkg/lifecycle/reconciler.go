package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/siteforge/siteforge/pkg/orchestrator"
	"github.com/siteforge/siteforge/pkg/telemetry"
)

// StateStore is the durable record of an application's lifecycle state.
// SetState must be atomic with respect to concurrent accessors; the
// reconciler additionally serializes its own writes per application.
type StateStore interface {
	GetAppState(ctx context.Context, appID string) (State, error)
	SetAppState(ctx context.Context, appID string, state State) error
}

// Orchestrator is the subset of the orchestrator API the reconciler drives.
// Satisfied by *orchestrator.Client.
type Orchestrator interface {
	CreateApp(ctx context.Context, spec orchestrator.AppSpec) error
	UpdateApp(ctx context.Context, spec orchestrator.AppSpec) error
	RestartApp(ctx context.Context, id string) error
	DestroyApp(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// Change describes one recorded lifecycle state change, handed to the
// reconciler's Notifier after the new state is persisted.
type Change struct {
	// AppID identifies the application.
	AppID string `json:"app_id"`

	// From is the previously recorded state.
	From State `json:"from"`

	// To is the newly recorded state.
	To State `json:"to"`

	// At is when the change was persisted.
	At time.Time `json:"at"`
}

// Notifier receives lifecycle state changes.
type Notifier func(Change)

// Reconciler drives creation of the orchestrator application and corrects
// drift between the recorded state and the orchestrator's truth.
type Reconciler struct {
	store   StateStore
	orch    Orchestrator
	log     *telemetry.Logger
	metrics *telemetry.Metrics
	notify  Notifier

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger attaches a structured logger.
func WithLogger(log *telemetry.Logger) Option {
	return func(r *Reconciler) { r.log = log.NewComponentLogger("lifecycle") }
}

// WithMetrics attaches reconciliation metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithNotifier attaches a state-change observer, invoked once per persisted
// change.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notify = n }
}

// NewReconciler creates a reconciler over the given store and orchestrator.
func NewReconciler(store StateStore, orch Orchestrator, opts ...Option) *Reconciler {
	r := &Reconciler{
		store: store,
		orch:  orch,
		log:   telemetry.NopLogger(),
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build ensures the application exists on the orchestrator. From unbuilt it
// creates the application; from any other state it re-sends the full
// specification as an idempotent update, avoiding duplicate-resource errors
// on retry. On an orchestrator failure the recorded state is untouched.
func (r *Reconciler) Build(ctx context.Context, app *ManagedApp) error {
	unlock := r.lock(app.ID)
	defer unlock()

	current, err := r.store.GetAppState(ctx, app.ID)
	if err != nil {
		return err
	}
	app.State = current

	if current == StateUnbuilt {
		err = r.orch.CreateApp(ctx, app.Spec())
	} else {
		err = r.orch.UpdateApp(ctx, app.Spec())
	}
	if err != nil {
		r.log.WithApp(app.ID).WithError(err).Error("build failed, recorded state unchanged")
		return err
	}

	return r.record(ctx, app, current, StatePresent)
}

// Inspect asks the orchestrator whether the application exists and
// overwrites the recorded state to match, regardless of what was recorded
// before. A failed poll leaves the recorded state untouched: drift
// correction requires a successful fresh observation.
func (r *Reconciler) Inspect(ctx context.Context, app *ManagedApp) (State, error) {
	unlock := r.lock(app.ID)
	defer unlock()

	current, err := r.store.GetAppState(ctx, app.ID)
	if err != nil {
		return "", err
	}
	app.State = current

	r.metrics.IncReconcilePoll()
	exists, err := r.orch.Exists(ctx, app.Slug)
	if err != nil {
		r.log.WithApp(app.ID).WithError(err).Warn("existence poll failed, recorded state unchanged")
		return current, err
	}

	observed := StateMissing
	if exists {
		observed = StatePresent
	}

	if observed != current {
		direction := "disappeared"
		if observed == StatePresent {
			direction = "appeared"
		}
		r.metrics.IncDrift(direction)
		r.log.WithApp(app.ID).
			WithField("recorded", string(current)).
			WithField("observed", string(observed)).
			Warn("drift detected, correcting recorded state")
	}

	if err := r.record(ctx, app, current, observed); err != nil {
		return current, err
	}
	return observed, nil
}

// Restart triggers a rolling restart on the orchestrator. The recorded
// lifecycle state is unaffected.
func (r *Reconciler) Restart(ctx context.Context, app *ManagedApp) error {
	return r.orch.RestartApp(ctx, app.Slug)
}

// Destroy removes the application from the orchestrator and returns it to
// the unbuilt state.
func (r *Reconciler) Destroy(ctx context.Context, app *ManagedApp) error {
	unlock := r.lock(app.ID)
	defer unlock()

	current, err := r.store.GetAppState(ctx, app.ID)
	if err != nil {
		return err
	}
	app.State = current

	if err := r.orch.DestroyApp(ctx, app.Slug); err != nil {
		return err
	}

	return r.record(ctx, app, current, StateUnbuilt)
}

// record persists the new state and fires the notifier when it changed.
func (r *Reconciler) record(ctx context.Context, app *ManagedApp, from, to State) error {
	if from != to {
		if err := r.store.SetAppState(ctx, app.ID, to); err != nil {
			return err
		}
		if r.notify != nil {
			r.notify(Change{AppID: app.ID, From: from, To: to, At: time.Now().UTC()})
		}
	}
	app.State = to
	return nil
}

// lock serializes reconciler work per application identifier, so two
// concurrent polls observing different truths cannot interleave their
// writes.
func (r *Reconciler) lock(appID string) func() {
	r.mu.Lock()
	m, ok := r.locks[appID]
	if !ok {
		m = &sync.Mutex{}
		r.locks[appID] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}
