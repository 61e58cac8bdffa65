// Package lifecycle keeps a managed application's recorded existence in
// sync with the orchestrator's truth. It is a small state machine over
// {unbuilt, present, missing}: build actions move an app towards present,
// and inspection polls detect and repair drift in either direction.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/siteforge/siteforge/pkg/orchestrator"
)

// State is a recorded lifecycle state. It is a cache of last-known truth,
// never authoritative over a successful fresh poll.
type State string

const (
	// StateUnbuilt means the application has never been created on the
	// orchestrator. Initial.
	StateUnbuilt State = "unbuilt"

	// StatePresent means the last known-good observation has the
	// application existing: either we just created it, or the orchestrator
	// confirmed it.
	StatePresent State = "present"

	// StateMissing means the orchestrator was polled and reported the
	// application absent.
	StateMissing State = "missing"
)

// Validate checks the state is one of the known values.
func (s State) Validate() error {
	switch s {
	case StateUnbuilt, StatePresent, StateMissing:
		return nil
	default:
		return fmt.Errorf("invalid lifecycle state: %s", s)
	}
}

// ManagedApp is an application whose existence on the orchestrator siteforge
// manages. Its lifecycle state is owned by the Reconciler; the provisioning
// pipeline never touches it.
type ManagedApp struct {
	// ID is the stable application identifier.
	ID string `json:"id"`

	// Name is the human-readable application name.
	Name string `json:"name"`

	// Slug is the orchestrator application identifier.
	Slug string `json:"slug"`

	// CPUs is the CPU share allocated to each instance.
	CPUs float64 `json:"cpus"`

	// Mem is the memory allocation in MiB.
	Mem float64 `json:"mem"`

	// Instances is the number of instances to run.
	Instances int `json:"instances"`

	// Cmd is the command each instance runs.
	Cmd string `json:"cmd"`

	// CreatedAt is when the application record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the application record was last updated.
	UpdatedAt time.Time `json:"updated_at"`

	// State is the recorded lifecycle state.
	State State `json:"state"`
}

// Spec builds the orchestrator resource specification for the application.
func (a *ManagedApp) Spec() orchestrator.AppSpec {
	return orchestrator.AppSpec{
		ID:        a.Slug,
		CPUs:      a.CPUs,
		Mem:       a.Mem,
		Instances: a.Instances,
		Cmd:       a.Cmd,
	}
}
