// Package island tracks independently hydrated UI fragments and drives each
// one through loading -> hydrated | error.
//
// The Registry is the bookkeeping: state, execution target and timestamps
// per island. The Orchestrator decides when an island activates (strategy),
// gates activation behind proof verification (trust) and hands the element
// to one of the execution targets.
package island

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/zenith/hydra/internal/dom"
)

var (
	ErrProofVerificationFailed = errors.New("island: proof verification failed")
	ErrActivationFailed        = errors.New("island: activation failed")
	ErrUnknownIsland           = errors.New("island: unknown island")
	ErrInvalidTransition       = errors.New("island: invalid state transition")
	ErrNoTarget                = errors.New("island: no execution target")
	ErrInvalidDescriptor       = errors.New("island: invalid descriptor")
)

// State of one island.
type State string

const (
	StateLoading  State = "loading"
	StateHydrated State = "hydrated"
	StateError    State = "error"
)

// Terminal reports whether s can only be left by a re-trigger.
func (s State) Terminal() bool {
	return s == StateHydrated || s == StateError
}

// ExecType selects where an island's code runs.
type ExecType string

const (
	ExecLocal  ExecType = "local"  // in-process
	ExecRemote ExecType = "remote" // sandboxed context over a socket
	ExecEdge   ExecType = "edge"   // network-adjacent worker over HTTP
)

func (e ExecType) Valid() bool {
	switch e {
	case ExecLocal, ExecRemote, ExecEdge:
		return true
	}
	return false
}

// Strategy selects when activation begins.
type Strategy string

const (
	StrategyImmediate   Strategy = "immediate"   // next frame after registration
	StrategyVisible     Strategy = "visible"     // element enters the viewport
	StrategyInteraction Strategy = "interaction" // first user event on the element
	StrategyIdle        Strategy = "idle"        // host reports idle time
	StrategyManual      Strategy = "manual"      // only Orchestrator.Trigger
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyImmediate, StrategyVisible, StrategyInteraction, StrategyIdle, StrategyManual:
		return true
	}
	return false
}

// TrustLevel is the verification an island requires before it may run.
type TrustLevel string

const (
	TrustNone     TrustLevel = "none"
	TrustSigned   TrustLevel = "signed"
	TrustVerified TrustLevel = "verified"
)

// Rank orders trust levels; unknown levels rank above every known one so
// they can never be satisfied.
func (l TrustLevel) Rank() int {
	switch l {
	case "", TrustNone:
		return 0
	case TrustSigned:
		return 1
	case TrustVerified:
		return 2
	}
	return 3
}

// Keys the orchestrator adds to the public data handed to the verifier.
const (
	PublicIsland = "island"
	PublicEntry  = "entry"
	PublicTrust  = "trust"
)

// Descriptor is what a caller registers.
type Descriptor struct {
	ID         string
	Entry      string // entry point the execution target resolves
	ExecType   ExecType
	Strategy   Strategy
	Trust      TrustLevel
	Proof      string         // opaque proof handed to the verifier
	PublicData map[string]any // public inputs the proof is bound to
	Data       map[string]any // context data passed to the target
	Element    dom.Element
}

// NeedsVerification reports whether activation is gated on the verifier.
func (d Descriptor) NeedsVerification() bool {
	return d.Proof != "" || d.Trust.Rank() > 0
}

// ProofInput returns the public data the proof must be checked against:
// the declared public data plus the island id, entry and required level.
func (d Descriptor) ProofInput() map[string]any {
	in := make(map[string]any, len(d.PublicData)+3)
	maps.Copy(in, d.PublicData)
	in[PublicIsland] = d.ID
	in[PublicEntry] = d.Entry
	level := d.Trust
	if level == "" {
		level = TrustNone
	}
	in[PublicTrust] = string(level)
	return in
}

func (d Descriptor) validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidDescriptor)
	case !d.ExecType.Valid():
		return fmt.Errorf("%w: %s: exec type %q", ErrInvalidDescriptor, d.ID, d.ExecType)
	case !d.Strategy.Valid():
		return fmt.Errorf("%w: %s: strategy %q", ErrInvalidDescriptor, d.ID, d.Strategy)
	case d.Element == nil:
		return fmt.Errorf("%w: %s: no element", ErrInvalidDescriptor, d.ID)
	}
	return nil
}

// Entry is the registry record of one island.
type Entry struct {
	ID           string
	State        State
	ExecType     ExecType
	Strategy     Strategy
	Entry        string
	Data         map[string]any
	Element      dom.Element
	RegisteredAt time.Time
	LastUpdate   time.Time
	Error        string // set only in StateError
}

// Transition is one recorded state change. From is empty on registration
// and To is empty on removal.
type Transition struct {
	ID       string
	ExecType ExecType
	From     State
	To       State
	Error    string
	At       time.Time
}
