package island

import (
	"context"

	"go.uber.org/zap"

	"github.com/zenith/hydra/internal/bridge"
	"github.com/zenith/hydra/internal/core/mailbox"
	"github.com/zenith/hydra/internal/dom"
)

// Host supplies the timing signals the strategies wait on. Every method
// returns a cancel func; callbacks run on the loop goroutine.
type Host interface {
	RequestFrame(fn func()) (cancel func())
	RequestIdle(fn func()) (cancel func())
	ObserveVisible(el dom.Element, fn func()) (cancel func())
	OnInteraction(el dom.Element, fn func()) (cancel func())
}

// Context is what an execution target receives for one activation.
//
// Activate runs off the loop goroutine. Anything touching Scope or the
// element must go through Do.
type Context struct {
	ID    string
	Scope *bridge.Scope
	Data  map[string]any
	Log   *zap.Logger

	mailbox *mailbox.Mailbox
}

// NewContext builds the activation context the orchestrator hands to
// targets. Exposed for runners that activate islands themselves.
func NewContext(id string, scope *bridge.Scope, data map[string]any, mb *mailbox.Mailbox, log *zap.Logger) Context {
	if log == nil {
		log = zap.NewNop()
	}
	return Context{ID: id, Scope: scope, Data: data, Log: log, mailbox: mb}
}

// Do runs fn on the loop goroutine and waits for it.
func (c Context) Do(ctx context.Context, fn func() error) error {
	return c.mailbox.Call(ctx, fn)
}

// Target activates islands of one execution type.
type Target interface {
	Activate(ctx context.Context, el dom.Element, d Descriptor, hc Context) error
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, el dom.Element, d Descriptor, hc Context) error

func (f TargetFunc) Activate(ctx context.Context, el dom.Element, d Descriptor, hc Context) error {
	return f(ctx, el, d, hc)
}

// Targets dispatches activation by execution type.
type Targets map[ExecType]Target

// Verifier checks an island's proof against its public data.
type Verifier interface {
	VerifyProof(ctx context.Context, proof string, publicData map[string]any) (bool, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, proof string, publicData map[string]any) (bool, error)

func (f VerifierFunc) VerifyProof(ctx context.Context, proof string, publicData map[string]any) (bool, error) {
	return f(ctx, proof, publicData)
}
