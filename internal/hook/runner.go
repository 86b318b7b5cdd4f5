package hook

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Runner executes the handlers registered for a hook. Both disciplines run on
// the calling goroutine: one mutation's hook stages complete before the
// caller proceeds, and handlers within one stage run strictly one after
// another in registration order.
type Runner struct {
	reg *Registry
	log hclog.Logger
}

// NewRunner creates a runner over a registry.
func NewRunner(reg *Registry, log hclog.Logger) *Runner {
	return &Runner{
		reg: reg,
		log: log.Named("hook"),
	}
}

// Chain feeds the mutation through every transform registered for the hook,
// in registration order. The first error aborts the chain and propagates to
// the caller, so the underlying store operation is never attempted. With zero
// handlers the mutation passes through unchanged.
func (r *Runner) Chain(ctx context.Context, name Name, mut *Mutation) error {
	for _, reg := range r.reg.transformsFor(name) {
		if err := reg.handler(ctx, mut); err != nil {
			r.log.Debug("transform vetoed mutation",
				"hook", string(name),
				"source", reg.source,
				"kind", mut.Kind.String(),
				"error", err)
			return fmt.Errorf("hook %s (%s): %w", name, reg.source, err)
		}
	}

	return nil
}

// Notify dispatches the event to every notifier registered for the hook, in
// registration order. A failing handler is logged with the hook name and its
// source and never prevents later handlers from running; nothing propagates
// to the caller. The mutation these notifications describe has already
// committed and must not be undone by a notification failure.
func (r *Runner) Notify(ctx context.Context, ev Event) {
	name := ev.EventName()

	var errs *multierror.Error
	for _, reg := range r.reg.notifiersFor(name) {
		if err := reg.handler(ctx, ev); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", reg.source, err))
			r.log.Error("notification handler failed",
				"hook", string(name),
				"source", reg.source,
				"error", err)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		r.log.Warn("notification completed with failures",
			"hook", string(name),
			"failed", errs.Len(),
			"errors", err)
	}
}
