package hook

import (
	"context"
	"fmt"
	"sync"
)

// Transform is a chained handler. It may rewrite the mutation in place; a
// non-nil error vetoes the whole mutation before the store operation runs.
type Transform func(ctx context.Context, mut *Mutation) error

// Notifier is a fire-and-forget handler. Errors are logged by the runner and
// never propagated to the caller.
type Notifier func(ctx context.Context, ev Event) error

// registration pairs a handler with the extension that registered it, for
// ordering diagnostics and error attribution.
type registration[H any] struct {
	source  string
	handler H
}

// Registry is the process-wide table mapping hook names to ordered handler
// lists. It is populated during startup and sealed before the first mutation;
// handlers are invoked in registration order and can never be removed.
//
// The registry is constructed explicitly and passed to every component, never
// held in package-level state, so tests can build isolated instances.
type Registry struct {
	mu         sync.RWMutex
	sealed     bool
	transforms map[Name][]registration[Transform]
	notifiers  map[Name][]registration[Notifier]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transforms: make(map[Name][]registration[Transform]),
		notifiers:  make(map[Name][]registration[Notifier]),
	}
}

// OnTransform appends a chained transform for the named hook. source names
// the registering extension. Registering after Seal is a startup programming
// error and panics.
func (r *Registry) OnTransform(name Name, source string, fn Transform) {
	if fn == nil {
		panic(fmt.Sprintf("hook: nil transform registered for %q by %s", name, source))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		panic(fmt.Sprintf("hook: transform registered for %q by %s after registry was sealed", name, source))
	}

	r.transforms[name] = append(r.transforms[name], registration[Transform]{source: source, handler: fn})
}

// OnNotify appends a fire-and-forget notifier for the named hook.
func (r *Registry) OnNotify(name Name, source string, fn Notifier) {
	if fn == nil {
		panic(fmt.Sprintf("hook: nil notifier registered for %q by %s", name, source))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		panic(fmt.Sprintf("hook: notifier registered for %q by %s after registry was sealed", name, source))
	}

	r.notifiers[name] = append(r.notifiers[name], registration[Notifier]{source: source, handler: fn})
}

// Seal freezes the registry. Called once when startup registration is
// complete; after this, lookups need no locking discipline beyond the
// read lock and registration panics.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// transformsFor returns the ordered transform list for a hook. Absence of
// registrations yields an empty list, never an error.
func (r *Registry) transformsFor(name Name) []registration[Transform] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transforms[name]
}

// notifiersFor returns the ordered notifier list for a hook.
func (r *Registry) notifiersFor(name Name) []registration[Notifier] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notifiers[name]
}

// HandlerCount returns the number of handlers bound to a hook, both kinds
// combined. Used for startup diagnostics.
func (r *Registry) HandlerCount(name Name) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transforms[name]) + len(r.notifiers[name])
}
