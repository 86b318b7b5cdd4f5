package change

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cast"

	"github.com/dirpipe/dirpipe/internal/hook"
	"github.com/dirpipe/dirpipe/internal/ldap"
)

// Mappings binds semantic change events to the attribute names that carry
// them in the deployed schema.
type Mappings struct {
	// IdentifierAttribute is the attribute whose change raises an
	// identifier-changed event (typically mail).
	IdentifierAttribute string

	// QuotaAttribute is the attribute whose change raises a quota-changed
	// event, coerced to an integer.
	QuotaAttribute string

	// AliasAttribute is the attribute whose change raises an aliases-changed
	// event with full value lists.
	AliasAttribute string

	// Display name derivation: DisplayNameAttribute wins when present,
	// otherwise GivenNameAttribute + " " + SurnameAttribute.
	DisplayNameAttribute string
	GivenNameAttribute   string
	SurnameAttribute     string
}

// DefaultMappings returns the conventional inetOrgPerson attribute bindings.
func DefaultMappings() Mappings {
	return Mappings{
		IdentifierAttribute:  "mail",
		QuotaAttribute:       "mailQuota",
		AliasAttribute:       "mailAlias",
		DisplayNameAttribute: "displayName",
		GivenNameAttribute:   "givenName",
		SurnameAttribute:     "sn",
	}
}

// Engine is the change-diff engine. It hooks the modify pipeline twice: a
// pre-modify transform snapshots the target entry into the correlation store,
// and a post-modify notifier consumes the snapshot, computes the attribute
// deltas and fans them out as events.
type Engine struct {
	dir      ldap.Directory
	ops      *Store
	runner   *hook.Runner
	mappings Mappings
	log      hclog.Logger
}

// NewEngine creates a change-diff engine over a directory and a hook runner.
func NewEngine(dir ldap.Directory, ops *Store, runner *hook.Runner, mappings Mappings, log hclog.Logger) *Engine {
	return &Engine{
		dir:      dir,
		ops:      ops,
		runner:   runner,
		mappings: mappings,
		log:      log.Named("change"),
	}
}

// Register binds the engine to the pre-modify and post-modify hooks.
func (e *Engine) Register(reg *hook.Registry) {
	reg.OnTransform(hook.PreModify, "change-diff", e.snapshot)
	reg.OnNotify(hook.PostModify, "change-diff", e.diffAndNotify)
}

// snapshot captures the pre-image of the entry about to be modified. The
// entry must match exactly once; zero or multiple matches skip the capture
// but never block the modify itself.
func (e *Engine) snapshot(ctx context.Context, mut *hook.Mutation) error {
	if mut.Kind != hook.KindModify {
		return nil
	}

	result, err := e.dir.Search(ctx, &ldap.SearchRequest{
		BaseDN:     mut.DN,
		Scope:      ldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"*"},
		SizeLimit:  2,
		TimeLimit:  10 * time.Second,
	})
	if err != nil {
		e.log.Warn("pre-image read failed, skipping capture",
			"dn", mut.DN,
			"error", err)
		return nil
	}

	if len(result.Entries) != 1 {
		e.log.Warn("pre-image read did not match exactly one entry, skipping capture",
			"dn", mut.DN,
			"matches", len(result.Entries))
		return nil
	}

	entry := result.Entries[0]
	attrs := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		attrs[attr.Name] = slices.Clone(attr.Values)
	}

	id := e.ops.Begin()
	e.ops.Capture(id, &PreImage{
		DN:         entry.DN,
		Attributes: attrs,
		CapturedAt: time.Now(),
	})
	mut.OpID = id

	e.log.Trace("pre-image captured",
		"dn", mut.DN,
		"op_id", id,
		"attributes", len(attrs))

	return nil
}

// diffAndNotify runs on post-modify. It consumes the pre-image for the
// mutation's operation id, computes the deltas and raises the generic and
// semantic events. Every failure here is logged and suppressed: the modify
// has already committed.
func (e *Engine) diffAndNotify(ctx context.Context, ev hook.Event) error {
	me, ok := ev.(*hook.MutationEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T on %s", ev, ev.EventName())
	}
	mut := me.Mutation

	if mut.OpID == 0 {
		e.log.Warn("no operation id on modify, skipping diff", "dn", mut.DN)
		return nil
	}

	img, ok := e.ops.Consume(mut.OpID)
	if !ok {
		e.log.Warn("no pre-image for operation, skipping diff",
			"dn", mut.DN,
			"op_id", mut.OpID)
		return nil
	}

	deltas := ComputeDeltas(img.Attributes, mut.Changes)
	if len(deltas) == 0 {
		return nil
	}

	e.runner.Notify(ctx, &hook.EntryChangedEvent{DN: mut.DN, Deltas: deltas})
	e.raiseSemanticEvents(ctx, mut.DN, img, deltas)

	return nil
}

// raiseSemanticEvents maps attribute deltas onto attribute-specific events.
// Each event fires only when the attribute appears in the delta and the two
// sides differ.
func (e *Engine) raiseSemanticEvents(ctx context.Context, dn string, img *PreImage, deltas map[string]hook.Delta) {
	if d, ok := deltaFor(deltas, e.mappings.IdentifierAttribute); ok {
		oldV, newV := firstValue(d.Old), firstValue(d.New)
		if oldV != newV {
			e.runner.Notify(ctx, &hook.IdentifierChangedEvent{DN: dn, Old: oldV, New: newV})
		}
	}

	if d, ok := deltaFor(deltas, e.mappings.QuotaAttribute); ok {
		// Unparseable quota values coerce to 0
		oldQ, newQ := cast.ToInt64(firstValue(d.Old)), cast.ToInt64(firstValue(d.New))
		if oldQ != newQ {
			e.runner.Notify(ctx, &hook.QuotaChangedEvent{DN: dn, Old: oldQ, New: newQ})
		}
	}

	if d, ok := deltaFor(deltas, e.mappings.AliasAttribute); ok {
		if !slices.Equal(d.Old, d.New) {
			e.runner.Notify(ctx, &hook.AliasesChangedEvent{
				DN:  dn,
				Old: slices.Clone(d.Old),
				New: slices.Clone(d.New),
			})
		}
	}

	oldName := e.displayName(img.Attributes, deltas, false)
	newName := e.displayName(img.Attributes, deltas, true)
	if oldName != newName {
		e.runner.Notify(ctx, &hook.DisplayNameChangedEvent{DN: dn, Old: oldName, New: newName})
	}
}

// displayName recomputes the derived display name from one side of the
// delta. This is a pure function of the delta and the pre-image, never a
// directory re-read.
func (e *Engine) displayName(pre map[string][]string, deltas map[string]hook.Delta, newSide bool) string {
	if v := e.sideValue(pre, deltas, e.mappings.DisplayNameAttribute, newSide); v != "" {
		return v
	}

	given := e.sideValue(pre, deltas, e.mappings.GivenNameAttribute, newSide)
	surname := e.sideValue(pre, deltas, e.mappings.SurnameAttribute, newSide)

	return strings.TrimSpace(given + " " + surname)
}

// sideValue resolves an attribute's value on the old or new side of the
// delta; attributes untouched by the modify resolve to their pre-image value
// on both sides.
func (e *Engine) sideValue(pre map[string][]string, deltas map[string]hook.Delta, attr string, newSide bool) string {
	if d, ok := deltaFor(deltas, attr); ok {
		if newSide {
			return firstValue(d.New)
		}
		return firstValue(d.Old)
	}

	return firstValue(lookupAttr(pre, attr))
}

// deltaFor finds a delta by attribute name, case-insensitively.
func deltaFor(deltas map[string]hook.Delta, attr string) (hook.Delta, bool) {
	if attr == "" {
		return hook.Delta{}, false
	}

	if d, ok := deltas[attr]; ok {
		return d, true
	}

	for name, d := range deltas {
		if strings.EqualFold(name, attr) {
			return d, true
		}
	}

	return hook.Delta{}, false
}

// firstValue returns the first value of a multi-valued attribute, or "".
func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
