// Package hook implements the extension-point registry and the two
// invocation disciplines of the mutation pipeline: chained transforms, which
// may rewrite or veto a pending mutation, and fire-and-forget notifiers,
// whose failures are logged but never surfaced.
package hook

// Name identifies one extension point. The set is fixed; extensions bind to
// these names at startup and the registry is sealed before traffic starts.
type Name string

// Mutation stage hooks. Pre-* hooks run as chained transforms before the
// store operation; post-* hooks run as fire-and-forget notifiers after it.
const (
	PreAdd     Name = "pre-add"
	PostAdd    Name = "post-add"
	PreModify  Name = "pre-modify"
	PostModify Name = "post-modify"
	PreDelete  Name = "pre-delete"
	PostDelete Name = "post-delete"
	PreRename  Name = "pre-rename"
	PostRename Name = "post-rename"
)

// Semantic change events, raised by the change-diff engine.
const (
	EntryChanged       Name = "entry-changed"
	IdentifierChanged  Name = "identifier-changed"
	QuotaChanged       Name = "quota-changed"
	AliasesChanged     Name = "aliases-changed"
	DisplayNameChanged Name = "display-name-changed"
)

// Kind enumerates the mutation kinds the pipeline carries.
type Kind int

const (
	KindAdd Kind = iota
	KindModify
	KindDelete
	KindRename
)

// String returns the mutation kind name.
func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindModify:
		return "modify"
	case KindDelete:
		return "delete"
	case KindRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ChangeSet is the union of a modify request's add/replace/delete clauses.
// A nil or empty value slice under Delete removes the attribute entirely; a
// non-empty slice removes only those exact values.
type ChangeSet struct {
	Add     map[string][]string
	Replace map[string][]string
	Delete  map[string][]string
}

// IsEmpty reports whether the change set carries no clauses.
func (cs *ChangeSet) IsEmpty() bool {
	return cs == nil || (len(cs.Add) == 0 && len(cs.Replace) == 0 && len(cs.Delete) == 0)
}

// Mutation is the payload threaded through the chained pre-* hooks of one
// directory write. Transforms may rewrite any field; for the delete path,
// rewriting TargetDNs changes the set of DNs the store delete will see. The
// same value is carried into the matching post-* notification, which makes it
// the correlation context linking the two stages of a modify.
type Mutation struct {
	Kind Kind

	// DN is the target of add/modify/rename operations.
	DN string

	// NewDN is the destination of a rename.
	NewDN string

	// TargetDNs is the ordered delete batch. Empty after transforms means no
	// native delete happens at all.
	TargetDNs []string

	// Attributes holds the full attribute set of an add.
	Attributes map[string][]string

	// Changes holds the clauses of a modify.
	Changes *ChangeSet

	// OpID correlates the pre and post stages of a modify. Zero means no
	// correlation was established.
	OpID uint64

	// BatchID tags all log records and events of one delete batch.
	BatchID string
}

// Event is the payload delivered to fire-and-forget notifiers. Concrete
// event types are fixed shapes; extensions must match them exactly to
// interoperate.
type Event interface {
	// EventName returns the hook name this event is delivered on.
	EventName() Name
}

// MutationEvent is delivered on the post-add, post-modify, post-delete and
// post-rename hooks.
type MutationEvent struct {
	Hook     Name
	Mutation *Mutation
}

func (e *MutationEvent) EventName() Name { return e.Hook }

// Delta is the before/after value pair of one attribute. A nil slice encodes
// absence: Old == nil means the attribute was added, New == nil means it was
// removed.
type Delta struct {
	Old []string
	New []string
}

// EntryChangedEvent is the generic per-entry change notification carrying the
// full attribute delta map.
type EntryChangedEvent struct {
	DN     string
	Deltas map[string]Delta
}

func (e *EntryChangedEvent) EventName() Name { return EntryChanged }

// IdentifierChangedEvent reports a change of the configured identifier
// attribute (e.g. mail), with values coerced to single strings.
type IdentifierChangedEvent struct {
	DN  string
	Old string
	New string
}

func (e *IdentifierChangedEvent) EventName() Name { return IdentifierChanged }

// QuotaChangedEvent reports a change of the configured quota attribute, with
// values coerced to integers (unparseable values coerce to 0).
type QuotaChangedEvent struct {
	DN  string
	Old int64
	New int64
}

func (e *QuotaChangedEvent) EventName() Name { return QuotaChanged }

// AliasesChangedEvent reports a change of the configured alias/forwarding
// attribute, with both sides as full value lists.
type AliasesChangedEvent struct {
	DN  string
	Old []string
	New []string
}

func (e *AliasesChangedEvent) EventName() Name { return AliasesChanged }

// DisplayNameChangedEvent reports a change of the derived display name,
// recomputed independently from the old and new sides of the delta.
type DisplayNameChangedEvent struct {
	DN  string
	Old string
	New string
}

func (e *DisplayNameChangedEvent) EventName() Name { return DisplayNameChanged }
