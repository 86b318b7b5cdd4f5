package change

import (
	"slices"
	"strings"

	"github.com/dirpipe/dirpipe/internal/hook"
)

// ComputeDeltas combines a modify request's add/replace/delete clauses with
// the captured pre-image to produce a per-attribute before/after map. A nil
// slice on either side encodes absence: Old == nil means the attribute was
// added, New == nil means it was removed entirely.
func ComputeDeltas(pre map[string][]string, cs *hook.ChangeSet) map[string]hook.Delta {
	deltas := make(map[string]hook.Delta)
	if cs == nil {
		return deltas
	}

	for attr, values := range cs.Replace {
		deltas[attr] = hook.Delta{
			Old: lookupAttr(pre, attr),
			New: slices.Clone(values),
		}
	}

	for attr, values := range cs.Add {
		old := lookupAttr(pre, attr)
		added := slices.Clone(values)
		if old != nil {
			added = append(slices.Clone(old), values...)
		}
		deltas[attr] = hook.Delta{Old: old, New: added}
	}

	for attr, values := range cs.Delete {
		old := lookupAttr(pre, attr)
		deltas[attr] = hook.Delta{
			Old: old,
			New: removeValues(old, values),
		}
	}

	return deltas
}

// lookupAttr finds an attribute in the pre-image case-insensitively, per
// LDAP attribute descriptor matching. Returns nil when absent.
func lookupAttr(pre map[string][]string, attr string) []string {
	if values, ok := pre[attr]; ok {
		return slices.Clone(values)
	}

	for name, values := range pre {
		if strings.EqualFold(name, attr) {
			return slices.Clone(values)
		}
	}

	return nil
}

// removeValues applies a delete clause to the pre-image value list. An empty
// clause removes the attribute entirely; otherwise only the named values are
// removed. A result with no values left collapses to nil (absent).
func removeValues(old, toRemove []string) []string {
	if len(toRemove) == 0 {
		return nil
	}

	remaining := make([]string, 0, len(old))
	for _, v := range old {
		removed := false
		for _, r := range toRemove {
			if strings.EqualFold(v, r) {
				removed = true
				break
			}
		}
		if !removed {
			remaining = append(remaining, v)
		}
	}

	if len(remaining) == 0 {
		return nil
	}
	return remaining
}
