// Package ldaptest provides an in-memory Directory implementation for
// tests. It mimics the remote store's visible semantics: DN-keyed entries,
// case-insensitive attribute names, and result-code errors that classify
// through the error taxonomy. It does not enforce parent existence or
// schema, so tests can seed arbitrary subtrees.
package ldaptest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/dirpipe/dirpipe/internal/ldap"
)

// Store is an in-memory ldap.Directory.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry          // keyed by normalized DN
	fail    map[string]error           // operation name -> forced error
	ops     []string                   // operation log: "delete uid=bob,..."
}

type entry struct {
	dn    string // original casing
	attrs map[string][]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
		fail:    make(map[string]error),
	}
}

// Seed inserts an entry directly, bypassing operation logging and forced
// errors. It panics on an invalid DN so broken fixtures fail loudly.
func (s *Store) Seed(dn string, attrs map[string][]string) {
	key, err := ldap.NormalizeDN(dn)
	if err != nil {
		panic(fmt.Sprintf("ldaptest: invalid seed DN %q: %v", dn, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{dn: dn, attrs: cloneAttrs(attrs)}
}

// FailWith forces every subsequent call of the named operation ("search",
// "add", "modify", "rename", "delete") to return err. Pass a nil err to
// clear the failure.
func (s *Store) FailWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Exists reports whether an entry is present.
func (s *Store) Exists(dn string) bool {
	key, err := ldap.NormalizeDN(dn)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Attributes returns a copy of an entry's attributes, or nil if absent.
func (s *Store) Attributes(dn string) map[string][]string {
	key, err := ldap.NormalizeDN(dn)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	return cloneAttrs(e.attrs)
}

// Operations returns the log of mutating operations in call order.
func (s *Store) Operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ops)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Search implements ldap.Directory. Filters are not evaluated; scope and
// attribute selection are.
func (s *Store) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail["search"]; err != nil {
		return nil, err
	}

	base, err := ldap.NormalizeDN(req.BaseDN)
	if err != nil {
		return nil, goldap.NewError(goldap.LDAPResultInvalidDNSyntax, err)
	}

	var matched []*entry
	switch req.Scope {
	case ldap.ScopeBaseObject:
		e, ok := s.entries[base]
		if !ok {
			return nil, goldap.NewError(goldap.LDAPResultNoSuchObject, fmt.Errorf("no such object: %s", req.BaseDN))
		}
		matched = append(matched, e)
	default:
		for _, e := range s.entries {
			within, err := ldap.IsWithin(e.dn, req.BaseDN)
			if err != nil {
				continue
			}
			if req.Scope == ldap.ScopeSingleLevel {
				parent, err := ldap.ParentDN(e.dn)
				within = err == nil && parent != "" && mustEqualDN(parent, req.BaseDN)
			}
			if within {
				matched = append(matched, e)
			}
		}
		if len(matched) == 0 {
			// Subtree search requires at least the base to exist
			if _, ok := s.entries[base]; !ok {
				return nil, goldap.NewError(goldap.LDAPResultNoSuchObject, fmt.Errorf("no such object: %s", req.BaseDN))
			}
		}
	}

	result := &ldap.SearchResult{}
	for _, e := range matched {
		if req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit {
			result.HasMore = true
			break
		}
		result.Entries = append(result.Entries, goldap.NewEntry(e.dn, selectAttrs(e.attrs, req.Attributes)))
	}
	result.Total = len(result.Entries)
	return result, nil
}

// Add implements ldap.Directory.
func (s *Store) Add(ctx context.Context, req *ldap.AddRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail["add"]; err != nil {
		return err
	}

	key, err := ldap.NormalizeDN(req.DN)
	if err != nil {
		return goldap.NewError(goldap.LDAPResultInvalidDNSyntax, err)
	}
	if _, ok := s.entries[key]; ok {
		return goldap.NewError(goldap.LDAPResultEntryAlreadyExists, fmt.Errorf("entry already exists: %s", req.DN))
	}

	s.entries[key] = &entry{dn: req.DN, attrs: cloneAttrs(req.Attributes)}
	s.ops = append(s.ops, "add "+req.DN)
	return nil
}

// Modify implements ldap.Directory. A nil or empty value slice under a
// delete key removes the attribute entirely.
func (s *Store) Modify(ctx context.Context, req *ldap.ModifyRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail["modify"]; err != nil {
		return err
	}

	e, err := s.lookup(req.DN)
	if err != nil {
		return err
	}

	for attr, vals := range req.AddAttributes {
		name := e.attrName(attr)
		e.attrs[name] = append(e.attrs[name], vals...)
	}
	for attr, vals := range req.ReplaceAttributes {
		delete(e.attrs, e.attrName(attr))
		e.attrs[attr] = slices.Clone(vals)
	}
	for attr, vals := range req.DeleteAttributes {
		name := e.attrName(attr)
		if len(vals) == 0 {
			delete(e.attrs, name)
			continue
		}
		remaining := slices.DeleteFunc(slices.Clone(e.attrs[name]), func(v string) bool {
			return slices.ContainsFunc(vals, func(d string) bool { return strings.EqualFold(d, v) })
		})
		if len(remaining) == 0 {
			delete(e.attrs, name)
		} else {
			e.attrs[name] = remaining
		}
	}

	s.ops = append(s.ops, "modify "+req.DN)
	return nil
}

// Rename implements ldap.Directory.
func (s *Store) Rename(ctx context.Context, req *ldap.RenameRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail["rename"]; err != nil {
		return err
	}

	e, err := s.lookup(req.DN)
	if err != nil {
		return err
	}

	superior := req.NewSuperior
	if superior == "" {
		superior, err = ldap.ParentDN(req.DN)
		if err != nil {
			return goldap.NewError(goldap.LDAPResultInvalidDNSyntax, err)
		}
	}

	newDN := req.NewRDN
	if superior != "" {
		newDN = req.NewRDN + "," + superior
	}
	newKey, err := ldap.NormalizeDN(newDN)
	if err != nil {
		return goldap.NewError(goldap.LDAPResultInvalidDNSyntax, err)
	}
	if _, ok := s.entries[newKey]; ok {
		return goldap.NewError(goldap.LDAPResultEntryAlreadyExists, fmt.Errorf("entry already exists: %s", newDN))
	}

	oldKey, _ := ldap.NormalizeDN(req.DN)
	oldRDN, _ := ldap.FirstRDN(req.DN)

	delete(s.entries, oldKey)
	if req.DeleteOldRDN {
		removeRDNValue(e, oldRDN)
	}
	applyRDNValue(e, req.NewRDN)
	e.dn = newDN
	s.entries[newKey] = e

	s.ops = append(s.ops, fmt.Sprintf("rename %s -> %s", req.DN, newDN))
	return nil
}

// Delete implements ldap.Directory. Deleting an entry with children fails,
// matching server behavior.
func (s *Store) Delete(ctx context.Context, dn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail["delete"]; err != nil {
		return err
	}

	key, err := ldap.NormalizeDN(dn)
	if err != nil {
		return goldap.NewError(goldap.LDAPResultInvalidDNSyntax, err)
	}
	if _, ok := s.entries[key]; !ok {
		return goldap.NewError(goldap.LDAPResultNoSuchObject, fmt.Errorf("no such object: %s", dn))
	}

	for _, e := range s.entries {
		descendant, err := ldap.IsDescendant(e.dn, dn)
		if err == nil && descendant {
			return goldap.NewError(goldap.LDAPResultNotAllowedOnNonLeaf, fmt.Errorf("entry has children: %s", dn))
		}
	}

	delete(s.entries, key)
	s.ops = append(s.ops, "delete "+dn)
	return nil
}

func (s *Store) lookup(dn string) (*entry, error) {
	key, err := ldap.NormalizeDN(dn)
	if err != nil {
		return nil, goldap.NewError(goldap.LDAPResultInvalidDNSyntax, err)
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, goldap.NewError(goldap.LDAPResultNoSuchObject, fmt.Errorf("no such object: %s", dn))
	}
	return e, nil
}

// attrName returns the stored casing of an attribute name, or the given
// name if the attribute is not present.
func (e *entry) attrName(attr string) string {
	for name := range e.attrs {
		if strings.EqualFold(name, attr) {
			return name
		}
	}
	return attr
}

func cloneAttrs(attrs map[string][]string) map[string][]string {
	out := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		out[k] = slices.Clone(v)
	}
	return out
}

// selectAttrs applies the requested attribute selection. "*" selects all
// attributes, "1.1" selects none.
func selectAttrs(attrs map[string][]string, requested []string) map[string][]string {
	if len(requested) == 0 || slices.Contains(requested, "*") {
		return cloneAttrs(attrs)
	}
	if slices.Contains(requested, "1.1") {
		return map[string][]string{}
	}

	out := make(map[string][]string)
	for name, vals := range attrs {
		if slices.ContainsFunc(requested, func(r string) bool { return strings.EqualFold(r, name) }) {
			out[name] = slices.Clone(vals)
		}
	}
	return out
}

func removeRDNValue(e *entry, rdn string) {
	attr, value, ok := strings.Cut(rdn, "=")
	if !ok {
		return
	}
	name := e.attrName(attr)
	remaining := slices.DeleteFunc(slices.Clone(e.attrs[name]), func(v string) bool {
		return strings.EqualFold(v, value)
	})
	if len(remaining) == 0 {
		delete(e.attrs, name)
	} else {
		e.attrs[name] = remaining
	}
}

func applyRDNValue(e *entry, rdn string) {
	attr, value, ok := strings.Cut(rdn, "=")
	if !ok {
		return
	}
	name := e.attrName(attr)
	if !slices.ContainsFunc(e.attrs[name], func(v string) bool { return strings.EqualFold(v, value) }) {
		e.attrs[name] = append(e.attrs[name], value)
	}
}

func mustEqualDN(a, b string) bool {
	eq, err := ldap.EqualDN(a, b)
	return err == nil && eq
}
