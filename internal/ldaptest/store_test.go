package ldaptest

import (
	"slices"
	"testing"

	"github.com/dirpipe/dirpipe/internal/ldap"
)

func TestSearchBaseScope(t *testing.T) {
	s := New()
	s.Seed("uid=bob,ou=people,dc=example,dc=com", map[string][]string{
		"uid":  {"bob"},
		"mail": {"bob@example.com"},
	})

	ctx := t.Context()

	result, err := s.Search(ctx, &ldap.SearchRequest{
		BaseDN:     "UID=Bob,OU=People,DC=example,DC=com",
		Scope:      ldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"mail"},
	})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	if len(result.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(result.Entries))
	}

	entry := result.Entries[0]
	if !slices.Equal(entry.GetAttributeValues("mail"), []string{"bob@example.com"}) {
		t.Errorf("mail = %v", entry.GetAttributeValues("mail"))
	}
	if len(entry.GetAttributeValues("uid")) != 0 {
		t.Error("attribute selection leaked an unrequested attribute")
	}

	// Missing base classifies as not-found
	_, err = s.Search(ctx, &ldap.SearchRequest{
		BaseDN: "uid=ghost,ou=people,dc=example,dc=com",
		Scope:  ldap.ScopeBaseObject,
	})
	if !ldap.IsNotFoundError(err) {
		t.Errorf("missing base error = %v, want not-found", err)
	}
}

func TestSearchSubtreeScope(t *testing.T) {
	s := New()
	s.Seed("ou=people,dc=example,dc=com", map[string][]string{"ou": {"people"}})
	s.Seed("uid=a,ou=people,dc=example,dc=com", map[string][]string{"uid": {"a"}})
	s.Seed("uid=b,ou=staff,ou=people,dc=example,dc=com", map[string][]string{"uid": {"b"}})
	s.Seed("uid=c,ou=groups,dc=example,dc=com", map[string][]string{"uid": {"c"}})

	result, err := s.Search(t.Context(), &ldap.SearchRequest{
		BaseDN: "ou=people,dc=example,dc=com",
		Scope:  ldap.ScopeWholeSubtree,
	})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	if len(result.Entries) != 3 {
		t.Errorf("entries = %d, want base plus two descendants", len(result.Entries))
	}
}

func TestRenameMovesEntry(t *testing.T) {
	s := New()
	s.Seed("uid=bob,ou=people,dc=example,dc=com", map[string][]string{
		"uid":  {"bob"},
		"mail": {"bob@example.com"},
	})

	err := s.Rename(t.Context(), &ldap.RenameRequest{
		DN:           "uid=bob,ou=people,dc=example,dc=com",
		NewRDN:       "uid=bob",
		NewSuperior:  "ou=trash,dc=example,dc=com",
		DeleteOldRDN: true,
	})
	if err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}

	if s.Exists("uid=bob,ou=people,dc=example,dc=com") {
		t.Error("source entry still exists")
	}

	attrs := s.Attributes("uid=bob,ou=trash,dc=example,dc=com")
	if attrs == nil {
		t.Fatal("target entry missing")
	}
	if !slices.Equal(attrs["mail"], []string{"bob@example.com"}) {
		t.Errorf("mail = %v, attributes must move with the entry", attrs["mail"])
	}
	if !slices.Equal(attrs["uid"], []string{"bob"}) {
		t.Errorf("uid = %v", attrs["uid"])
	}
}

func TestRenameTargetConflicts(t *testing.T) {
	s := New()
	s.Seed("uid=bob,ou=people,dc=example,dc=com", map[string][]string{"uid": {"bob"}})
	s.Seed("uid=bob,ou=trash,dc=example,dc=com", map[string][]string{"uid": {"bob"}})

	err := s.Rename(t.Context(), &ldap.RenameRequest{
		DN:          "uid=bob,ou=people,dc=example,dc=com",
		NewRDN:      "uid=bob",
		NewSuperior: "ou=trash,dc=example,dc=com",
	})
	if !ldap.IsConflictError(err) {
		t.Errorf("error = %v, want conflict", err)
	}
}

func TestDeleteRefusesNonLeaf(t *testing.T) {
	s := New()
	s.Seed("ou=people,dc=example,dc=com", map[string][]string{"ou": {"people"}})
	s.Seed("uid=bob,ou=people,dc=example,dc=com", map[string][]string{"uid": {"bob"}})

	err := s.Delete(t.Context(), "ou=people,dc=example,dc=com")
	if !ldap.IsConflictError(err) {
		t.Errorf("error = %v, want conflict for a non-leaf delete", err)
	}

	if err := s.Delete(t.Context(), "uid=bob,ou=people,dc=example,dc=com"); err != nil {
		t.Errorf("leaf delete failed: %v", err)
	}
	if err := s.Delete(t.Context(), "ou=people,dc=example,dc=com"); err != nil {
		t.Errorf("delete after leaf removal failed: %v", err)
	}
}

func TestModifyDeleteSemantics(t *testing.T) {
	s := New()
	dn := "uid=bob,ou=people,dc=example,dc=com"
	s.Seed(dn, map[string][]string{
		"mailAlias": {"a@example.com", "b@example.com"},
		"mail":      {"bob@example.com"},
	})

	// Value-specific delete keeps the rest
	err := s.Modify(t.Context(), &ldap.ModifyRequest{
		DN:               dn,
		DeleteAttributes: map[string][]string{"mailAlias": {"a@example.com"}},
	})
	if err != nil {
		t.Fatalf("Modify() failed: %v", err)
	}
	if !slices.Equal(s.Attributes(dn)["mailAlias"], []string{"b@example.com"}) {
		t.Errorf("mailAlias = %v", s.Attributes(dn)["mailAlias"])
	}

	// Empty clause removes the attribute entirely
	err = s.Modify(t.Context(), &ldap.ModifyRequest{
		DN:               dn,
		DeleteAttributes: map[string][]string{"mail": nil},
	})
	if err != nil {
		t.Fatalf("Modify() failed: %v", err)
	}
	if _, ok := s.Attributes(dn)["mail"]; ok {
		t.Error("mail attribute should be removed")
	}
}
