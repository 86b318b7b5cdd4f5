package trash

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"

	"github.com/dirpipe/dirpipe/internal/hook"
	"github.com/dirpipe/dirpipe/internal/ldaptest"
)

const (
	trashBranch  = "ou=trash,dc=example,dc=com"
	peopleBranch = "ou=people,dc=example,dc=com"
)

func newInterceptor(t *testing.T, store *ldaptest.Store, cfg Config) *Interceptor {
	t.Helper()

	ic, err := New(store, cfg, hclog.NewNullLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return ic
}

func watchedConfig() Config {
	return Config{
		Branch:          trashBranch,
		WatchedBranches: []string{peopleBranch},
		AddMetadata:     true,
		AutoCreate:      true,
	}
}

func deleteMutation(dns ...string) *hook.Mutation {
	return &hook.Mutation{Kind: hook.KindDelete, TargetDNs: slices.Clone(dns)}
}

func TestNewRejectsInvalidDNs(t *testing.T) {
	store := ldaptest.New()

	if _, err := New(store, Config{Branch: "not a dn"}, hclog.NewNullLogger()); err == nil {
		t.Error("New() should reject an invalid trash branch")
	}

	cfg := Config{Branch: trashBranch, WatchedBranches: []string{"garbage"}}
	if _, err := New(store, cfg, hclog.NewNullLogger()); err == nil {
		t.Error("New() should reject an invalid watched branch")
	}
}

func TestInterceptMovesWatchedEntry(t *testing.T) {
	store := ldaptest.New()
	dn := "uid=bob," + peopleBranch
	store.Seed(dn, map[string][]string{
		"objectClass": {"inetOrgPerson"},
		"uid":         {"bob"},
		"mail":        {"bob@example.com"},
	})

	ic := newInterceptor(t, store, watchedConfig())
	mut := deleteMutation(dn)

	if err := ic.intercept(context.Background(), mut); err != nil {
		t.Fatalf("intercept() failed: %v", err)
	}

	// The batch is emptied: the native delete must see nothing
	if len(mut.TargetDNs) != 0 {
		t.Errorf("TargetDNs = %v, want empty after interception", mut.TargetDNs)
	}

	if store.Exists(dn) {
		t.Error("entry still exists at the original DN")
	}

	trashDN := "uid=bob," + trashBranch
	if !store.Exists(trashDN) {
		t.Fatal("entry not found under the trash branch")
	}

	// No native delete of the entry happened, only the stale-check path
	for _, op := range store.Operations() {
		if op == "delete "+dn {
			t.Error("native delete ran for an intercepted entry")
		}
	}

	// Metadata annotation names the origin
	attrs := store.Attributes(trashDN)
	desc := attrs["description"]
	if len(desc) != 1 || !strings.Contains(desc[0], dn) {
		t.Errorf("description = %v, want annotation naming the original DN", desc)
	}
	if !strings.Contains(desc[0], "moved to trash") {
		t.Errorf("description = %v", desc)
	}
}

func TestInterceptPassesThroughUnwatchedEntry(t *testing.T) {
	store := ldaptest.New()
	dn := "cn=admins,ou=groups,dc=example,dc=com"
	store.Seed(dn, map[string][]string{"cn": {"admins"}})

	ic := newInterceptor(t, store, watchedConfig())
	mut := deleteMutation(dn)

	if err := ic.intercept(context.Background(), mut); err != nil {
		t.Fatalf("intercept() failed: %v", err)
	}

	if !slices.Equal(mut.TargetDNs, []string{dn}) {
		t.Errorf("TargetDNs = %v, unwatched DN must pass through", mut.TargetDNs)
	}

	if !store.Exists(dn) {
		t.Error("interceptor must not touch unwatched entries")
	}
}

func TestInterceptMixedBatchPreservesOrder(t *testing.T) {
	store := ldaptest.New()
	watched1 := "uid=bob," + peopleBranch
	unwatched1 := "cn=g1,ou=groups,dc=example,dc=com"
	watched2 := "uid=eve," + peopleBranch
	unwatched2 := "cn=g2,ou=groups,dc=example,dc=com"

	for _, dn := range []string{watched1, watched2} {
		store.Seed(dn, map[string][]string{"uid": {"x"}})
	}
	for _, dn := range []string{unwatched1, unwatched2} {
		store.Seed(dn, map[string][]string{"cn": {"g"}})
	}

	ic := newInterceptor(t, store, watchedConfig())
	mut := deleteMutation(watched1, unwatched1, watched2, unwatched2)

	if err := ic.intercept(context.Background(), mut); err != nil {
		t.Fatalf("intercept() failed: %v", err)
	}

	if !slices.Equal(mut.TargetDNs, []string{unwatched1, unwatched2}) {
		t.Errorf("TargetDNs = %v, pass-through must keep relative order", mut.TargetDNs)
	}

	if !store.Exists("uid=bob,"+trashBranch) || !store.Exists("uid=eve,"+trashBranch) {
		t.Error("watched entries not moved to trash")
	}
}

func TestInterceptSuffixMatchingIsPerRDN(t *testing.T) {
	store := ldaptest.New()

	// RDN text overlap with a watched branch is not membership
	lookalike := "uid=carol,ou=people2,dc=example,dc=com"
	store.Seed(lookalike, map[string][]string{"uid": {"carol"}})

	// An entry whose value contains the trash RDN text is still watched
	trashNamed := "uid=trash-admin," + peopleBranch
	store.Seed(trashNamed, map[string][]string{"uid": {"trash-admin"}})

	ic := newInterceptor(t, store, watchedConfig())
	mut := deleteMutation(lookalike, trashNamed)

	if err := ic.intercept(context.Background(), mut); err != nil {
		t.Fatalf("intercept() failed: %v", err)
	}

	if !slices.Equal(mut.TargetDNs, []string{lookalike}) {
		t.Errorf("TargetDNs = %v, want only the lookalike to pass through", mut.TargetDNs)
	}

	if !store.Exists("uid=trash-admin," + trashBranch) {
		t.Error("uid=trash-admin entry should have been trashed")
	}
}

func TestInterceptNeverRecursesIntoTrash(t *testing.T) {
	store := ldaptest.New()
	store.Seed(trashBranch, map[string][]string{"ou": {"trash"}})
	trashed := "uid=old," + trashBranch
	store.Seed(trashed, map[string][]string{"uid": {"old"}})

	// Empty watched list intercepts everything outside the trash branch,
	// but deletes inside trash always pass through
	cfg := Config{Branch: trashBranch, AutoCreate: true}
	ic := newInterceptor(t, store, cfg)
	mut := deleteMutation(trashed)

	if err := ic.intercept(context.Background(), mut); err != nil {
		t.Fatalf("intercept() failed: %v", err)
	}

	if !slices.Equal(mut.TargetDNs, []string{trashed}) {
		t.Errorf("TargetDNs = %v, trash cleanup must pass through", mut.TargetDNs)
	}
}

func TestInterceptEmptyWatchedListInterceptsEverything(t *testing.T) {
	store := ldaptest.New()
	dn := "cn=thing,ou=misc,dc=example,dc=com"
	store.Seed(dn, map[string][]string{"cn": {"thing"}})

	cfg := Config{Branch: trashBranch, AutoCreate: true}
	ic := newInterceptor(t, store, cfg)
	mut := deleteMutation(dn)

	if err := ic.intercept(context.Background(), mut); err != nil {
		t.Fatalf("intercept() failed: %v", err)
	}

	if len(mut.TargetDNs) != 0 {
		t.Errorf("TargetDNs = %v, want empty", mut.TargetDNs)
	}

	if !store.Exists("cn=thing," + trashBranch) {
		t.Error("entry not moved to trash")
	}
}

func TestInterceptOverwritesStaleTrashEntry(t *testing.T) {
	store := ldaptest.New()
	store.Seed(trashBranch, map[string][]string{"ou": {"trash"}})

	// A previous deletion already left uid=bob in trash
	stale := "uid=bob," + trashBranch
	store.Seed(stale, map[string][]string{"uid": {"bob"}, "mail": {"stale@example.com"}})

	dn := "uid=bob," + peopleBranch
	store.Seed(dn, map[string][]string{"uid": {"bob"}, "mail": {"fresh@example.com"}})

	ic := newInterceptor(t, store, watchedConfig())

	if err := ic.intercept(context.Background(), deleteMutation(dn)); err != nil {
		t.Fatalf("intercept() failed: %v", err)
	}

	attrs := store.Attributes(stale)
	if !slices.Equal(attrs["mail"], []string{"fresh@example.com"}) {
		t.Errorf("mail = %v, the fresh entry must replace the stale one", attrs["mail"])
	}
}

func TestInterceptAutoCreatesBranchOnce(t *testing.T) {
	store := ldaptest.New()
	first := "uid=bob," + peopleBranch
	second := "uid=eve," + peopleBranch
	store.Seed(first, map[string][]string{"uid": {"bob"}})
	store.Seed(second, map[string][]string{"uid": {"eve"}})

	ic := newInterceptor(t, store, watchedConfig())

	if err := ic.intercept(context.Background(), deleteMutation(first)); err != nil {
		t.Fatalf("first intercept failed: %v", err)
	}
	if err := ic.intercept(context.Background(), deleteMutation(second)); err != nil {
		t.Fatalf("second intercept failed: %v", err)
	}

	if !store.Exists(trashBranch) {
		t.Fatal("trash branch was not created")
	}

	adds := 0
	for _, op := range store.Operations() {
		if op == "add "+trashBranch {
			adds++
		}
	}
	if adds != 1 {
		t.Errorf("trash branch created %d times, want 1", adds)
	}

	attrs := store.Attributes(trashBranch)
	if !slices.Contains(attrs["objectClass"], "organizationalUnit") {
		t.Errorf("objectClass = %v", attrs["objectClass"])
	}
	if !slices.Equal(attrs["ou"], []string{"trash"}) {
		t.Errorf("ou = %v, want the RDN value", attrs["ou"])
	}
}

func TestInterceptMissingBranchWithoutAutoCreate(t *testing.T) {
	store := ldaptest.New()
	dn := "uid=bob," + peopleBranch
	store.Seed(dn, map[string][]string{"uid": {"bob"}})

	cfg := watchedConfig()
	cfg.AutoCreate = false
	ic := newInterceptor(t, store, cfg)

	err := ic.intercept(context.Background(), deleteMutation(dn))
	if err == nil {
		t.Fatal("intercept() should fail when the trash branch is missing")
	}
	if !strings.Contains(err.Error(), "trash unavailable") {
		t.Errorf("error = %v", err)
	}

	if !store.Exists(dn) {
		t.Error("entry must survive a failed interception")
	}

	// The ensure outcome is sticky: later deletes fail the same way even
	// if nothing changed in between
	if err := ic.intercept(context.Background(), deleteMutation(dn)); err == nil {
		t.Error("second intercept should hit the sticky ensure failure")
	}
}

func TestInterceptFailureAbortsRemainder(t *testing.T) {
	store := ldaptest.New()
	store.Seed(trashBranch, map[string][]string{"ou": {"trash"}})
	first := "uid=bob," + peopleBranch
	second := "uid=eve," + peopleBranch
	store.Seed(first, map[string][]string{"uid": {"bob"}})
	store.Seed(second, map[string][]string{"uid": {"eve"}})

	ic := newInterceptor(t, store, watchedConfig())

	// First move succeeds, then the store starts failing renames
	if err := ic.intercept(context.Background(), deleteMutation(first)); err != nil {
		t.Fatalf("setup intercept failed: %v", err)
	}

	store.FailWith("rename", goldap.NewError(goldap.LDAPResultUnavailable, errors.New("server down")))

	err := ic.intercept(context.Background(), deleteMutation(second))
	if err == nil {
		t.Fatal("intercept() should surface the rename failure")
	}

	// Already-trashed entries stay trashed, there is no rollback
	if !store.Exists("uid=bob," + trashBranch) {
		t.Error("previously trashed entry disappeared")
	}
	if !store.Exists(second) {
		t.Error("failed entry must remain at its original DN")
	}
}

func TestInterceptPermissionErrorIsActionable(t *testing.T) {
	store := ldaptest.New()
	store.Seed(trashBranch, map[string][]string{"ou": {"trash"}})
	dn := "uid=bob," + peopleBranch
	store.Seed(dn, map[string][]string{"uid": {"bob"}})

	store.FailWith("rename", goldap.NewError(goldap.LDAPResultInsufficientAccessRights, errors.New("denied")))

	ic := newInterceptor(t, store, watchedConfig())

	err := ic.intercept(context.Background(), deleteMutation(dn))
	if err == nil {
		t.Fatal("intercept() should surface the permission failure")
	}
	if !strings.Contains(err.Error(), "rename rights") {
		t.Errorf("error = %v, want guidance naming the required rights", err)
	}
}

func TestInterceptIgnoresNonDeleteMutations(t *testing.T) {
	store := ldaptest.New()
	ic := newInterceptor(t, store, watchedConfig())

	mut := &hook.Mutation{Kind: hook.KindModify, DN: "uid=bob," + peopleBranch}
	if err := ic.intercept(context.Background(), mut); err != nil {
		t.Errorf("intercept() on modify mutation: %v", err)
	}
}

func TestInterceptAnnotationFailureIsSuppressed(t *testing.T) {
	store := ldaptest.New()
	store.Seed(trashBranch, map[string][]string{"ou": {"trash"}})
	dn := "uid=bob," + peopleBranch
	store.Seed(dn, map[string][]string{"uid": {"bob"}})

	store.FailWith("modify", goldap.NewError(goldap.LDAPResultUnwillingToPerform, errors.New("no")))

	ic := newInterceptor(t, store, watchedConfig())

	// The move succeeded; the failed annotation must not fail the delete
	if err := ic.intercept(context.Background(), deleteMutation(dn)); err != nil {
		t.Fatalf("intercept() failed: %v", err)
	}

	if !store.Exists("uid=bob," + trashBranch) {
		t.Error("entry not moved to trash")
	}
}
