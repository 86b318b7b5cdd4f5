// Package trash implements the soft-delete interceptor. It hooks the
// pre-delete stage and, for entries under a watched branch, atomically
// redirects the delete into a move under a designated trash branch.
package trash

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/dirpipe/dirpipe/internal/hook"
	"github.com/dirpipe/dirpipe/internal/ldap"
)

// Config holds the trash interceptor configuration, loaded once at startup
// and immutable thereafter.
type Config struct {
	// Branch is the DN of the trash sub-tree.
	Branch string

	// WatchedBranches lists the sub-trees whose deletes are intercepted. An
	// empty list intercepts everything outside the trash branch.
	WatchedBranches []string

	// AddMetadata writes a human-readable annotation (timestamp + original
	// DN) onto moved entries, best effort.
	AddMetadata bool

	// AutoCreate creates the trash branch on first use if it is missing.
	AutoCreate bool
}

// Interceptor redirects deletes of watched entries into the trash branch.
type Interceptor struct {
	dir ldap.Directory
	cfg Config
	log hclog.Logger

	// Trash branch existence is ensured exactly once per process lifetime;
	// a failed ensure is sticky and trashing stays unavailable until restart.
	initOnce sync.Once
	initErr  error
}

// New creates a trash interceptor. The branch and watched-branch DNs are
// validated up front so misconfiguration fails at startup, not on the first
// delete.
func New(dir ldap.Directory, cfg Config, log hclog.Logger) (*Interceptor, error) {
	if err := ldap.ValidateDN(cfg.Branch); err != nil {
		return nil, fmt.Errorf("invalid trash branch: %w", err)
	}

	for _, branch := range cfg.WatchedBranches {
		if err := ldap.ValidateDN(branch); err != nil {
			return nil, fmt.Errorf("invalid watched branch %q: %w", branch, err)
		}
	}

	return &Interceptor{
		dir: dir,
		cfg: cfg,
		log: log.Named("trash"),
	}, nil
}

// Register binds the interceptor to the pre-delete hook.
func (t *Interceptor) Register(reg *hook.Registry) {
	reg.OnTransform(hook.PreDelete, "trash", t.intercept)
}

// intercept processes one delete batch, strictly in order. Watched DNs are
// moved to trash and removed from the batch; unwatched DNs pass through to
// the native delete. A failure on an early DN aborts the remainder; DNs
// already trashed stay trashed, there is no compensating rollback.
func (t *Interceptor) intercept(ctx context.Context, mut *hook.Mutation) error {
	if mut.Kind != hook.KindDelete {
		return nil
	}

	passThrough := make([]string, 0, len(mut.TargetDNs))

	for _, dn := range mut.TargetDNs {
		watched, err := t.isWatched(dn)
		if err != nil {
			return fmt.Errorf("watched-branch check for %s: %w", dn, err)
		}

		if !watched {
			passThrough = append(passThrough, dn)
			continue
		}

		if err := t.moveToTrash(ctx, dn); err != nil {
			return err
		}
	}

	mut.TargetDNs = passThrough
	return nil
}

// isWatched decides whether a DN's delete is intercepted. Entries inside the
// trash branch are never intercepted, so trash cleanup deletes cannot
// recurse. Matching is per whole RDN component, never by substring.
func (t *Interceptor) isWatched(dn string) (bool, error) {
	inTrash, err := ldap.IsWithin(dn, t.cfg.Branch)
	if err != nil {
		return false, err
	}
	if inTrash {
		return false, nil
	}

	if len(t.cfg.WatchedBranches) == 0 {
		return true, nil
	}

	for _, branch := range t.cfg.WatchedBranches {
		within, err := ldap.IsWithin(dn, branch)
		if err != nil {
			return false, err
		}
		if within {
			return true, nil
		}
	}

	return false, nil
}

// moveToTrash relocates one entry under the trash branch using the store's
// native rename primitive, so the entry never exists in neither place nor
// both. A stale entry already at the target DN is deleted first: last
// delete wins.
func (t *Interceptor) moveToTrash(ctx context.Context, dn string) error {
	if err := t.ensureBranch(ctx); err != nil {
		return err
	}

	rdn, err := ldap.FirstRDN(dn)
	if err != nil {
		return fmt.Errorf("cannot derive trash target for %s: %w", dn, err)
	}
	target := rdn + "," + t.cfg.Branch

	exists, err := t.entryExists(ctx, target)
	if err != nil {
		return fmt.Errorf("checking for stale trash entry %s: %w", target, err)
	}
	if exists {
		t.log.Debug("overwriting stale trash entry", "trash_dn", target)
		if err := t.dir.Delete(ctx, target); err != nil {
			return fmt.Errorf("removing stale trash entry %s: %w", target, err)
		}
	}

	err = t.dir.Rename(ctx, &ldap.RenameRequest{
		DN:           dn,
		NewRDN:       rdn,
		NewSuperior:  t.cfg.Branch,
		DeleteOldRDN: true,
	})
	if err != nil {
		if ldap.IsPermissionError(err) {
			return fmt.Errorf("moving %s to trash denied: the bind identity needs "+
				"rename rights on the entry and add rights under %s: %w", dn, t.cfg.Branch, err)
		}
		return err
	}

	t.log.Info("entry moved to trash", "dn", dn, "trash_dn", target)

	if t.cfg.AddMetadata {
		t.annotate(ctx, dn, target)
	}

	return nil
}

// annotate writes the deletion annotation onto the moved entry. The entry is
// already safely in trash, so a failure here is logged, not raised.
func (t *Interceptor) annotate(ctx context.Context, originalDN, trashDN string) {
	note := fmt.Sprintf("moved to trash %s from %s",
		time.Now().UTC().Format(time.RFC3339), originalDN)

	err := t.dir.Modify(ctx, &ldap.ModifyRequest{
		DN:                trashDN,
		ReplaceAttributes: map[string][]string{"description": {note}},
	})
	if err != nil {
		t.log.Warn("failed to annotate trashed entry",
			"trash_dn", trashDN,
			"error", err)
	}
}

// ensureBranch verifies the trash branch exists, creating it when auto-create
// is enabled. Runs at most once per process; the outcome is sticky.
func (t *Interceptor) ensureBranch(ctx context.Context) error {
	t.initOnce.Do(func() {
		t.initErr = t.ensure(ctx)
	})

	if t.initErr != nil {
		return fmt.Errorf("trash unavailable: %w", t.initErr)
	}
	return nil
}

func (t *Interceptor) ensure(ctx context.Context) error {
	exists, err := t.entryExists(ctx, t.cfg.Branch)
	if err != nil {
		return fmt.Errorf("checking trash branch %s: %w", t.cfg.Branch, err)
	}
	if exists {
		return nil
	}

	if !t.cfg.AutoCreate {
		return fmt.Errorf("trash branch %s does not exist and auto-create is disabled", t.cfg.Branch)
	}

	rdn, err := ldap.FirstRDN(t.cfg.Branch)
	if err != nil {
		return fmt.Errorf("invalid trash branch DN %s: %w", t.cfg.Branch, err)
	}

	name := rdn
	if _, value, found := strings.Cut(rdn, "="); found {
		name = value
	}

	err = t.dir.Add(ctx, &ldap.AddRequest{
		DN: t.cfg.Branch,
		Attributes: map[string][]string{
			"objectClass": {"top", "organizationalUnit"},
			"ou":          {name},
		},
	})
	if err != nil {
		if ldap.IsPermissionError(err) {
			return fmt.Errorf("creating trash branch %s denied: the bind identity "+
				"needs add rights on the parent container: %w", t.cfg.Branch, err)
		}
		return fmt.Errorf("creating trash branch %s: %w", t.cfg.Branch, err)
	}

	t.log.Info("created trash branch", "dn", t.cfg.Branch)
	return nil
}

// entryExists probes for an entry with a base-scope search. A not-found
// result code counts as absence, not as an error.
func (t *Interceptor) entryExists(ctx context.Context, dn string) (bool, error) {
	result, err := t.dir.Search(ctx, &ldap.SearchRequest{
		BaseDN:     dn,
		Scope:      ldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"1.1"},
		SizeLimit:  1,
		TimeLimit:  10 * time.Second,
	})
	if err != nil {
		if ldap.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}

	return len(result.Entries) > 0, nil
}
