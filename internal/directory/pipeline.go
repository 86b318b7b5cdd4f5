// Package directory implements the mutation pipeline: every directory write
// runs its chained request hooks, then the store operation, then its
// fire-and-forget done hooks, in that fixed order on the calling goroutine.
package directory

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/dirpipe/dirpipe/internal/hook"
	"github.com/dirpipe/dirpipe/internal/ldap"
)

// Pipeline drives directory mutations through their hook stages. A veto or
// failure in a request hook aborts the mutation before the store operation
// is attempted; done hooks run only after the store operation succeeded.
type Pipeline struct {
	dir   ldap.Directory
	hooks *hook.Runner
	log   hclog.Logger
}

// NewPipeline creates a mutation pipeline over a directory and a hook runner.
func NewPipeline(dir ldap.Directory, hooks *hook.Runner, log hclog.Logger) *Pipeline {
	return &Pipeline{
		dir:   dir,
		hooks: hooks,
		log:   log.Named("directory"),
	}
}

// Add creates an entry. Pre-add transforms may rewrite the target DN and
// attribute set.
func (p *Pipeline) Add(ctx context.Context, dn string, attributes map[string][]string) error {
	mut := &hook.Mutation{
		Kind:       hook.KindAdd,
		DN:         dn,
		Attributes: attributes,
	}

	if err := p.hooks.Chain(ctx, hook.PreAdd, mut); err != nil {
		return err
	}

	if err := p.dir.Add(ctx, &ldap.AddRequest{DN: mut.DN, Attributes: mut.Attributes}); err != nil {
		return ldap.WrapError("add", err)
	}

	p.hooks.Notify(ctx, &hook.MutationEvent{Hook: hook.PostAdd, Mutation: mut})
	return nil
}

// Modify applies a change set to an entry. The same mutation value carries
// the operation id from the pre-modify stage into the post-modify
// notification, correlating the change-diff engine's two call sites.
func (p *Pipeline) Modify(ctx context.Context, dn string, changes *hook.ChangeSet) error {
	mut := &hook.Mutation{
		Kind:    hook.KindModify,
		DN:      dn,
		Changes: changes,
	}

	if err := p.hooks.Chain(ctx, hook.PreModify, mut); err != nil {
		return err
	}

	req := &ldap.ModifyRequest{DN: mut.DN}
	if mut.Changes != nil {
		req.AddAttributes = mut.Changes.Add
		req.ReplaceAttributes = mut.Changes.Replace
		req.DeleteAttributes = mut.Changes.Delete
	}

	if err := p.dir.Modify(ctx, req); err != nil {
		return ldap.WrapError("modify", err)
	}

	p.hooks.Notify(ctx, &hook.MutationEvent{Hook: hook.PostModify, Mutation: mut})
	return nil
}

// Delete removes a batch of entries, strictly in order. Pre-delete
// transforms may shrink the batch (the trash interceptor removes DNs it has
// redirected); the native delete sees only what is left, possibly nothing.
// A failure aborts the remainder of the batch; entries already processed are
// not rolled back.
func (p *Pipeline) Delete(ctx context.Context, dns ...string) error {
	mut := &hook.Mutation{
		Kind:      hook.KindDelete,
		TargetDNs: slices.Clone(dns),
		BatchID:   uuid.NewString(),
	}

	if err := p.hooks.Chain(ctx, hook.PreDelete, mut); err != nil {
		return err
	}

	for _, dn := range mut.TargetDNs {
		if err := p.dir.Delete(ctx, dn); err != nil {
			return fmt.Errorf("delete %s (batch %s): %w", dn, mut.BatchID, ldap.WrapError("delete", err))
		}
	}

	p.hooks.Notify(ctx, &hook.MutationEvent{Hook: hook.PostDelete, Mutation: mut})
	return nil
}

// Rename moves or renames an entry. Pre-rename transforms may rewrite the
// destination DN.
func (p *Pipeline) Rename(ctx context.Context, dn, newDN string) error {
	mut := &hook.Mutation{
		Kind:  hook.KindRename,
		DN:    dn,
		NewDN: newDN,
	}

	if err := p.hooks.Chain(ctx, hook.PreRename, mut); err != nil {
		return err
	}

	newRDN, err := ldap.FirstRDN(mut.NewDN)
	if err != nil {
		return fmt.Errorf("invalid rename target %s: %w", mut.NewDN, err)
	}

	newSuperior, err := ldap.ParentDN(mut.NewDN)
	if err != nil {
		return fmt.Errorf("invalid rename target %s: %w", mut.NewDN, err)
	}

	err = p.dir.Rename(ctx, &ldap.RenameRequest{
		DN:           mut.DN,
		NewRDN:       newRDN,
		NewSuperior:  newSuperior,
		DeleteOldRDN: true,
	})
	if err != nil {
		return ldap.WrapError("rename", err)
	}

	p.hooks.Notify(ctx, &hook.MutationEvent{Hook: hook.PostRename, Mutation: mut})
	return nil
}
