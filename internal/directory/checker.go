package directory

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dirpipe/dirpipe/internal/ldap"
)

// ExistenceChecker verifies directory entries concurrently, capping in-flight
// searches with a weighted semaphore so a large batch cannot exhaust the
// connection pool.
type ExistenceChecker struct {
	dir ldap.Directory
	sem *semaphore.Weighted
	log hclog.Logger
}

// NewExistenceChecker creates a checker allowing at most maxConcurrent
// simultaneous lookups.
func NewExistenceChecker(dir ldap.Directory, maxConcurrent int64, log hclog.Logger) *ExistenceChecker {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ExistenceChecker{
		dir: dir,
		sem: semaphore.NewWeighted(maxConcurrent),
		log: log.Named("checker"),
	}
}

// Missing returns the subset of dns that do not exist in the directory, in
// no particular order. The first lookup failure other than not-found cancels
// the remaining lookups and is returned.
func (c *ExistenceChecker) Missing(ctx context.Context, dns []string) ([]string, error) {
	var (
		mu      sync.Mutex
		missing []string
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, dn := range dns {
		g.Go(func() error {
			if err := c.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer c.sem.Release(1)

			exists, err := c.exists(ctx, dn)
			if err != nil {
				return err
			}
			if !exists {
				mu.Lock()
				missing = append(missing, dn)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return missing, nil
}

func (c *ExistenceChecker) exists(ctx context.Context, dn string) (bool, error) {
	_, err := c.dir.Search(ctx, &ldap.SearchRequest{
		BaseDN:     dn,
		Scope:      ldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"1.1"},
		SizeLimit:  1,
	})
	if err != nil {
		if ldap.IsNotFoundError(err) {
			c.log.Trace("entry not found", "dn", dn)
			return false, nil
		}
		return false, err
	}
	return true, nil
}
