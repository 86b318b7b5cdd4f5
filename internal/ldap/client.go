package ldap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

// client implements the Client interface.
type client struct {
	pool   ConnectionPool
	config *ConnectionConfig
	log    hclog.Logger
}

// NewClient creates a new directory client with connection pooling.
func NewClient(log hclog.Logger, config *ConnectionConfig) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	log = log.Named("ldap")

	log.Debug("creating directory client",
		"domain", config.Domain,
		"urls", len(config.URLs),
		"auth_method", config.GetAuthMethod().String(),
		"max_connections", config.MaxConnections)

	pool, err := NewConnectionPool(log, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &client{
		pool:   pool,
		config: config,
		log:    log,
	}, nil
}

// Connect tests initial connectivity.
func (c *client) Connect(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer conn.Close()

	return c.ping(conn)
}

// Close closes the client and all its connections.
func (c *client) Close() error {
	return c.pool.Close()
}

// Search performs a directory search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	start := time.Now()

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(req.DerefAliases),
		req.SizeLimit,
		int(req.TimeLimit.Seconds()),
		false, // TypesOnly
		req.Filter,
		req.Attributes,
		nil, // Controls
	)

	var result *ldap.SearchResult
	err = c.withRetry(ctx, func() error {
		var searchErr error
		result, searchErr = conn.Conn().Search(ldapReq)
		return searchErr
	})

	if err != nil {
		c.log.Debug("search failed",
			"base_dn", req.BaseDN,
			"filter", req.Filter,
			"error", err,
			"duration", time.Since(start).String())
		return nil, WrapError("search", err)
	}

	// If we got exactly the size limit, there might be more results
	hasMore := req.SizeLimit > 0 && len(result.Entries) >= req.SizeLimit

	c.log.Trace("search completed",
		"base_dn", req.BaseDN,
		"filter", req.Filter,
		"entries", len(result.Entries),
		"duration", time.Since(start).String())

	return &SearchResult{
		Entries: result.Entries,
		Total:   len(result.Entries),
		HasMore: hasMore,
	}, nil
}

// Add creates a new directory entry.
func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req == nil {
		return fmt.Errorf("add request cannot be nil")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewAddRequest(req.DN, nil)
	for attr, values := range req.Attributes {
		ldapReq.Attribute(attr, values)
	}

	return c.withRetry(ctx, func() error {
		return conn.Conn().Add(ldapReq)
	})
}

// Modify modifies an existing directory entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return fmt.Errorf("modify request cannot be nil")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewModifyRequest(req.DN, nil)

	for attr, values := range req.AddAttributes {
		ldapReq.Add(attr, values)
	}

	for attr, values := range req.ReplaceAttributes {
		ldapReq.Replace(attr, values)
	}

	for attr, values := range req.DeleteAttributes {
		if len(values) == 0 {
			// Remove the attribute entirely
			ldapReq.Delete(attr, []string{})
		} else {
			ldapReq.Delete(attr, values)
		}
	}

	return c.withRetry(ctx, func() error {
		return conn.Conn().Modify(ldapReq)
	})
}

// Rename moves or renames a directory entry in one server-side operation.
func (c *client) Rename(ctx context.Context, req *RenameRequest) error {
	if req == nil {
		return fmt.Errorf("rename request cannot be nil")
	}

	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	if req.NewRDN == "" {
		return fmt.Errorf("new RDN cannot be empty")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewModifyDNRequest(req.DN, req.NewRDN, req.DeleteOldRDN, req.NewSuperior)

	return c.withRetry(ctx, func() error {
		return conn.Conn().ModifyDN(ldapReq)
	})
}

// Delete removes a directory entry.
func (c *client) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewDelRequest(dn, nil)

	return c.withRetry(ctx, func() error {
		return conn.Conn().Del(ldapReq)
	})
}

// Ping tests connectivity to the directory server.
func (c *client) Ping(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return c.ping(conn)
}

// ping performs the actual liveness probe against the root DSE.
func (c *client) ping(conn *PooledConnection) error {
	searchReq := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 5, false,
		"(objectClass=*)",
		[]string{"namingContexts"},
		nil,
	)

	_, err := conn.Conn().Search(searchReq)
	return err
}

// Stats returns pool statistics.
func (c *client) Stats() PoolStats {
	return c.pool.Stats()
}

// withRetry executes an operation with retry logic.
func (c *client) withRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug("retrying operation",
				"attempt", attempt,
				"max_retries", c.config.MaxRetries,
				"backoff", backoff.String(),
				"last_error", lastErr)
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt == c.config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	c.log.Error("operation failed after all retries exhausted",
		"attempts", c.config.MaxRetries+1,
		"error", lastErr)

	return NewConnectionError("operation failed after retries", false, lastErr)
}

// isRetryableError determines if an error should be retried.
func (c *client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if retryable, ok := err.(RetryableError); ok {
		return retryable.IsRetryable()
	}

	if ldap.IsErrorWithCode(err, ldap.LDAPResultBusy) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultServerDown) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultOperationsError) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") {
		return true
	}

	return false
}
