/*
Package ldap implements the directory-store client used by the mutation
pipeline.

The package wraps github.com/go-ldap/ldap/v3 with:

  - Connection pooling with periodic health checks and automatic failover
  - SRV-based server discovery with static URL override
  - Automatic retry with exponential backoff for transient failures
  - Simple bind, GSSAPI/Kerberos and external (certificate) authentication
  - A structured error taxonomy (LDAPError) that classifies permission,
    not-found, conflict and transient conditions
  - Distinguished-name helpers with RDN-boundary-correct ancestry checks

The Directory interface is the surface the rest of the system consumes:
Search, Add, Modify, Rename and Delete, all treated as black-box remote
calls. The Client interface adds connection lifecycle on top.

All types are safe for concurrent use; the pool serializes access to the
underlying connections.
*/
package ldap
