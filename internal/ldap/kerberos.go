package ldap

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// performKerberosAuth performs GSSAPI/Kerberos authentication on a directory
// connection. Credential sources are tried in order: explicit credential
// cache, keytab, bind password.
func performKerberosAuth(conn *ldap.Conn, cfg *ConnectionConfig, serverInfo *ServerInfo) error {
	if cfg.KerberosRealm == "" {
		return fmt.Errorf("kerberos realm is required for GSSAPI authentication")
	}

	gssapiClient, err := newGSSAPIClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, serverInfo)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// newGSSAPIClient creates a GSSAPI client from the configured credentials.
func newGSSAPIClient(cfg *ConnectionConfig) (ldap.GSSAPIClient, error) {
	krb5confPath := cfg.KerberosConfig
	if krb5confPath == "" {
		krb5confPath = "/etc/krb5.conf"
	}

	if !fileExists(krb5confPath) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s; "+
			"create it or point kerberos_config at a valid krb5.conf", krb5confPath)
	}

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		return gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5confPath,
			krb5client.DisablePAFXFAST(true))
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		return gssapi.NewClientWithKeytab(principalName(cfg.BindDN), cfg.KerberosRealm,
			cfg.KerberosKeytab, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if cfg.BindDN != "" && cfg.BindPassword != "" {
		return gssapi.NewClientWithPassword(principalName(cfg.BindDN), cfg.KerberosRealm,
			cfg.BindPassword, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no usable kerberos credentials: need a credential cache, keytab, or bind password")
}

// buildServicePrincipal derives the ldap/<host> SPN for the target server.
func buildServicePrincipal(cfg *ConnectionConfig, serverInfo *ServerInfo) (string, error) {
	host := ""
	if serverInfo != nil {
		host = serverInfo.Host
	}
	if host == "" {
		host = cfg.Domain
	}
	if host == "" {
		return "", fmt.Errorf("no server host available for service principal")
	}

	return "ldap/" + strings.ToLower(host), nil
}

// principalName strips a realm suffix from a user@REALM style bind identity.
func principalName(bindDN string) string {
	if idx := strings.IndexByte(bindDN, '@'); idx >= 0 {
		return bindDN[:idx]
	}
	return bindDN
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
