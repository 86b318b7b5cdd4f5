package ldap

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// SRVDiscovery locates directory servers through DNS SRV records.
type SRVDiscovery struct {
	resolver *net.Resolver
	log      hclog.Logger
}

// NewSRVDiscovery creates a new SRV-based server discovery.
func NewSRVDiscovery(log hclog.Logger) *SRVDiscovery {
	return &SRVDiscovery{
		resolver: net.DefaultResolver,
		log:      log.Named("discovery"),
	}
}

// DiscoverServers finds directory servers for a domain. LDAPS records are
// preferred; plain LDAP records are consulted next, and a conventional
// hostname fallback is used when no SRV records exist at all.
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string) ([]*ServerInfo, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain cannot be empty")
	}

	start := time.Now()

	servers, err := d.lookupSRV(ctx, "ldaps", domain, true)
	if err != nil || len(servers) == 0 {
		d.log.Debug("no ldaps SRV records, trying ldap", "domain", domain)
		servers, err = d.lookupSRV(ctx, "ldap", domain, false)
	}

	if err != nil || len(servers) == 0 {
		d.log.Warn("SRV discovery found no records, using hostname fallback",
			"domain", domain)
		servers = d.fallbackServers(domain)
	}

	sortServersByPriority(servers)

	d.log.Debug("server discovery completed",
		"domain", domain,
		"servers", len(servers),
		"duration", time.Since(start).String())

	return servers, nil
}

// lookupSRV resolves one SRV service for the domain.
func (d *SRVDiscovery) lookupSRV(ctx context.Context, service, domain string, useTLS bool) ([]*ServerInfo, error) {
	_, records, err := d.resolver.LookupSRV(ctx, service, "tcp", domain)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup _%s._tcp.%s failed: %w", service, domain, err)
	}

	servers := make([]*ServerInfo, 0, len(records))
	for _, record := range records {
		servers = append(servers, &ServerInfo{
			Host:     strings.TrimSuffix(record.Target, "."),
			Port:     int(record.Port),
			UseTLS:   useTLS,
			Priority: int(record.Priority),
			Weight:   int(record.Weight),
			Source:   "srv",
		})
	}

	return servers, nil
}

// fallbackServers builds conventional server guesses for a domain.
func (d *SRVDiscovery) fallbackServers(domain string) []*ServerInfo {
	return []*ServerInfo{
		{Host: "ldap." + domain, Port: 636, UseTLS: true, Priority: 0, Weight: 100, Source: "fallback"},
		{Host: domain, Port: 636, UseTLS: true, Priority: 1, Weight: 100, Source: "fallback"},
	}
}

// sortServersByPriority orders servers by SRV priority, then by weight
// (higher weight first within the same priority).
func sortServersByPriority(servers []*ServerInfo) {
	sort.SliceStable(servers, func(i, j int) bool {
		if servers[i].Priority != servers[j].Priority {
			return servers[i].Priority < servers[j].Priority
		}
		return servers[i].Weight > servers[j].Weight
	})
}

// ValidateServerInfo validates server information.
func ValidateServerInfo(server *ServerInfo) error {
	if server == nil {
		return fmt.Errorf("server info cannot be nil")
	}

	if server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", server.Port)
	}

	return nil
}

// ServerInfoToURL converts ServerInfo to an LDAP URL.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}

	return fmt.Sprintf("%s://%s:%d", scheme, server.Host, server.Port)
}

// ParseLDAPURL parses an LDAP URL into ServerInfo.
func ParseLDAPURL(url string) (*ServerInfo, error) {
	if url == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	var useTLS bool
	switch {
	case strings.HasPrefix(url, "ldaps://"):
		useTLS = true
		url = strings.TrimPrefix(url, "ldaps://")
	case strings.HasPrefix(url, "ldap://"):
		url = strings.TrimPrefix(url, "ldap://")
	default:
		return nil, fmt.Errorf("unsupported scheme, must be ldap:// or ldaps://")
	}

	// Strip any path component
	if idx := strings.IndexByte(url, '/'); idx >= 0 {
		url = url[:idx]
	}

	host := url
	port := 389
	if useTLS {
		port = 636
	}

	if idx := strings.LastIndexByte(url, ':'); idx >= 0 {
		host = url[:idx]
		parsed, err := strconv.Atoi(url[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", url[idx+1:])
		}
		port = parsed
	}

	server := &ServerInfo{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
		// Explicitly configured URLs get highest priority
		Priority: 0,
		Weight:   100,
		Source:   "config",
	}

	return server, ValidateServerInfo(server)
}
