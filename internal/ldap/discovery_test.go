package ldap

import (
	"testing"
)

func TestParseLDAPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{
			name:     "plain ldap with default port",
			url:      "ldap://dc1.example.com",
			wantHost: "dc1.example.com",
			wantPort: 389,
		},
		{
			name:     "ldaps with default port",
			url:      "ldaps://dc1.example.com",
			wantHost: "dc1.example.com",
			wantPort: 636,
			wantTLS:  true,
		},
		{
			name:     "explicit port",
			url:      "ldap://dc1.example.com:10389",
			wantHost: "dc1.example.com",
			wantPort: 10389,
		},
		{
			name:     "path component stripped",
			url:      "ldaps://dc1.example.com:636/dc=example,dc=com",
			wantHost: "dc1.example.com",
			wantPort: 636,
			wantTLS:  true,
		},
		{
			name:    "unsupported scheme",
			url:     "http://dc1.example.com",
			wantErr: true,
		},
		{
			name:    "empty",
			url:     "",
			wantErr: true,
		},
		{
			name:    "bad port",
			url:     "ldap://dc1.example.com:notaport",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := ParseLDAPURL(tt.url)

			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLDAPURL(%q) expected error", tt.url)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseLDAPURL(%q) unexpected error: %v", tt.url, err)
			}

			if server.Host != tt.wantHost {
				t.Errorf("Host = %s, want %s", server.Host, tt.wantHost)
			}

			if server.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", server.Port, tt.wantPort)
			}

			if server.UseTLS != tt.wantTLS {
				t.Errorf("UseTLS = %v, want %v", server.UseTLS, tt.wantTLS)
			}
		})
	}
}

func TestServerInfoToURL(t *testing.T) {
	tests := []struct {
		name   string
		server *ServerInfo
		want   string
	}{
		{
			name:   "plain",
			server: &ServerInfo{Host: "dc1.example.com", Port: 389},
			want:   "ldap://dc1.example.com:389",
		},
		{
			name:   "tls",
			server: &ServerInfo{Host: "dc1.example.com", Port: 636, UseTLS: true},
			want:   "ldaps://dc1.example.com:636",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ServerInfoToURL(tt.server); got != tt.want {
				t.Errorf("ServerInfoToURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSortServersByPriority(t *testing.T) {
	servers := []*ServerInfo{
		{Host: "low-weight", Priority: 1, Weight: 10},
		{Host: "secondary", Priority: 2, Weight: 100},
		{Host: "high-weight", Priority: 1, Weight: 90},
		{Host: "primary", Priority: 0, Weight: 50},
	}

	sortServersByPriority(servers)

	wantOrder := []string{"primary", "high-weight", "low-weight", "secondary"}
	for i, want := range wantOrder {
		if servers[i].Host != want {
			t.Errorf("servers[%d] = %s, want %s", i, servers[i].Host, want)
		}
	}
}

func TestValidateServerInfo(t *testing.T) {
	tests := []struct {
		name    string
		server  *ServerInfo
		wantErr bool
	}{
		{
			name:   "valid",
			server: &ServerInfo{Host: "dc1.example.com", Port: 389},
		},
		{
			name:    "nil",
			server:  nil,
			wantErr: true,
		},
		{
			name:    "empty host",
			server:  &ServerInfo{Port: 389},
			wantErr: true,
		},
		{
			name:    "port out of range",
			server:  &ServerInfo{Host: "dc1", Port: 70000},
			wantErr: true,
		},
		{
			name:    "zero port",
			server:  &ServerInfo{Host: "dc1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerInfo(tt.server)

			if tt.wantErr && err == nil {
				t.Error("ValidateServerInfo() expected error")
			}

			if !tt.wantErr && err != nil {
				t.Errorf("ValidateServerInfo() unexpected error: %v", err)
			}
		})
	}
}
