package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// NormalizeDN normalizes a Distinguished Name for comparison: attribute type
// descriptors are lowercased and insignificant whitespace between RDN
// components is removed. Attribute values keep their case.
//
// Input:  "CN=John, OU=Users, DC=example, DC=com"
// Output: "cn=John,ou=Users,dc=example,dc=com"
func NormalizeDN(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", nil
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	return joinRDNs(parsed.RDNs), nil
}

// joinRDNs rebuilds a DN string from parsed RDNs with lowercase attribute
// type descriptors.
func joinRDNs(rdns []*ldap.RelativeDN) string {
	rdnStrings := make([]string, 0, len(rdns))

	for _, rdn := range rdns {
		attrStrings := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			attrStrings = append(attrStrings, strings.ToLower(attr.Type)+"="+attr.Value)
		}
		// Multiple attributes in one RDN join with "+"
		rdnStrings = append(rdnStrings, strings.Join(attrStrings, "+"))
	}

	return strings.Join(rdnStrings, ",")
}

// ValidateDN validates that a string is a properly formatted DN.
func ValidateDN(dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	if _, err := ldap.ParseDN(dn); err != nil {
		return fmt.Errorf("invalid DN syntax: %w", err)
	}

	return nil
}

// FirstRDN returns the leading RDN component of a DN, e.g. "uid=bob" for
// "uid=bob,ou=people,dc=example,dc=com".
func FirstRDN(dn string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	if len(parsed.RDNs) == 0 {
		return "", fmt.Errorf("DN has no RDN components: %s", dn)
	}

	return joinRDNs(parsed.RDNs[:1]), nil
}

// ParentDN returns the parent DN by removing the first RDN component.
// "uid=bob,ou=people,dc=x" becomes "ou=people,dc=x".
func ParentDN(dn string) (string, error) {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	if len(parsed.RDNs) <= 1 {
		return "", fmt.Errorf("DN has no parent: %s", dn)
	}

	return joinRDNs(parsed.RDNs[1:]), nil
}

// IsDescendant reports whether dn is a strict descendant of ancestor.
// Comparison is per whole RDN component, never by raw substring, so
// "cn=x,ou=trashcan,dc=x" is not a descendant of "ou=trash,dc=x" and
// "uid=trash-user,ou=people,dc=x" is a descendant of "ou=people,dc=x".
func IsDescendant(dn, ancestor string) (bool, error) {
	if dn == "" || ancestor == "" {
		return false, fmt.Errorf("DNs cannot be empty")
	}

	parsedDN, err := ldap.ParseDN(dn)
	if err != nil {
		return false, fmt.Errorf("invalid DN syntax: %w", err)
	}

	parsedAncestor, err := ldap.ParseDN(ancestor)
	if err != nil {
		return false, fmt.Errorf("invalid ancestor DN syntax: %w", err)
	}

	// A descendant has strictly more RDN components than its ancestor
	if len(parsedDN.RDNs) <= len(parsedAncestor.RDNs) {
		return false, nil
	}

	suffix := parsedDN.RDNs[len(parsedDN.RDNs)-len(parsedAncestor.RDNs):]
	return equalRDNs(suffix, parsedAncestor.RDNs), nil
}

// IsWithin reports whether dn equals ancestor or is a descendant of it.
func IsWithin(dn, ancestor string) (bool, error) {
	if dn == "" || ancestor == "" {
		return false, fmt.Errorf("DNs cannot be empty")
	}

	parsedDN, err := ldap.ParseDN(dn)
	if err != nil {
		return false, fmt.Errorf("invalid DN syntax: %w", err)
	}

	parsedAncestor, err := ldap.ParseDN(ancestor)
	if err != nil {
		return false, fmt.Errorf("invalid ancestor DN syntax: %w", err)
	}

	if len(parsedDN.RDNs) < len(parsedAncestor.RDNs) {
		return false, nil
	}

	suffix := parsedDN.RDNs[len(parsedDN.RDNs)-len(parsedAncestor.RDNs):]
	return equalRDNs(suffix, parsedAncestor.RDNs), nil
}

// equalRDNs compares two RDN sequences case-insensitively on both attribute
// types and values, per LDAP's usual caseIgnoreMatch behavior for naming
// attributes.
func equalRDNs(a, b []*ldap.RelativeDN) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !strings.EqualFold(joinRDNs(a[i:i+1]), joinRDNs(b[i:i+1])) {
			return false
		}
	}

	return true
}

// EqualDN compares two DNs for equality after normalization.
func EqualDN(a, b string) (bool, error) {
	parsedA, err := ldap.ParseDN(a)
	if err != nil {
		return false, fmt.Errorf("invalid DN syntax: %w", err)
	}

	parsedB, err := ldap.ParseDN(b)
	if err != nil {
		return false, fmt.Errorf("invalid DN syntax: %w", err)
	}

	return equalRDNs(parsedA.RDNs, parsedB.RDNs), nil
}
