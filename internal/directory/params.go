// Package directory implements the LDAP / Active Directory side of
// authentication: a thin connection layer with transparent paged search, two
// schema strategies (generic LDAP and Active Directory) for building filters
// and resolving group membership, and an authenticator that drives
// connect → service bind → user lookup → membership check → credential bind.
package directory

import (
	"net"
	"strconv"
)

// Variant selects the schema strategy for a directory server.
type Variant string

const (
	VariantGenericLDAP     Variant = "ldap"
	VariantActiveDirectory Variant = "ad"
)

// GroupAny is the group specifier meaning "no group restriction": any
// authenticated directory user is authorized.
const GroupAny = "*"

// Params holds the connection settings for one directory server. The struct
// is immutable for the duration of an authentication attempt; values come
// from the external configuration provider.
type Params struct {
	Server       string
	Port         int
	SearchBase   string
	BindDN       string
	BindPassword string
	// Group restricts access to members of the named group. It may be a
	// full DN, a bare CN, or GroupAny.
	Group   string
	Variant Variant
}

// Complete reports whether every field required to reach the server is set.
// Authenticator operations fail fast without opening a socket when it is
// false.
func (p Params) Complete() bool {
	return p.SearchBase != "" && p.Server != "" && p.BindDN != "" && p.BindPassword != ""
}

// Address joins the given host with the configured port (389 by default).
func (p Params) Address(host string) string {
	port := p.Port
	if port == 0 {
		port = 389
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
