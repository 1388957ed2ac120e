package directory

import (
	"context"
	"regexp"
)

// Schema is the strategy implemented by each directory variant: it builds
// the user and group search filters, selects the concrete server to dial,
// and decides group membership. Variants are selected at configuration time,
// never by probing the server.
type Schema interface {
	// UserFilter builds the filter that resolves a login name to exactly
	// one user entry.
	UserFilter(login string) string

	// GroupFilter builds the filter that matches every user belonging to
	// the configured group. groupDN is the resolved DN of the group when
	// known, "" otherwise.
	GroupFilter(groupSpec, groupDN string) string

	// PickServer maps the configured host to the concrete host to dial.
	PickServer(ctx context.Context, host string) string

	// IsMemberOfGroup decides whether the resolved user satisfies the
	// configured group restriction, issuing secondary searches over conn
	// when the harvested attributes are not conclusive.
	IsMemberOfGroup(ctx context.Context, conn *Connection, params Params, res *AuthResult) (bool, error)
}

// SchemaFor returns the schema strategy for the given variant. Active
// Directory options (resolver, random source) only apply to the AD variant.
func SchemaFor(v Variant, opts ...ADOption) Schema {
	if v == VariantActiveDirectory {
		return NewADSchema(opts...)
	}
	return GenericSchema{}
}

var groupCN = regexp.MustCompile(`(?i)^cn=([^,]+)`)

// GroupName extracts the plain group name from a group specifier: the CN
// component when the specifier is a DN beginning with "cn=", the raw
// specifier otherwise.
func GroupName(spec string) string {
	if m := groupCN.FindStringSubmatch(spec); m != nil {
		return m[1]
	}
	return spec
}

// groupObjectClasses matches the object classes a group entry may carry
// across the two supported schemas.
const groupObjectClasses = "(|(objectClass=groupOfNames)(objectClass=groupOfUniqueNames)(objectClass=group))"

// personObjectClasses matches the object classes a person entry may carry.
const personObjectClasses = "(|(objectClass=inetOrgPerson)(objectClass=person)(objectClass=simpleSecurityObject))"
