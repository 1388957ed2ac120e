package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// GenericSchema implements the Schema strategy for standards-flavoured LDAP
// servers (OpenLDAP, 389-ds, eDirectory). Group membership is resolved from
// the user's memberof/groupmembership attributes, with a secondary search on
// the group object when those attributes are inconclusive.
type GenericSchema struct{}

func (GenericSchema) UserFilter(login string) string {
	esc := ldap.EscapeFilter(login)
	return fmt.Sprintf("(&%s(|(samaccountname=%s)(cn=%s)(uid=%s)))",
		personObjectClasses, esc, esc, esc)
}

func (GenericSchema) GroupFilter(groupSpec, groupDN string) string {
	if groupSpec == GroupAny {
		return personObjectClasses
	}
	target := groupDN
	if target == "" {
		target = groupSpec
	}
	esc := ldap.EscapeFilter(target)
	return fmt.Sprintf("(&%s(|(memberof=%s)(groupmembership=%s)))",
		personObjectClasses, esc, esc)
}

// PickServer returns the configured host verbatim; generic LDAP has no
// server-discovery mechanism.
func (GenericSchema) PickServer(_ context.Context, host string) string {
	return host
}

// IsMemberOfGroup first checks the harvested membership attributes against
// the configured group. When no direct match exists, it searches for a group
// object naming the user in member/uniqueMember and requires the listed DN
// to match the user's DN exactly.
func (g GenericSchema) IsMemberOfGroup(ctx context.Context, conn *Connection, params Params, res *AuthResult) (bool, error) {
	if params.Group == GroupAny {
		return true, nil
	}

	name := GroupName(params.Group)
	for _, entry := range res.Groups {
		if res.GroupDN != "" && strings.EqualFold(entry, res.GroupDN) {
			return true, nil
		}
		if strings.EqualFold(GroupName(entry), name) {
			return true, nil
		}
	}

	filter := fmt.Sprintf("(&%s(cn=%s))", groupObjectClasses, ldap.EscapeFilter(name))
	entries, err := conn.Search(params.SearchBase, ldap.ScopeWholeSubtree, filter, []string{"member", "uniqueMember"})
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		for _, attr := range []string{"member", "uniquemember"} {
			for _, dn := range entry.Values(attr) {
				if strings.EqualFold(strings.TrimSpace(dn), res.DN) {
					return true, nil
				}
			}
		}
	}
	return false, nil
}
