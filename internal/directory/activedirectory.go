package directory

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// matchingRuleInChain is the Active Directory extensible-match rule that
// resolves nested group membership in a single query.
const matchingRuleInChain = "1.2.840.113556.1.4.1941"

// NSResolver looks up DNS NS records; *net.Resolver satisfies it. Injected
// so tests can run AD server discovery without touching the network.
type NSResolver interface {
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// ADSchema implements the Schema strategy for Active Directory. Nested group
// membership is resolved with the matching-rule-in-chain extension, and the
// domain controller to dial is discovered through DNS when the configured
// host is a domain name rather than an address.
type ADSchema struct {
	resolver NSResolver
	intn     func(n int) int
}

// ADOption customizes an ADSchema.
type ADOption func(*ADSchema)

// WithResolver replaces the DNS resolver used for controller discovery.
func WithResolver(r NSResolver) ADOption {
	return func(s *ADSchema) { s.resolver = r }
}

// WithIntn replaces the random source used to pick among discovered
// controllers. The function must return a value in [0, n).
func WithIntn(f func(n int) int) ADOption {
	return func(s *ADSchema) { s.intn = f }
}

func NewADSchema(opts ...ADOption) *ADSchema {
	s := &ADSchema{
		resolver: net.DefaultResolver,
		intn:     rand.Intn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ADSchema) UserFilter(login string) string {
	esc := ldap.EscapeFilter(login)
	return fmt.Sprintf("(&(objectCategory=person)%s(|(samaccountname=%s)(cn=%s)(uid=%s)))",
		personObjectClasses, esc, esc, esc)
}

func (s *ADSchema) GroupFilter(groupSpec, groupDN string) string {
	if groupSpec == GroupAny {
		return fmt.Sprintf("(&(objectCategory=person)%s)", personObjectClasses)
	}
	target := groupDN
	if target == "" {
		target = groupSpec
	}
	return fmt.Sprintf("(&(objectCategory=person)%s(memberof:%s:=%s))",
		personObjectClasses, matchingRuleInChain, ldap.EscapeFilter(target))
}

// PickServer selects the domain controller to dial. A literal IPv4 address
// is used unchanged. Otherwise the leftmost DNS label is stripped and the NS
// records of _msdcs.<remaining-domain> are queried; one of the returned site
// servers is picked uniformly at random. On any DNS failure the configured
// host is used as-is.
func (s *ADSchema) PickServer(ctx context.Context, host string) string {
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return host
	}

	parts := strings.SplitN(host, ".", 2)
	if len(parts) != 2 {
		return host
	}

	records, err := s.resolver.LookupNS(ctx, "_msdcs."+parts[1])
	if err != nil || len(records) == 0 {
		return host
	}

	picked := records[s.intn(len(records))]
	return strings.TrimSuffix(picked.Host, ".")
}

// IsMemberOfGroup checks direct membership from the harvested attributes,
// then falls back to a base-scoped search on the user's own entry with the
// matching-rule-in-chain filter, which walks nested groups server-side.
func (s *ADSchema) IsMemberOfGroup(ctx context.Context, conn *Connection, params Params, res *AuthResult) (bool, error) {
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

	target := res.GroupDN
	if target == "" {
		target = params.Group
	}
	filter := fmt.Sprintf("(memberof:%s:=%s)", matchingRuleInChain, ldap.EscapeFilter(target))
	entries, err := conn.Search(res.DN, ldap.ScopeBaseObject, filter, []string{"cn"})
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}
