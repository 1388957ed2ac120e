package directory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDialer hands out a scripted connection and records dial attempts.
type fakeDialer struct {
	conn  *fakeConn
	err   error
	addrs []string
}

func (d *fakeDialer) Dial(_ context.Context, addr string) (Conn, error) {
	d.addrs = append(d.addrs, addr)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func testParams(variant Variant, group string) Params {
	return Params{
		Server:       "dc1.corp.example",
		Port:         389,
		SearchBase:   "dc=corp,dc=example",
		BindDN:       "cn=svc,dc=corp,dc=example",
		BindPassword: "svc-secret",
		Group:        group,
		Variant:      variant,
	}
}

func singleEntryResult(dn string, attrs map[string][]string) *ldap.SearchResult {
	return &ldap.SearchResult{Entries: []*ldap.Entry{ldap.NewEntry(dn, attrs)}}
}

func TestCheckConnection_ConfigIncomplete(t *testing.T) {
	dialer := &fakeDialer{}
	for _, mutate := range []func(*Params){
		func(p *Params) { p.SearchBase = "" },
		func(p *Params) { p.Server = "" },
		func(p *Params) { p.BindDN = "" },
		func(p *Params) { p.BindPassword = "" },
	} {
		params := testParams(VariantGenericLDAP, GroupAny)
		mutate(&params)

		a := NewAuthenticator(params, testLogger(), WithDialer(dialer))
		_, err := a.CheckConnection(context.Background())

		require.True(t, IsKind(err, KindConfigIncomplete))
	}
	assert.Empty(t, dialer.addrs, "incomplete config must not open a socket")
}

func TestCheckConnection_CountsBaseEntries(t *testing.T) {
	fc := &fakeConn{
		searchFn: func(call int, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			assert.Equal(t, ldap.ScopeBaseObject, req.Scope)
			return singleEntryResult("dc=corp,dc=example", map[string][]string{"dc": {"corp"}}), nil
		},
	}
	dialer := &fakeDialer{conn: fc}

	a := NewAuthenticator(testParams(VariantGenericLDAP, GroupAny), testLogger(), WithDialer(dialer))
	count, err := a.CheckConnection(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"dc1.corp.example:389"}, dialer.addrs)
	assert.Equal(t, []string{"cn=svc,dc=corp,dc=example"}, fc.bindCalls)
}

func TestAuthenticate_Unreachable(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}

	a := NewAuthenticator(testParams(VariantGenericLDAP, GroupAny), testLogger(), WithDialer(dialer))
	_, err := a.Authenticate(context.Background(), "jdoe", "secret")

	require.True(t, IsKind(err, KindUnreachable))
}

func TestAuthenticate_ADWildcardGroup(t *testing.T) {
	const userDN = "cn=John Doe,ou=people,dc=corp,dc=example"

	fc := &fakeConn{
		searchFn: func(call int, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			return singleEntryResult(userDN, map[string][]string{
				"mail":        {"jdoe@corp.example"},
				"displayname": {"John Doe"},
				"memberof":    {"cn=Staff,ou=groups,dc=corp,dc=example"},
			}), nil
		},
	}
	dialer := &fakeDialer{conn: fc}

	a := NewAuthenticator(testParams(VariantActiveDirectory, GroupAny), testLogger(),
		WithDialer(dialer),
		WithSchema(NewADSchema(WithResolver(&fakeResolver{err: errors.New("no dns")}))))

	res, err := a.Authenticate(context.Background(), "jdoe", "secret")
	require.NoError(t, err)

	// exactly one service bind, one search, one user bind
	require.Equal(t, []string{"cn=svc,dc=corp,dc=example", userDN}, fc.bindCalls)
	require.Len(t, fc.searches, 1)

	assert.Equal(t, userDN, res.DN)
	assert.Equal(t, "John Doe", res.DisplayName)
	assert.Equal(t, "jdoe@corp.example", res.Email)
	assert.True(t, res.InGroup)
	assert.True(t, fc.closed)
}

func TestAuthenticate_UserNotFound(t *testing.T) {
	fc := &fakeConn{
		searchFn: func(call int, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			return &ldap.SearchResult{}, nil
		},
	}

	a := NewAuthenticator(testParams(VariantGenericLDAP, GroupAny), testLogger(),
		WithDialer(&fakeDialer{conn: fc}))
	_, err := a.Authenticate(context.Background(), "ghost", "secret")

	require.True(t, IsKind(err, KindUserNotFound))

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Filter, "ghost")
}

func TestAuthenticate_AmbiguousUser(t *testing.T) {
	fc := &fakeConn{
		searchFn: func(call int, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			return &ldap.SearchResult{Entries: []*ldap.Entry{
				ldap.NewEntry("cn=jdoe,ou=people,dc=corp,dc=example", nil),
				ldap.NewEntry("cn=jdoe,ou=contractors,dc=corp,dc=example", nil),
			}}, nil
		},
	}

	a := NewAuthenticator(testParams(VariantGenericLDAP, GroupAny), testLogger(),
		WithDialer(&fakeDialer{conn: fc}))
	_, err := a.Authenticate(context.Background(), "jdoe", "secret")

	require.True(t, IsKind(err, KindAmbiguousUser))
	require.Len(t, fc.bindCalls, 1, "no user bind after ambiguous lookup")
}

func TestAuthenticate_GenericSecondaryGroupSearch(t *testing.T) {
	const userDN = "uid=jdoe,ou=people,dc=corp,dc=example"
	const groupDN = "cn=Ops,ou=groups,dc=corp,dc=example"

	fc := &fakeConn{
		searchFn: func(call int, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			switch call {
			case 0: // user lookup; memberOf does not contain the Ops group
				return singleEntryResult(userDN, map[string][]string{
					"mail":     {"jdoe@corp.example"},
					"memberof": {"cn=Staff,ou=groups,dc=corp,dc=example"},
				}), nil
			case 1: // group DN resolution by CN
				assert.Contains(t, req.Filter, "(cn=Ops)")
				return singleEntryResult(groupDN, map[string][]string{"cn": {"Ops"}}), nil
			case 2: // secondary member/uniqueMember search on the group entry
				assert.Contains(t, req.Filter, "groupOfNames")
				return singleEntryResult(groupDN, map[string][]string{
					"member": {userDN},
				}), nil
			default:
				t.Fatalf("unexpected search #%d: %s", call, req.Filter)
				return nil, nil
			}
		},
	}

	a := NewAuthenticator(testParams(VariantGenericLDAP, "cn=Ops"), testLogger(),
		WithDialer(&fakeDialer{conn: fc}))

	res, err := a.Authenticate(context.Background(), "jdoe", "secret")
	require.NoError(t, err)

	assert.True(t, res.InGroup)
	assert.Equal(t, groupDN, res.GroupDN)
	require.Len(t, fc.searches, 3)
	assert.Equal(t, []string{"cn=svc,dc=corp,dc=example", userDN}, fc.bindCalls)
}

func TestAuthenticate_SecondaryGroupSearchRequiresExactDN(t *testing.T) {
	const userDN = "uid=jdoe,ou=people,dc=corp,dc=example"
	const groupDN = "cn=Ops,ou=groups,dc=corp,dc=example"

	fc := &fakeConn{
		searchFn: func(call int, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			switch call {
			case 0:
				return singleEntryResult(userDN, nil), nil
			case 1:
				return singleEntryResult(groupDN, map[string][]string{"cn": {"Ops"}}), nil
			default:
				// a group entry listing somebody else is not membership
				return singleEntryResult(groupDN, map[string][]string{
					"member": {"uid=asmith,ou=people,dc=corp,dc=example"},
				}), nil
			}
		},
	}

	a := NewAuthenticator(testParams(VariantGenericLDAP, "cn=Ops"), testLogger(),
		WithDialer(&fakeDialer{conn: fc}))

	_, err := a.Authenticate(context.Background(), "jdoe", "secret")
	require.True(t, IsKind(err, KindNotInGroup))
	require.Len(t, fc.bindCalls, 1, "no credential bind for a non-member")
}

func TestAuthenticate_FinalBindFailure(t *testing.T) {
	const userDN = "uid=jdoe,ou=people,dc=corp,dc=example"

	fc := &fakeConn{
		bindErr: map[string]error{
			userDN: ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password")),
		},
		searchFn: func(call int, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			return singleEntryResult(userDN, nil), nil
		},
	}

	a := NewAuthenticator(testParams(VariantGenericLDAP, GroupAny), testLogger(),
		WithDialer(&fakeDialer{conn: fc}))
	res, err := a.Authenticate(context.Background(), "jdoe", "wrong")

	require.True(t, IsKind(err, KindInvalidCredentials))
	require.NotNil(t, res)
	assert.Equal(t, uint16(ldap.LDAPResultInvalidCredentials), res.Code)
}

func TestAuthenticate_ADTransitiveMembership(t *testing.T) {
	const userDN = "cn=jdoe,ou=people,dc=corp,dc=example"
	const groupDN = "cn=Admins,ou=groups,dc=corp,dc=example"

	fc := &fakeConn{
		searchFn: func(call int, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			switch call {
			case 0: // user lookup; no direct memberOf match
				return singleEntryResult(userDN, map[string][]string{
					"memberof": {"cn=Tier2,ou=groups,dc=corp,dc=example"},
				}), nil
			default: // chain search, base-scoped on the user entry
				assert.Equal(t, userDN, req.BaseDN)
				assert.Equal(t, ldap.ScopeBaseObject, req.Scope)
				assert.True(t, strings.Contains(req.Filter, "memberof:1.2.840.113556.1.4.1941:="))
				return singleEntryResult(userDN, nil), nil
			}
		},
	}

	a := NewAuthenticator(testParams(VariantActiveDirectory, groupDN), testLogger(),
		WithDialer(&fakeDialer{conn: fc}),
		WithSchema(NewADSchema(WithResolver(&fakeResolver{err: errors.New("no dns")}))))

	res, err := a.Authenticate(context.Background(), "jdoe", "secret")
	require.NoError(t, err)
	assert.True(t, res.InGroup)
}

func TestFindObjects_HarvestsEveryEntry(t *testing.T) {
	fc := &fakeConn{
		searchFn: func(call int, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			return &ldap.SearchResult{Entries: []*ldap.Entry{
				ldap.NewEntry("uid=jdoe,ou=people,dc=corp,dc=example", map[string][]string{
					"samaccountname": {"jdoe"},
					"mail":           {"jdoe@corp.example"},
				}),
				ldap.NewEntry("uid=asmith,ou=people,dc=corp,dc=example", map[string][]string{
					"samaccountname": {"asmith"},
					"mail":           {"asmith@corp.example"},
				}),
			}}, nil
		},
	}

	a := NewAuthenticator(testParams(VariantGenericLDAP, GroupAny), testLogger(),
		WithDialer(&fakeDialer{conn: fc}))

	results, err := a.FindObjects(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "jdoe", results[0].Login)
	assert.Equal(t, "asmith@corp.example", results[1].Email)
	assert.True(t, results[0].InGroup)
}

func TestFindObjects_UidAndCnKeyedEntries(t *testing.T) {
	// Plain inetOrgPerson trees key accounts by uid or cn and carry no
	// samaccountname at all; those entries still need a usable login.
	fc := &fakeConn{
		searchFn: func(call int, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			return &ldap.SearchResult{Entries: []*ldap.Entry{
				ldap.NewEntry("uid=asmith,ou=people,dc=corp,dc=example", map[string][]string{
					"uid":  {"asmith"},
					"mail": {"asmith@corp.example"},
				}),
				ldap.NewEntry("cn=bjones,ou=people,dc=corp,dc=example", map[string][]string{
					"cn": {"bjones"},
				}),
			}}, nil
		},
	}

	a := NewAuthenticator(testParams(VariantGenericLDAP, GroupAny), testLogger(),
		WithDialer(&fakeDialer{conn: fc}))

	results, err := a.FindObjects(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "asmith", results[0].Login)
	assert.Equal(t, "bjones", results[1].Login)
}
