package directory

// AuthResult is the outcome of a successful user resolution: the harvested
// identity attributes plus the group-membership verdict. It is created once
// per authentication attempt, immutable after construction, and discarded at
// the end of the request.
type AuthResult struct {
	// DN is the resolved distinguished name of the user entry.
	DN string

	// Login is the account name the lookup was issued for.
	Login string

	DisplayName string
	Email       string

	// ExpiresAt is the account expiry as a unix timestamp, 0 when the
	// account never expires.
	ExpiresAt int64

	// Groups are the DNs/names the user's memberof/groupmembership
	// attributes list directly.
	Groups []string

	// GroupDN is the resolved DN of the configured target group, empty when
	// no specific group is configured.
	GroupDN string

	// InGroup reports whether the user satisfied the configured group
	// restriction.
	InGroup bool

	// Code is the directory result code of the final credential bind,
	// 0 on success.
	Code uint16
}

// userAttributes is the attribute set harvested for every resolved entry.
var userAttributes = []string{
	"cn",
	"uid",
	"samaccountname",
	"displayname",
	"mail",
	"memberof",
	"groupmembership",
	"accountexpires",
}

// harvest builds an AuthResult from a directory entry. Multi-valued
// membership attributes collapse into the group set; single-valued display
// fields take their first value. When no login is supplied (bulk sync) the
// account name is taken from samaccountname, then uid, then cn, matching the
// attributes the user filters search by.
func harvest(e Entry, login string) *AuthResult {
	res := &AuthResult{
		DN:          e.DN,
		Login:       login,
		DisplayName: e.First("displayname"),
		Email:       e.First("mail"),
		ExpiresAt:   accountExpiry(e.First("accountexpires")),
	}
	if res.Login == "" {
		for _, attr := range []string{"samaccountname", "uid", "cn"} {
			if res.Login = e.First(attr); res.Login != "" {
				break
			}
		}
	}
	if res.DisplayName == "" {
		res.DisplayName = e.First("cn")
	}
	res.Groups = append(res.Groups, e.Values("memberof")...)
	res.Groups = append(res.Groups, e.Values("groupmembership")...)
	return res
}
