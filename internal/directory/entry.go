package directory

import (
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Entry is a directory search result: a DN plus a mapping of attribute name
// to its ordered values. Directory attributes are multi-valued by protocol,
// so values stay a sequence here; collapsing to a scalar happens only at the
// point of consumption. Attribute names are normalized to lower case.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

func entryFromLDAP(e *ldap.Entry) Entry {
	attrs := make(map[string][]string, len(e.Attributes))
	for _, a := range e.Attributes {
		name := strings.ToLower(a.Name)
		attrs[name] = append(attrs[name], a.Values...)
	}
	return Entry{DN: e.DN, Attributes: attrs}
}

// Values returns every value of the named attribute; the lookup is
// case-insensitive.
func (e Entry) Values(name string) []string {
	return e.Attributes[strings.ToLower(name)]
}

// First returns the first value of the named attribute, or "".
func (e Entry) First(name string) string {
	if v := e.Values(name); len(v) > 0 {
		return v[0]
	}
	return ""
}

// windowsEpochOffset is the number of 100ns intervals between 1601-01-01
// (the Windows FILETIME epoch) and 1970-01-01.
const windowsEpochOffset = 116444736000000000

// accountExpiry converts an Active Directory accountExpires value into a
// unix timestamp. AD stores 100ns intervals since 1601; 0 and MaxInt64 both
// mean "never expires" and map to 0.
func accountExpiry(raw string) int64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v == 0 || v == 0x7FFFFFFFFFFFFFFF {
		return 0
	}
	if v < windowsEpochOffset {
		return 0
	}
	return (v - windowsEpochOffset) / 10000000
}
