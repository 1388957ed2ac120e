package directory

import (
	"context"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/dmitrijs2005/passvault/internal/logging"
)

const (
	// pageSize is the LDAP paged-results control page size.
	pageSize = 1000

	// connectTimeout bounds dialing and every protocol round trip.
	connectTimeout = 10 * time.Second
)

// Conn abstracts the raw directory protocol operations, mostly for testing.
// It is a subset of the ldap.Client interface implemented by ldap.Conn.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

var _ Conn = (*ldap.Conn)(nil)

// Dialer produces a Conn for a host:port address. Inject a fake in tests;
// the default dials plain LDAPv3 over TCP with a bounded timeout.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (Conn, error) {
	return f(ctx, addr)
}

// defaultDialer dials ldap://addr; the go-ldap library does not accept a
// context, so the deadline is enforced through the net.Dialer timeout and
// the per-connection timeout.
type defaultDialer struct{}

func (defaultDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	timeout := connectTimeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < timeout {
			timeout = remaining
		}
	}
	conn, err := ldap.DialURL("ldap://"+addr, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(timeout)
	return conn, nil
}

// Connection wraps a bound Conn with error mapping and transparent paging.
// One Connection serves one authentication or sync attempt; it is not safe
// for concurrent use and is never pooled.
type Connection struct {
	conn Conn
	log  logging.Logger
}

// Bind authenticates the connection as dn. Failure maps to
// KindInvalidCredentials carrying the directory result code.
func (c *Connection) Bind(dn, password string) error {
	if err := c.conn.Bind(dn, password); err != nil {
		return newError(KindInvalidCredentials, err)
	}
	return nil
}

// Search runs the filter against base at the given scope and returns every
// matching entry. Result sets larger than one page are fetched transparently
// with the paged-results control: the query repeats while the server returns
// a continuation cookie and stops on an empty one. Any page failure surfaces
// as KindSearchFailed carrying the filter and the last protocol result code.
func (c *Connection) Search(base string, scope int, filter string, attrs []string) ([]Entry, error) {
	paging := ldap.NewControlPaging(pageSize)
	var entries []Entry

	for {
		req := ldap.NewSearchRequest(
			base,
			scope,
			ldap.NeverDerefAliases,
			0,
			int(connectTimeout/time.Second),
			false,
			filter,
			attrs,
			[]ldap.Control{paging},
		)

		res, err := c.conn.Search(req)
		if err != nil {
			c.log.Debug(context.Background(), "directory search failed", "filter", filter, "base", base)
			return nil, searchFailed(filter, err)
		}

		for _, e := range res.Entries {
			entries = append(entries, entryFromLDAP(e))
		}

		ctrl := ldap.FindControl(res.Controls, ldap.ControlTypePaging)
		if ctrl == nil {
			break
		}
		pr, ok := ctrl.(*ldap.ControlPaging)
		if !ok || len(pr.Cookie) == 0 {
			break
		}
		paging.SetCookie(pr.Cookie)
	}

	return entries, nil
}

// Close unbinds and releases the underlying connection.
func (c *Connection) Close() {
	_ = c.conn.Close()
}
