package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/dmitrijs2005/passvault/internal/events"
	"github.com/dmitrijs2005/passvault/internal/logging"
)

// Authenticator orchestrates a directory authentication attempt:
// connectivity check, service bind, user lookup, attribute harvesting, group
// membership and the final credential bind. One Authenticator may serve many
// attempts; every attempt opens its own connection.
type Authenticator struct {
	params Params
	schema Schema
	dialer Dialer
	sink   events.Sink
	log    logging.Logger
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithDialer replaces the connection dialer (used by tests).
func WithDialer(d Dialer) Option {
	return func(a *Authenticator) { a.dialer = d }
}

// WithSchema replaces the schema strategy chosen from params.Variant.
func WithSchema(s Schema) Option {
	return func(a *Authenticator) { a.schema = s }
}

// WithSink sets the audit event sink.
func WithSink(s events.Sink) Option {
	return func(a *Authenticator) { a.sink = s }
}

func NewAuthenticator(params Params, log logging.Logger, opts ...Option) *Authenticator {
	a := &Authenticator{
		params: params,
		schema: SchemaFor(params.Variant),
		dialer: defaultDialer{},
		sink:   events.NopSink{},
		log:    log.With("module", "directory"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// connect picks the concrete server, dials it and returns the wrapped
// connection together with the host that was dialed.
func (a *Authenticator) connect(ctx context.Context) (*Connection, string, error) {
	host := a.schema.PickServer(ctx, a.params.Server)
	addr := a.params.Address(host)

	a.sink.Emit(ctx, events.New(events.TypeConnectionAttempted, "server", addr))

	conn, err := a.dialer.Dial(ctx, addr)
	if err != nil {
		return nil, host, newError(KindUnreachable, fmt.Errorf("dialing %s: %w", addr, err))
	}
	return &Connection{conn: conn, log: a.log}, host, nil
}

// serviceBind authenticates the connection with the configured service
// account.
func (a *Authenticator) serviceBind(ctx context.Context, conn *Connection) error {
	if err := conn.Bind(a.params.BindDN, a.params.BindPassword); err != nil {
		a.sink.Emit(ctx, events.New(events.TypeBindFailed,
			"dn", a.params.BindDN, "code", resultCode(err), "service_account", true))
		return err
	}
	return nil
}

// CheckConnection verifies that the configured directory is reachable and
// the service account can bind, then runs the group filter as a base-scoped
// search and returns the entry count. When any required parameter is empty
// it fails fast with KindConfigIncomplete without opening a socket.
func (a *Authenticator) CheckConnection(ctx context.Context) (int, error) {
	if !a.params.Complete() {
		return 0, &Error{Kind: KindConfigIncomplete}
	}

	conn, _, err := a.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := a.serviceBind(ctx, conn); err != nil {
		return 0, err
	}

	filter := a.schema.GroupFilter(a.params.Group, "")
	entries, err := conn.Search(a.params.SearchBase, ldap.ScopeBaseObject, filter, nil)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Authenticate resolves login against the directory and verifies password.
//
// The final bind as the resolved user DN is the actual credential check and
// is only attempted once group membership is established, so a failure there
// always means bad credentials, never a configuration problem. On that
// failure the harvested result is returned alongside the error, with Code
// set to the bind's directory result code, so callers can still log who the
// attempt resolved to.
func (a *Authenticator) Authenticate(ctx context.Context, login, password string) (*AuthResult, error) {
	if !a.params.Complete() {
		return nil, &Error{Kind: KindConfigIncomplete}
	}

	conn, host, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := a.serviceBind(ctx, conn); err != nil {
		return nil, err
	}

	filter := a.schema.UserFilter(login)
	entries, err := conn.Search(a.params.SearchBase, ldap.ScopeWholeSubtree, filter, userAttributes)
	if err != nil {
		return nil, err
	}
	switch {
	case len(entries) == 0:
		return nil, &Error{Kind: KindUserNotFound, Filter: filter}
	case len(entries) > 1:
		return nil, &Error{Kind: KindAmbiguousUser, Filter: filter}
	}

	res := harvest(entries[0], login)
	a.sink.Emit(ctx, events.New(events.TypeUserResolved, "dn", res.DN, "server", host))

	if a.params.Group != GroupAny {
		res.GroupDN, err = a.resolveGroupDN(conn)
		if err != nil {
			return nil, err
		}
	}

	inGroup, err := a.schema.IsMemberOfGroup(ctx, conn, a.params, res)
	if err != nil {
		return nil, err
	}
	a.sink.Emit(ctx, events.New(events.TypeGroupCheck,
		"dn", res.DN, "group", a.params.Group, "in_group", inGroup))
	if !inGroup {
		return nil, &Error{Kind: KindNotInGroup}
	}
	res.InGroup = true

	if err := conn.Bind(res.DN, password); err != nil {
		res.Code = resultCode(err)
		a.sink.Emit(ctx, events.New(events.TypeBindFailed,
			"dn", res.DN, "code", res.Code))
		return res, err
	}

	return res, nil
}

// FindObjects returns every directory entry matching the configured group
// filter, harvested with the same rules as Authenticate. Used for bulk
// synchronization.
func (a *Authenticator) FindObjects(ctx context.Context) ([]*AuthResult, error) {
	if !a.params.Complete() {
		return nil, &Error{Kind: KindConfigIncomplete}
	}

	conn, _, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := a.serviceBind(ctx, conn); err != nil {
		return nil, err
	}

	groupDN := ""
	if a.params.Group != GroupAny {
		groupDN, err = a.resolveGroupDN(conn)
		if err != nil {
			return nil, err
		}
	}

	filter := a.schema.GroupFilter(a.params.Group, groupDN)
	entries, err := conn.Search(a.params.SearchBase, ldap.ScopeWholeSubtree, filter, userAttributes)
	if err != nil {
		return nil, err
	}

	results := make([]*AuthResult, 0, len(entries))
	for _, e := range entries {
		res := harvest(e, "")
		res.GroupDN = groupDN
		res.InGroup = true
		results = append(results, res)
	}
	return results, nil
}

// resolveGroupDN maps the configured group specifier to the DN of the group
// entry. A specifier that already is a DN is returned as-is; otherwise the
// group object is searched by CN. A missing group resolves to "" rather than
// an error, so membership evaluation can still use the raw specifier.
func (a *Authenticator) resolveGroupDN(conn *Connection) (string, error) {
	spec := a.params.Group
	if strings.Contains(spec, "=") && strings.Contains(spec, ",") {
		return spec, nil
	}

	filter := fmt.Sprintf("(&%s(cn=%s))", groupObjectClasses, ldap.EscapeFilter(GroupName(spec)))
	entries, err := conn.Search(a.params.SearchBase, ldap.ScopeWholeSubtree, filter, []string{"cn"})
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[0].DN, nil
}
