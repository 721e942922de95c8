package auth

import (
	"context"
	"sync"
)

// GuardState is the state of a RouteGuard
type GuardState string

const (
	GuardResolving GuardState = "RESOLVING"
	GuardLoading   GuardState = "LOADING_UI"
	GuardDenied    GuardState = "DENIED"
	GuardAllowed   GuardState = "ALLOWED"
)

// IsTerminal reports whether the state is final for the identity snapshot
func (s GuardState) IsTerminal() bool {
	return s == GuardDenied || s == GuardAllowed
}

const (
	DefaultSignInPath = "/signin"
	DefaultHomePath   = "/"
)

// Decision is the outcome of a guard evaluation. Destination is only set
// for GuardDenied.
type Decision struct {
	State       GuardState
	Destination string
	Identity    *Identity
}

// IdentityResolver resolves the current identity, AuthService implements it
type IdentityResolver interface {
	CurrentIdentity(ctx context.Context) (*Identity, error)
}

// GuardOption customizes RouteGuard construction.
type GuardOption func(*RouteGuard)

// WithGuardRequiredRoles sets the acceptable roles, any one of them as a
// minimum level grants access.
func WithGuardRequiredRoles(roles ...UserRole) GuardOption {
	return func(g *RouteGuard) {
		if len(roles) > 0 {
			g.required = append([]UserRole(nil), roles...)
		}
	}
}

// WithGuardRouteClass uses the roles of a route class.
func WithGuardRouteClass(class RouteClass) GuardOption {
	return func(g *RouteGuard) {
		g.required = class.RequiredRoles()
	}
}

func WithGuardSignInPath(path string) GuardOption {
	return func(g *RouteGuard) {
		if path != "" {
			g.signInPath = path
		}
	}
}

func WithGuardHomePath(path string) GuardOption {
	return func(g *RouteGuard) {
		if path != "" {
			g.homePath = path
		}
	}
}

// WithGuardNavigator sets the navigator used by Evaluate.
func WithGuardNavigator(nav Navigator) GuardOption {
	return func(g *RouteGuard) {
		g.navigator = nav
	}
}

func WithGuardLogger(logger Logger) GuardOption {
	return func(g *RouteGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardActivitySink records denied evaluations.
func WithGuardActivitySink(sink ActivitySink) GuardOption {
	return func(g *RouteGuard) {
		g.activitySink = normalizeActivitySink(sink)
	}
}

// RouteGuard gates protected content on the session store.
//
// While the store is loading, or while the one lazy identity fetch is in
// flight, the guard reports GuardLoading and does not navigate. Once
// resolution is final it is GuardDenied (with a redirect) or
// GuardAllowed. A change of identity starts over from GuardResolving.
type RouteGuard struct {
	store        *SessionStore
	resolver     IdentityResolver
	navigator    Navigator
	required     []UserRole
	signInPath   string
	homePath     string
	logger       Logger
	activitySink ActivitySink

	mu        sync.Mutex
	state     GuardState
	attempted bool
	resolving bool
	lastKey   string
	hasLast   bool
	navigated bool
}

// NewRouteGuard returns a guard requiring admin or superadmin by default
func NewRouteGuard(store *SessionStore, resolver IdentityResolver, opts ...GuardOption) *RouteGuard {
	g := &RouteGuard{
		store:        store,
		resolver:     resolver,
		required:     RouteAdmin.RequiredRoles(),
		signInPath:   DefaultSignInPath,
		homePath:     DefaultHomePath,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		state:        GuardResolving,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// State returns the state reached by the last Evaluate call.
func (g *RouteGuard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Resolve computes the decision for the current store state without
// navigating. The first time it finds no identity it asks the resolver
// once before treating the answer as final.
func (g *RouteGuard) Resolve(ctx context.Context) Decision {
	snap := g.store.Snapshot()
	if snap.IsLoading {
		return Decision{State: GuardLoading}
	}

	if snap.Identity == nil {
		g.mu.Lock()
		pending := g.resolving
		fetch := !g.attempted
		if fetch {
			g.attempted = true
			g.resolving = true
		}
		g.mu.Unlock()

		if pending {
			return Decision{State: GuardLoading}
		}

		if fetch {
			if _, err := g.resolver.CurrentIdentity(ctx); err != nil {
				g.logger.Warn("route guard identity fetch failed", "error", err)
			}

			g.mu.Lock()
			g.resolving = false
			g.mu.Unlock()

			snap = g.store.Snapshot()
			if snap.IsLoading {
				return Decision{State: GuardLoading}
			}
		}
	}

	return g.decide(snap)
}

// Evaluate resolves the decision, records the state and navigates when
// the guard enters GuardDenied. It navigates at most once per identity
// snapshot.
func (g *RouteGuard) Evaluate(ctx context.Context) Decision {
	d := g.Resolve(ctx)

	g.mu.Lock()
	if d.State == GuardLoading {
		g.state = GuardLoading
		g.mu.Unlock()
		return d
	}

	key := identityKey(d.Identity)
	if !g.hasLast || key != g.lastKey {
		g.state = GuardResolving
		g.lastKey = key
		g.hasLast = true
		g.navigated = false
	}

	g.state = d.State
	navigate := d.State == GuardDenied && !g.navigated
	if navigate {
		g.navigated = true
	}
	g.mu.Unlock()

	if navigate {
		g.logger.Info("route guard denied access", "destination", d.Destination, "identity", key)
		g.RecordDenial(ctx, d, nil)

		if g.navigator != nil {
			g.navigator.Navigate(ctx, d.Destination)
		}
	}

	return d
}

// RecordDenial reports a denied decision to the guard activity sink.
// Callers that answer with Resolve instead of Evaluate use it to keep the
// audit trail.
func (g *RouteGuard) RecordDenial(ctx context.Context, d Decision, metadata map[string]any) {
	if d.State != GuardDenied {
		return
	}

	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["destination"] = d.Destination

	event := ActivityEvent{
		EventType: ActivityEventRouteDenied,
		Metadata:  meta,
	}
	if d.Identity != nil {
		event.UserID = d.Identity.ID
		event.Role = d.Identity.Role
	}
	recordActivity(ctx, g.activitySink, g.logger, event)
}

// Render evaluates the guard and runs protected when allowed or fallback
// while resolution is pending. A denial runs neither, the redirect wins.
func (g *RouteGuard) Render(ctx context.Context, protected, fallback func() error) error {
	d := g.Evaluate(ctx)
	switch d.State {
	case GuardAllowed:
		if protected != nil {
			return protected()
		}
	case GuardLoading, GuardResolving:
		if fallback != nil {
			return fallback()
		}
	}
	return nil
}

// Watch evaluates now and again after every store change until the
// returned stop function is called.
func (g *RouteGuard) Watch(ctx context.Context) (stop func()) {
	unsubscribe := g.store.Subscribe(func(StoreSnapshot) {
		if ctx.Err() != nil {
			return
		}
		g.Evaluate(ctx)
	})
	g.Evaluate(ctx)
	return unsubscribe
}

func (g *RouteGuard) decide(snap StoreSnapshot) Decision {
	if snap.Identity == nil {
		return Decision{State: GuardDenied, Destination: g.signInPath}
	}

	if !HasRole(snap.Identity.Role, g.required...) {
		return Decision{State: GuardDenied, Destination: g.homePath, Identity: snap.Identity}
	}

	return Decision{State: GuardAllowed, Identity: snap.Identity}
}

func identityKey(identity *Identity) string {
	if identity == nil {
		return ""
	}
	return identity.ID + "|" + string(identity.Role)
}
