package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SessionEventKind is the kind of a backend session-change notification
type SessionEventKind string

const (
	SessionSignedIn       SessionEventKind = "SIGNED_IN"
	SessionSignedOut      SessionEventKind = "SIGNED_OUT"
	SessionUserUpdated    SessionEventKind = "USER_UPDATED"
	SessionTokenRefreshed SessionEventKind = "TOKEN_REFRESHED"
)

// BackendSession is what the backend tells us about an authenticated session.
// Metadata is backend-issued and is the only source we trust for the role.
type BackendSession struct {
	UserID           string         `json:"user_id"`
	Email            string         `json:"email"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
}

// SessionEvent is a session-change notification
type SessionEvent struct {
	Kind    SessionEventKind `json:"kind"`
	Session *BackendSession  `json:"session,omitempty"`
}

// SessionChangeFunc receives backend session-change notifications
type SessionChangeFunc func(ctx context.Context, event SessionEvent)

// Backend is the remote auth/data service boundary
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*BackendSession, error)
	// GetCurrentSession returns nil, nil when there is no active session
	GetCurrentSession(ctx context.Context) (*BackendSession, error)
	SignOut(ctx context.Context) error
	// OnSessionChange registers fn and returns the unsubscribe handle
	OnSessionChange(fn SessionChangeFunc) (unsubscribe func())
	// FetchProfileByID returns nil, nil when the user has no profile
	FetchProfileByID(ctx context.Context, id string) (*Profile, error)
}

// ProfileUpdater is implemented by backends that can write profiles
type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*Profile, error)
}

// PasswordUpdater is implemented by backends that can change the
// password of the signed in user
type PasswordUpdater interface {
	UpdatePassword(ctx context.Context, password string) error
}

// Persister durably stores the identity part of the session store
type Persister interface {
	Load(ctx context.Context) (*Identity, error)
	Save(ctx context.Context, identity *Identity) error
}

// Navigator performs the redirects decided by the route guard
type Navigator interface {
	Navigate(ctx context.Context, destination string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, destination string)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(ctx context.Context, destination string) {
	if f == nil {
		return
	}
	f(ctx, destination)
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + line(msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + line(msg, args))
}

func line(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}

// ResolveLogger returns l, or the default stdout logger when l is nil
func ResolveLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
