package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignInSuccess   ActivityEventType = "auth.signin.success"
	ActivityEventSignInFailure   ActivityEventType = "auth.signin.failure"
	ActivityEventSignOut         ActivityEventType = "auth.signout"
	ActivityEventSessionRestored ActivityEventType = "auth.session.restored"
	ActivityEventSessionCleared  ActivityEventType = "auth.session.cleared"
	ActivityEventProfileUpdated  ActivityEventType = "auth.profile.updated"
	ActivityEventPasswordUpdated ActivityEventType = "auth.password.updated"
	ActivityEventRouteDenied     ActivityEventType = "auth.route.denied"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Role       UserRole
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity emits event best-effort, sink errors are logged.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		ResolveLogger(logger).Warn("activity sink record error", "event", event.EventType, "error", err)
	}
}

// JoinActivitySinks records every event into each non-nil sink in
// order. All sinks are tried, the first error is returned.
func JoinActivitySinks(sinks ...ActivitySink) ActivitySink {
	joined := make([]ActivitySink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			joined = append(joined, s)
		}
	}

	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		var first error
		for _, s := range joined {
			if err := s.Record(ctx, event); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
