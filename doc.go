// Package auth keeps the signed in identity of the HRM dashboard in step
// with the auth backend, and gates routes on the role it carries.
//
// Session store:
//   - SessionStore holds the identity and the loading flag. Identity writes
//     are persisted before subscribers hear about them, loading never is.
//   - Every accepted write moves the revision. SetIdentityAt only applies
//     when the revision is unchanged, so results that were in flight while
//     the user signed out are dropped.
//
// Service and listener:
//   - AuthService wraps the backend calls (sign in, current identity, sign
//     out, profile and password updates) and writes their results to the
//     store. Failures come back as error values, never panics.
//   - SessionListener bootstraps the store once and then follows backend
//     session events. A sign out clears the store immediately, a sign in
//     schedules a fresh resolution.
//
// Route guards:
//   - RouteGuard reports LOADING_UI while the session is resolving, then
//     DENIED with a redirect or ALLOWED. It navigates at most once per
//     identity, and a denial never renders protected content.
//
// Activity sinks:
//   - ActivitySink receives audit events (sign in, sign out, restored and
//     cleared sessions, route denials). Sinks run best-effort, their errors
//     are logged.
package auth
