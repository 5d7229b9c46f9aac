// Package signup provides email/password registration with verified-email
// accounts: signed verification tokens, an account verification state
// machine, Bun-backed credential storage, and HTTP helpers.
//
// Account lifecycle:
//   - Accounts carry a VerificationStatus that is persisted via Bun. An
//     account starts unverified and becomes verified exactly once; the
//     transition is monotonic and idempotent, and the store reports whether
//     a given call caused it. AccountStateMachine centralizes the transition
//     graph, timestamps, and activity emission.
//
// Tokens:
//   - TokenService issues HS256 JWTs tagged with a purpose claim. Verify
//     tokens are short-lived and prove control of an email address; session
//     tokens are long-lived and prove a successful login. Validation keeps
//     expiry and malformation as distinct error kinds so callers can offer
//     a resend for the former and a generic failure for the latter.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther, the
//     command handlers, and the state machine to describe registration,
//     verification, and login events. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without blocking
//     authentication.
package signup
