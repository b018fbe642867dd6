// Package comm provides the shared plumbing for Verder Helpen communication
// plugins: credential resolution and session bookkeeping between the core,
// the widget, and the guest/host participants of a room.
//
// Credential resolution:
//   - Key material is declared in the plugin configuration as tagged entries
//     (EC, RSA, OKP, or oct) and resolved once at startup into capability
//     objects. Each capability exposes exactly one operation (Decrypt, Sign,
//     or Verify) and never the underlying key, so a handler that only needs
//     to verify tokens can never accidentally sign them.
//   - CredentialBundle aggregates the resolved capabilities plus the URLs a
//     plugin needs at runtime. Construction is all-or-nothing; the bundle is
//     immutable afterwards and safe to share across requests.
//
// Sessions:
//   - A Session correlates a guest admission (carried by a verified
//     GuestToken) with an authentication result delivered later through an
//     asynchronous callback keyed by attr_id.
//   - repository.Sessions persists sessions through Bun. Every operation is
//     a single SQL statement, so the at-most-once result registration and
//     the activity-refreshing room lookup stay race free across process
//     instances sharing one database.
package comm
