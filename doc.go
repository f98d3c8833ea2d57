// Package identity is the identity & access-control core of the Appointly
// booking marketplace: accounts, credentials, verification and reset tokens,
// session credentials, roles, and the audit trail.
//
// Accounts:
//   - An Account is created once, by local registration or by the first
//     external sign-in, and is never hard-deleted here. Local accounts carry
//     a bcrypt password hash; external accounts carry a provider subject id
//     and no password. Email and external id uniqueness live in the store's
//     constraints, so concurrent duplicate registrations collapse to one
//     winner.
//
// Tokens:
//   - TokenIssuer produces opaque, time-bounded, single-use tokens for the
//     verification and password-reset flows. Consuming a token clears its
//     pairing (value + expiry) in the same statement that applies the
//     semantic effect, so a token can never be replayed.
//
// Sessions:
//   - SessionService mints stateless signed credentials embedding the
//     account id and the role captured at issuance. There is no revocation
//     list; a role change takes effect when the credential is reissued.
//
// Ledger:
//   - Ledger performs role mutations and appends exactly one AuditEntry in
//     the same transaction. It assumes the policy layer already authorized
//     the actor; its concern is atomicity and attribution via ActorRef.
package identity
