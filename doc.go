// Package gatekeeper provides admin-approved access control primitives (JWT
// session issuance, stateful repositories, HTTP helpers) for products where
// registration and the right to sign in are separate events.
//
// Access lifecycle:
//   - Accounts carry an AccessStatus field that is persisted via Bun. New
//     registrations always start pending; only an administrator can move an
//     account to granted, and granted access can later be revoked and granted
//     again.
//   - AccessStateMachine centralizes the transition graph, provenance stamps,
//     and persistence. Every successful transition commits exactly one audit
//     record in the same transaction, so the trail and the status can never
//     disagree.
//
// Live verification:
//   - Tokens carry only the account identifier. The Gate middleware re-reads
//     the account on every protected request and checks its current status,
//     which makes revocation effective immediately, valid tokens included.
//
// Audit trail:
//   - AuditTrail is an append-only record of grants, revocations, and login
//     outcomes with actor attribution and request metadata. Update and delete
//     paths are rejected at the model layer.
package gatekeeper
