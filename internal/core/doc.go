// Package core provides the business logic of the ID directory.
//
// The directory maps human identities, a name and an optional short code, to
// an opaque numeric external ID. It has no transport dependencies; the HTTP
// front end in internal/web is one caller among others.
//
// # Architecture
//
//   - Canonicalizer: [CanonicalName], [CanonicalCode] and [IsValidExternalID]
//     fold raw input into lookup keys.
//   - Store: the durable relation, one row per canonical name with a unique
//     nullable code. Adapters live under internal/store.
//   - Index: an in-memory mirror of the store keyed by name and by code.
//   - Resolver: [Resolve] expands a query into terms and matches them under a
//     single read lock.
//   - Bulk parser: [ParseBulk] turns pasted text into accepted and rejected
//     candidates without touching the store.
//   - Service: serializes mutations, writes the store first, then the Index.
//
// # Code conflicts
//
// Codes are unique. Writing a record whose code is held by a different name
// clears the code of the previous holder; its row survives. Store adapters
// and the Index apply the same rule, so they agree after every mutation.
//
// # Error Handling
//
// Store failures are wrapped in [StoreError] and match [ErrStoreUnavailable].
// [MapError] turns any error into a [UserMessage] with a support code.
//
// # Audit Logging
//
// Every mutation produces an [AuditEntry] with a severity:
//
//   - Low: reloads
//   - Medium: adds and edits
//   - High: bulk adds and deletions
//   - Critical: clearing the directory
package core
