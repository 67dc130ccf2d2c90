// Package state exposes the project state manager, the sole entry point
// for consumers of project records.
//
// The manager owns a storage adapter chosen by the backend selector, an
// optional read-through cache, and the tenant access policy. Read paths
// report tenant denial as not-found so record existence never leaks
// across tenants; only the administrative CheckAccess distinguishes
// denial from absence. Every operation takes the caller's tenant scope
// as an explicit argument, falling back to any scope carried on the
// context, validates its inputs before touching the adapter, and never
// retries.
//
// Writes are whole-record and last-write-wins. The manager re-fetches
// before mutating but holds no lock across adapter I/O, so two
// concurrent updates to one project may drop one side; callers that
// need ordering serialize externally.
package state
