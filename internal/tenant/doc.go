// Package tenant decides whether a caller's tenant scope may access a
// project record.
//
// Two policies exist. OpenPolicy treats unscoped records as readable by
// everyone and unscoped callers as administrative. StrictPolicy requires
// the record scope and caller scope to match exactly, so unscoped callers
// see only unscoped records. The state manager applies the configured
// policy on every read and write; denial on read paths surfaces as
// not-found so record existence never leaks across tenants.
package tenant
