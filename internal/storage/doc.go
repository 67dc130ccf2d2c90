// Package storage provides the pluggable persistence layer for project
// state.
//
// Every backend implements the Adapter interface. Four backends ship with
// projectd:
//
//   - sqlite: relational storage via modernc.org/sqlite (pure Go, no cgo)
//   - nats: NATS JetStream key-value buckets for shared remote storage
//   - badger: embedded on-disk key-value storage via dgraph-io/badger
//   - memory: in-process map, used for tests and ephemeral runs
//
// Key-value backends follow a common logical layout: the full project
// record under "project:<id>", a single listing index under
// "projects:index", and overflow file content under
// "file:<projectId>:<path>:<chunkIndex>" when a file exceeds the chunk
// threshold. Backends whose key alphabet is restricted (NATS) encode
// these logical keys; the layout above remains the contract.
//
// Adapters return project.ErrProjectNotFound (wrapped in *Error) for
// missing records. They never return a nil project with a nil error.
package storage
