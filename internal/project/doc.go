// Package project defines the canonical project state record and its
// enhanced projection.
//
// State is the authoritative record for a generated project: metadata,
// file contents with soft deletion, append-only requirements and
// deployment history. Enhanced is the schema-rich superset stored by
// backends that can use it (per-file size/hash/mime, chunk counts,
// search index). ToEnhanced and FromEnhanced convert between the two;
// the round trip is lossless for every base field.
//
// Records are created through NewState and mutated only by the state
// manager. Adapters persist and retrieve them without touching their
// semantics.
package project
