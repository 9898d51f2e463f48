// Package records defines the typed documents nudge reads from and writes
// to the document store: tasks, comments, key records, migration status and
// notifications, plus the push payload delivered to the background agent.
//
// Stores hand documents around as generic field maps. Every Decode function
// converts such a map into its record type and rejects fields the type does
// not define, so a document written by a newer client fails loudly rather
// than losing data on the next write. Each record carries schemaVersion; a
// missing version is treated as 1 and anything newer than SchemaVersion is
// rejected.
//
// Fields methods go the other way and only ever produce maps, slices and
// scalar values, so adapters can store and copy them without reflection.
package records
