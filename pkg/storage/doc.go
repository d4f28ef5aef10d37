/*
Package storage provides bbolt-backed persistence for jobs, uploaded-file
metadata and accounting snapshots.

Every tenant gets its own set of buckets (<user>.jobs, <user>.files,
<user>.accounting), created lazily on first write. No transaction spans
more than one user's buckets except FindUnfinishedAllUsers, which the
reconciliation engine uses to sweep every tenant's in-flight jobs in one
pass. Records are JSON-encoded; Create and Update share one upsert path.
*/
package storage
