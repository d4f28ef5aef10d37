/*
Package packager archives a completed job's output directory into a single
job_<job_id>.tar.gz and resolves named artifacts (catalogs, previews) by
glob pattern for the download endpoints. Packaging is idempotent: a
repeated call after the archive already exists is a no-op.
*/
package packager
