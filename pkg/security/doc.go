/*
Package security mints and renews the short-lived HS256 bearer token the
HPC Cluster Adapter presents on every request to the remote batch REST
endpoint.

A TokenMinter loads its symmetric signing key once from disk at startup
and renews the token inline, just ahead of expiry, so the adapter never
blocks on a separate refresh cycle.
*/
package security
