/*
Package log provides structured logging built on zerolog.

A single global Logger is configured once at startup via Init. Components
derive a child logger carrying their own name (WithComponent) or the
job/user they are currently handling (WithJobID, WithUser) instead of
repeating those fields on every call site.
*/
package log
