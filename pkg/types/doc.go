/*
Package types defines the core data structures shared across the
job-orchestration service: Job, File, Accounting and Token. These types
carry no behavior beyond small, pure predicates
(JobState.Terminal, Token.WithinHeadroom); persistence, validation and
scheduling all live in their own packages.
*/
package types
