/*
Package validator validates per-application submission parameters against
a typed option registry and synthesizes the command-line argument vector a
scheduler adapter will execute, along with derived runtime parallelism
hints. Validation never touches the job store or the filesystem: given the
same (app, inputs, dataRef, limits) it always returns the same result.
*/
package validator
