// Package memory provides in-process implementations of the core stores. It
// backs tests and single-process deployments without a database.
package memory
