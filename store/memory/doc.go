// Package memory provides an in-memory session store for tests and
// single-process deployments.
package memory
