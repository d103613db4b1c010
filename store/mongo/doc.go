// Package mongo provides a MongoDB-backed session store.
//
// Unique indexes on the handle and token hash give Create its atomic
// fail-on-collision semantics, and a TTL index on the expiry field lets
// MongoDB remove expired records on its own; DeleteExpired covers the gap
// between expiry and the TTL monitor's next pass.
package mongo
