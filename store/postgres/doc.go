// Package postgres provides a Postgres-backed session store over pgx.
//
// Create relies on the table's unique constraints for atomicity, and Update
// is conditional on the record still being unexpired, matching the
// persistence port contract. Expired rows are removed by the janitor's
// DeleteExpired pass.
package postgres
