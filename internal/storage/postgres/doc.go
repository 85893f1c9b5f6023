// Package postgres implements the session registry and contact ledger on
// PostgreSQL through a pgx connection pool. The schema is embedded and
// applied with tern under an advisory lock, so several processes may
// start against one database.
package postgres
