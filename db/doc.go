// Package db connects to the Postgres database that backs replay.PostgresStore, and
// owns the schema of the tables it uses.
package db
