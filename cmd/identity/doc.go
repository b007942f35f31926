// Package identity holds roleguard's credential records and the stores that
// serve them.
//
// A Store answers "who is this username" for the authentication core. Three
// implementations are provided: an in-memory store seeded at startup, a pgx
// backed PostgresStore and a database/sql backed SQLStore. Stores never hash
// passwords themselves; they persist whatever digest the caller produced.
package identity
