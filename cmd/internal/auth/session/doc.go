// Package session implements roleguard's session registry.
//
// A Registry admits new sessions for a principal while capping how many
// sessions one username may hold at once. When the cap is reached it either
// rejects the new login or evicts the oldest sessions, depending on Config.
// Admission is atomic per username in every implementation:
//
//   - MemoryRegistry: one mutex, process-local.
//   - RedisRegistry: one Lua script per admission.
//   - PostgresRegistry: one transaction holding a per-username advisory lock.
//
// Session ids are random UUIDv4 strings handed to the caller once. Shared
// registries persist only their digest (see security/token), exposed as
// Session.Handle for logging and listing.
package session
