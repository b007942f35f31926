// Package password provides password hashing and verification for roleguard.
//
// Two encodings are supported:
// - Argon2id in a PHC-like string (default for new hashes)
// - bcrypt ($2a$/$2b$/$2y$), accepted on verify and selectable for hashing
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verification refuses hashes whose cost exceeds reasonable bounds of the configured cost.
// - The password policy applies to Hash only; Verify checks whatever it is given.
package password
