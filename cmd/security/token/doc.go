// Package token provides digest primitives for opaque session identifiers.
//
// Session ids are never stored raw in shared storage; stores key records by
// Digest(id) instead.
//
// Modes:
// - SHA-256(id) when no HMAC key is configured (development).
// - HMAC-SHA256(id, key) when ROLEGUARD_TOKEN_HMAC_KEY is set.
//
// Output is always 64 lowercase hex characters.
package token
