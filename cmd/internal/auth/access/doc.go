// Package access decides whether a request path may be served to a caller.
//
// An Engine holds an ordered list of rules. The first rule with a pattern
// matching the path decides; when none matches, the engine's default
// requirement applies. Engines are immutable and safe for concurrent use.
package access
