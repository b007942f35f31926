// Package rolehier resolves a static role hierarchy into effective role sets.
//
// A hierarchy is a list of (junior, senior) pairs: the senior role is granted
// everything the junior role is. The closure is computed once in New, so a
// Hierarchy is read-only afterwards and safe for concurrent use.
package rolehier
