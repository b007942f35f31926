// Package gate is roleguard's authentication core.
//
// A Core composes a credential store, a password hasher, a role hierarchy,
// an access engine and a session registry into three calls: Login, Authorize
// and Logout. Login never reveals whether a username exists: unknown users,
// wrong passwords and unusable accounts all produce OutcomeInvalidCredentials
// after comparable hashing work.
package gate
