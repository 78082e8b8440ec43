// Package storage holds what the user directory adapters share: sentinel
// errors that the account service translates into API errors.
//
// Adapters (memory, postgres) implement the account.UserDirectory and
// account.ResetTokenStore interfaces defined in pkg/account. This package
// contains only shared types, not the interfaces themselves.
package storage
