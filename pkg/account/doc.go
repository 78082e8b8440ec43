// Package account implements the user-facing authentication operations:
// registration, login, profile maintenance, password changes, and the
// password reset flow.
//
// The Service is transport-agnostic. Domain failures are returned as
// *api.APIError values; any other error is an internal failure that the
// HTTP adapter logs and reports as a generic server error.
package account
