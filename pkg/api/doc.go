// Package api defines the wire types for the digsite authentication service.
//
// This package provides the data types shared by the account service, the
// storage adapters, and the HTTP adapter: users and their public view, the
// role and subscription enumerations, request payloads, the error taxonomy,
// and request validation.
//
// The package performs no I/O. Identifiers come from google/uuid (users)
// and oklog/ulid (requests and token ids).
//
// Core types:
//   - [User]: identity record as held by the user directory
//   - [PublicUser]: the only user shape ever written to a client
//   - [Role]: the fixed role enumeration
//   - [APIError]: structured error with type, message, param, and field details
package api
