// Package auth provides authentication, authorization, and rate limiting
// for digsite.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (principal found), No (credentials
// invalid), or Abstain (can't handle). When every authenticator abstains the
// request has no credentials and is rejected.
//
// Authorization is layered on authentication at the type level. Guards wrap
// an AuthenticatedHandler, which receives the verified Principal as an
// argument; only Authenticate turns an AuthenticatedHandler into an
// http.Handler. A guard therefore cannot be mounted on a route that did not
// authenticate first.
//
// Policies are the composable unit: Roles, Capability, Rank, Owner, and
// Plan each decide on one principal, and AnyOf / AllOf combine them. There
// is no implicit bypass for any role; a route that admits administrators
// says so.
//
// Rate limiting sits behind the RateLimiter interface. InProcessLimiter
// serves single-instance deployments; pkg/auth/redislimit shares one budget
// across instances.
package auth
