// Package transport provides the HTTP plumbing shared by every digsite
// route: the middleware chain, request ids, access logging, panic recovery,
// client address resolution, a per-IP throttle, and the JSON writers for
// success envelopes and API errors.
//
// # Middleware
//
// Middleware has the standard func(http.Handler) http.Handler shape.
// Chain(a, b, c) produces a(b(c(handler))), so the first middleware is the
// outermost wrapper.
//
// # Errors
//
// Every failure leaves the service as an api.APIError in the
// {"error":{...}} envelope. WriteAPIError derives the status code from the
// error type and adds Retry-After for rate limit rejections.
package transport
