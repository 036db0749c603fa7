// Package middleware provides HTTP middleware components for the evaluation API.
//
// Available middleware:
//   - RateLimiter: Per-client rate limiting using token bucket algorithm
//   - RequestID: Assigns each request an id and stores it in the context
//   - Logging: Logs method, path, status and duration of every request
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Stop()
//	handler = middleware.RequestID(middleware.Logging(log)(rl.Middleware(handler)))
package middleware
