// Package gateway serves the signed entity API. Every route under /openapi/v1 requires
// a valid request signature (see package hmac), an entity grant for the requested
// table, and, if configured, a client address within the app's allowlist. One
// apilog.Event is recorded for each call, whether or not it was accepted.
//
// List and Get are also exposed over gRPC by NewGRPCServer, which takes the same Config
// and applies the same signature, allowlist, grant and recording rules.
package gateway
