// Package sse serves a live stream of messages over Server-Sent Events. The audit
// service uses it to stream apilog events to operators, keyed by each call's request ID so
// that a reconnecting client can resume where it left off.
package sse
