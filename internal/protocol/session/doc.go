// Package session owns request/reply reliability primitives.
//
// Ownership boundary:
// - reply timeouts that grow with the attempt number
// - the attempt counter that decides when to reconnect
// - redial backoff
package session
