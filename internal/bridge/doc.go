// Package bridge runs one scene-sync session against a remote peer.
//
// A Controller owns the converter, registry, payload pipeline, state machine
// and transport loop for a session. The loop goroutine is the only owner of
// the socket; pushes from other goroutines reach it through the machine's
// lazy queue. Notifications back to the shell go through a serial Executor.
package bridge
