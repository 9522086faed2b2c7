// Package protocol owns the scene sync vocabulary and message envelope.
//
// Ownership boundary:
// - peer states and their wire tokens
// - header classification
// - instruction/payload message framing on top of frame
package protocol
