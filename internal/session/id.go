package session

import "github.com/oklog/ulid/v2"

// NewSessionID returns a fresh opaque session identifier. ULIDs carry a
// millisecond timestamp plus random suffix, which matches the collision
// expectations of the protocol (correlation only, no negotiation).
func NewSessionID() string {
	return "session_" + ulid.Make().String()
}
