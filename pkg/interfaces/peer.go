package interfaces

// Peer is one live socket as the broker sees it. TrySend must never block:
// fan-out delivery is best-effort and isolated per recipient, so a full
// outbound queue drops the event for that peer only. WriteJSON is the
// blocking variant used for direct replies to a single client (join
// handshakes, error feedback).
type Peer interface {
	TrySend(v interface{}) bool
	WriteJSON(v interface{}) error
	Close() error
}
