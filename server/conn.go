package server

// Conn is one client transport session. The server owns the id and never
// looks past this interface; tests substitute a capturing fake.
type Conn interface {
	ID() string

	// Send queues a control (text) frame; SendBinary queues a MOML frame.
	// Both return an error only for an already-dead transport.
	Send(data []byte) error
	SendBinary(data []byte) error

	// Close tears the transport down. Safe to call more than once.
	Close()
}
