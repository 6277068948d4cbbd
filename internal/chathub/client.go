package chathub

import "pairup/backend/internal/models"

// Client is one transport connection. It abstracts the underlying mechanism so the
// coordinator can manage any client type uniformly.
type Client interface {
	// GetConnectionID returns the id the connection is registered under.
	GetConnectionID() string
	// ConnectRequest returns the connect() payload: linked user, block list and
	// matching preferences.
	ConnectRequest() models.ConnectRequest

	// GetSendChannel returns the channel the coordinator delivers outbound events on.
	// The coordinator never blocks on it.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the connection. The coordinator calls it exactly once, after
	// the client stopped being registered.
	Close()
}

// Inbound is one client message tagged with the connection it arrived on.
type Inbound struct {
	ConnectionID string
	Message      models.ClientMessage
}
