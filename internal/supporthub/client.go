package supporthub

import "sapex/backend/internal/models"

// Client is one live connection (e.g. a browser tab over WebSocket).
// The hub treats every client as a UI scope: subscriptions opened for it
// are torn down when it unregisters.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string

	// GetSendChannel returns the channel the hub pushes events into.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the connection down. Called by the hub after every
	// sender to the send channel has stopped.
	Close()
}

// Command is a client command tagged with the connection it came from.
type Command struct {
	Client Client
	models.ClientCommand
}
