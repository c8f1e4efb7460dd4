package relay

const (
	commandBuffer = 64
	eventBuffer   = 256
)

// Client is a connected peer as seen by the relay.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	// Owned by the hub goroutine.
	name     string
	version  string
	welcomed bool
	inLobby  bool
	room     *Room
	actorID  int
	done     chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, commandBuffer),
		Events:   make(chan *Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Done is closed once the hub has forgotten the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
