package voice

import "fmt"

// ConnectionError reports a channel that could not be joined. Any partial
// connection has already been destroyed.
type ConnectionError struct {
	ChannelID string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.ChannelID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
