//go:build windows

package stderr

import "os"

// Capture is inert on Windows, where the audio backend keeps quiet.
type Capture struct {
	lines chan string
}

// Start returns a capture that never yields anything.
func Start() (*Capture, error) {
	return &Capture{lines: make(chan string)}, nil
}

// Lines yields nothing until Stop closes it.
func (c *Capture) Lines() <-chan string {
	return c.lines
}

// WriteOriginal writes to stderr.
func (c *Capture) WriteOriginal(msg string) {
	_, _ = os.Stderr.WriteString(msg)
}

// Stop closes Lines.
func (c *Capture) Stop() {
	select {
	case <-c.lines:
	default:
		close(c.lines)
	}
}
