//go:build !windows

// Package stderr diverts file descriptor 2 while the console owns the
// terminal. The audio backend talks to ALSA through C code that writes
// there directly, and those lines would otherwise tear the screen.
package stderr

import (
	"bufio"
	"os"
	"strings"
	"syscall"
)

const bufferSize = 100

// Capture holds a redirected stderr.
type Capture struct {
	lines    chan string
	orig     int
	r, w     *os.File
	done     chan struct{}
	restored bool
}

// Start redirects fd 2 into a pipe. It must run before the audio output
// is initialized. On error stderr is left untouched and the caller can
// carry on without capture.
func Start() (*Capture, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	orig, err := syscall.Dup(int(os.Stderr.Fd()))
	if err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	if err := syscall.Dup2(int(w.Fd()), int(os.Stderr.Fd())); err != nil {
		syscall.Close(orig)
		r.Close()
		w.Close()
		return nil, err
	}

	c := &Capture{
		lines: make(chan string, bufferSize),
		orig:  orig,
		r:     r,
		w:     w,
		done:  make(chan struct{}),
	}
	go c.read()
	return c, nil
}

func (c *Capture) read() {
	defer close(c.done)
	defer close(c.lines)
	scanner := bufio.NewScanner(c.r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case c.lines <- line:
		default:
			// nobody is reading; drop
		}
	}
}

// Lines yields captured output. It is closed once the capture stops.
func (c *Capture) Lines() <-chan string {
	return c.lines
}

// WriteOriginal writes to the terminal's real stderr.
func (c *Capture) WriteOriginal(msg string) {
	_, _ = syscall.Write(c.orig, []byte(msg))
}

// Stop restores fd 2.
func (c *Capture) Stop() {
	if c.restored {
		return
	}
	c.restored = true
	_ = syscall.Dup2(c.orig, int(os.Stderr.Fd()))
	_ = syscall.Close(c.orig)
	c.w.Close()
	<-c.done
	c.r.Close()
}
