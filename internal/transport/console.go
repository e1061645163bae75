package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Console is a stdin/stdout transport for local use. Slash commands map to
// Event.Command, a bare number picks from the most recently presented
// options, and "/photo <path> [caption]" attaches an image from disk.
type Console struct {
	userID int64
	name   string
	out    io.Writer
	events chan Event
	done   chan struct{}

	mu          sync.Mutex
	lastOptions []string

	closeOnce sync.Once
}

// NewConsole creates a console transport for a single local user and
// starts reading stdin.
func NewConsole(userID int64, name string) *Console {
	return newConsole(userID, name, os.Stdin, os.Stdout)
}

func newConsole(userID int64, name string, in io.Reader, out io.Writer) *Console {
	c := &Console{
		userID: userID,
		name:   name,
		out:    out,
		events: make(chan Event),
		done:   make(chan struct{}),
	}
	go c.readLoop(in)
	return c
}

// Events returns the inbound stream. Closed on EOF or Close.
func (c *Console) Events() <-chan Event {
	return c.events
}

// Send prints the reply, chunked to the platform cap, with numbered
// options the user can answer by index.
func (c *Console) Send(_ context.Context, _ int64, reply Reply) error {
	for _, chunk := range Split(reply.Text, MaxMessageLength) {
		if _, err := fmt.Fprintln(c.out, chunk); err != nil {
			return fmt.Errorf("writing reply: %w", err)
		}
	}
	for i, opt := range reply.Options {
		if _, err := fmt.Fprintf(c.out, "  %d) %s\n", i+1, opt); err != nil {
			return fmt.Errorf("writing option: %w", err)
		}
	}

	c.mu.Lock()
	c.lastOptions = reply.Options
	c.mu.Unlock()
	return nil
}

// Close stops event delivery. The read loop exits on its next line.
func (c *Console) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Console) readLoop(in io.Reader) {
	defer close(c.events)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		select {
		case c.events <- c.parse(line):
		case <-c.done:
			return
		}
	}
}

// parse turns one input line into an Event.
func (c *Console) parse(line string) Event {
	ev := Event{UserID: c.userID, Name: c.name}

	switch {
	case strings.HasPrefix(line, "/photo "):
		rest := strings.TrimSpace(strings.TrimPrefix(line, "/photo "))
		path, caption, _ := strings.Cut(rest, " ")
		data, err := os.ReadFile(path)
		if err != nil {
			// Deliver as text so the user sees a normal error reply
			// instead of silence.
			ev.Text = line
			return ev
		}
		ev.Image = &Image{Data: data}
		ev.Text = strings.TrimSpace(caption)
		return ev

	case strings.HasPrefix(line, "/"):
		cmd, rest, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
		ev.Command = strings.ToLower(cmd)
		ev.Text = strings.TrimSpace(rest)
		return ev
	}

	// A bare number selects from the last presented options.
	if n, err := strconv.Atoi(line); err == nil {
		c.mu.Lock()
		opts := c.lastOptions
		c.mu.Unlock()
		if n >= 1 && n <= len(opts) {
			ev.Selection = opts[n-1]
			return ev
		}
	}

	ev.Text = line
	return ev
}
