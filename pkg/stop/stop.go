// Package stop implements a pattern for shutting down a group of
// long-running components, each of which may take a moment to drain.
package stop

import "sync"

// Result is returned by Stop. It carries at most one error, then closes.
type Result <-chan error

// Channel is the write side of a Result.
type Channel chan error

// NewChannel allocates a Channel.
func NewChannel() Channel { return make(Channel) }

// AlreadyStopped is a Result that is immediately closed, for Stoppers that
// guard against being stopped more than once.
var AlreadyStopped = func() Result {
	c := NewChannel()
	c.Done()
	return c.Result()
}()

// Done closes the channel, signaling a clean shutdown.
func (c Channel) Done() { close(c) }

// Result returns the read-only view of the channel.
func (c Channel) Result() Result { return Result((chan error)(c)) }

// Stopper is implemented by anything with a goroutine or resource that needs
// an orderly shutdown.
type Stopper interface {
	// Stop returns immediately and performs the actual shutdown in a
	// separate goroutine, signaling completion via the returned Result.
	Stop() Result
}

// Group is a collection of Stoppers that can be stopped all at once.
type Group struct {
	mu        sync.Mutex
	stoppable []Stopper
}

// NewGroup allocates a new Group.
func NewGroup() *Group {
	return &Group{}
}

// Add appends a Stopper to the Group.
func (g *Group) Add(s Stopper) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stoppable = append(g.stoppable, s)
}

// Stop stops every member of the Group concurrently and returns a Result
// that closes once all of them have finished, carrying the first error
// encountered, if any.
func (g *Group) Stop() Result {
	g.mu.Lock()
	stoppable := append([]Stopper(nil), g.stoppable...)
	g.mu.Unlock()

	out := NewChannel()
	go func() {
		results := make([]Result, len(stoppable))
		for i, s := range stoppable {
			results[i] = s.Stop()
		}

		var first error
		for _, r := range results {
			if err := <-r; err != nil && first == nil {
				first = err
			}
		}

		if first != nil {
			out <- first
		}
		out.Done()
	}()

	return out.Result()
}
