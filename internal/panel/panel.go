// Package panel owns the single side panel that shows the selected feature.
package panel

import "sync"

// Placeholder is the title shown when nothing is selected.
const Placeholder = "Nothing selected"

// State is a snapshot of the panel. Body is HTML that has already been
// escaped by the caller's template. Seq increases on every change.
type State struct {
	Open  bool   `json:"open" doc:"Whether the panel is showing a selection"`
	Title string `json:"title" doc:"Panel heading"`
	Body  string `json:"body" doc:"Rendered panel body (HTML)"`
	Seq   uint64 `json:"seq" doc:"Change counter, increases on every select or clear"`
}

// Controller holds the panel's selection state. The latest call wins.
type Controller struct {
	mu        sync.Mutex
	state     State
	observers []func(State)
}

// NewController returns a closed panel.
func NewController() *Controller {
	return &Controller{state: State{Title: Placeholder}}
}

// OnChange registers fn to receive every new state. Observers are called
// synchronously, in registration order, after the lock is released.
// Concurrent changes may be observed out of order; use Seq to drop stale
// states.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Select opens the panel with the given content.
func (c *Controller) Select(title, body string) {
	c.set(State{Open: true, Title: title, Body: body})
}

// Clear closes the panel and resets it to the placeholder.
func (c *Controller) Clear() {
	c.set(State{Title: Placeholder})
}

// State returns the current panel state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) set(s State) {
	c.mu.Lock()
	s.Seq = c.state.Seq + 1
	c.state = s
	observers := append([](func(State))(nil), c.observers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}
