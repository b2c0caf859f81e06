// Package effects turns sign-in transitions into navigation and user notifications
package effects

import (
	"fmt"
	"io"
	"sync"

	"github.com/shopsync-dev/shopsync/internal/authflow"
)

// Navigator moves the user to a route
type Navigator interface {
	Navigate(route string)
}

// Notifier shows transient messages to the user
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Effects reacts to authflow events
type Effects struct {
	navigator Navigator
	notifier  Notifier

	mu        sync.Mutex
	lastError string
}

// New creates the effect layer
func New(navigator Navigator, notifier Notifier) *Effects {
	return &Effects{navigator: navigator, notifier: notifier}
}

// Attach subscribes to m and returns the unsubscribe function
func (e *Effects) Attach(m *authflow.Machine) func() {
	return m.Subscribe(e.Handle)
}

// Handle applies one event. Successes navigate. Failures notify, except that
// the same message is not shown twice in a row.
func (e *Effects) Handle(ev authflow.Event) {
	switch ev.Kind {
	case authflow.EventSucceeded:
		e.mu.Lock()
		e.lastError = ""
		e.mu.Unlock()
		if ev.Navigate != "" && e.navigator != nil {
			e.navigator.Navigate(ev.Navigate)
		}
	case authflow.EventFailed:
		e.mu.Lock()
		repeat := ev.Error == e.lastError
		e.lastError = ev.Error
		e.mu.Unlock()
		if !repeat && ev.Error != "" && e.notifier != nil {
			e.notifier.Error(ev.Error)
		}
	}
}

// Console writes notifications as lines of text
type Console struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

// NewConsole creates a console notifier writing successes to out and errors to errOut
func NewConsole(out, errOut io.Writer) *Console {
	return &Console{out: out, err: errOut}
}

func (c *Console) Success(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "✓ %s\n", msg)
}

func (c *Console) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.err, "✗ %s\n", msg)
}

// RouteRecorder is a Navigator that remembers where it was sent
type RouteRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (r *RouteRecorder) Navigate(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

// Last returns the most recent route, or "" when never navigated
func (r *RouteRecorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.routes) == 0 {
		return ""
	}
	return r.routes[len(r.routes)-1]
}

// Routes returns every route in order
func (r *RouteRecorder) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routes...)
}
