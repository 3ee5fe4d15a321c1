// Package audit records operator route edits as JSON lines.
package audit

import (
	"os/user"
	"strconv"
	"time"
)

// Operations recorded by the editor commands.
const (
	OpRouteAdd    = "route.add"
	OpRouteDelete = "route.delete"
)

// Event is one route edit and how far it got.
type Event struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	User        string        `json:"user"`
	Host        string        `json:"host"`
	Operation   string        `json:"operation"`
	Destination string        `json:"destination"`
	NextHop     string        `json:"next_hop,omitempty"`
	Store       bool          `json:"store"`
	Config      bool          `json:"config"`
	Reloaded    bool          `json:"reloaded"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Filter selects events in Query. Zero fields match everything.
type Filter struct {
	Host        string
	User        string
	Operation   string
	Destination string
	Since       time.Time
	Until       time.Time
	FailedOnly  bool
	Limit       int
}

// NewEvent starts an event for the current OS user.
func NewEvent(host, operation, destination string) *Event {
	return &Event{
		ID:          strconv.FormatInt(time.Now().UnixNano(), 36),
		Timestamp:   time.Now(),
		User:        currentUser(),
		Host:        host,
		Operation:   operation,
		Destination: destination,
	}
}

// WithNextHop sets the gateway of an added route.
func (e *Event) WithNextHop(nextHop string) *Event {
	e.NextHop = nextHop
	return e
}

// WithPhases records which phases completed.
func (e *Event) WithPhases(store, config, reloaded bool) *Event {
	e.Store = store
	e.Config = config
	e.Reloaded = reloaded
	return e
}

// Finish sets the result and the elapsed time since the event was created.
func (e *Event) Finish(err error) *Event {
	e.Success = err == nil
	if err != nil {
		e.Error = err.Error()
	}
	e.Duration = time.Since(e.Timestamp)
	return e
}

func (e *Event) matches(f Filter) bool {
	switch {
	case f.Host != "" && e.Host != f.Host:
		return false
	case f.User != "" && e.User != f.User:
		return false
	case f.Operation != "" && e.Operation != f.Operation:
		return false
	case f.Destination != "" && e.Destination != f.Destination:
		return false
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && e.Timestamp.After(f.Until):
		return false
	case f.FailedOnly && e.Success:
		return false
	}
	return true
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}
