// Package birdc talks to the BIRD daemon through its birdc control client:
// it fetches the routing table dump and triggers reconfiguration.
package birdc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/birdsync/birdsync/pkg/util"
)

// DefaultTimeout bounds a single birdc invocation.
const DefaultTimeout = 10 * time.Second

// Runner executes a birdc command line and returns its combined output.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// Client issues birdc commands through a Runner.
type Client struct {
	runner  Runner
	binary  string
	socket  string
	table   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBinary sets the birdc executable (default "birdc").
func WithBinary(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithSocket points birdc at a non-default control socket.
func WithSocket(path string) Option {
	return func(c *Client) { c.socket = path }
}

// WithTable restricts "show route" to one routing table.
func WithTable(name string) Option {
	return func(c *Client) { c.table = name }
}

// WithTimeout bounds each invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a birdc client.
func NewClient(runner Runner, opts ...Option) *Client {
	c := &Client{
		runner:  runner,
		binary:  "birdc",
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) command(args ...string) []string {
	cmd := []string{c.binary}
	if c.socket != "" {
		cmd = append(cmd, "-s", c.socket)
	}
	return append(cmd, args...)
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.runner.Run(ctx, c.command(args...)...)
}

// ShowRoute returns the raw "show route" dump. Failures are reported as
// *util.SourceError, which matches util.ErrSourceUnavailable.
func (c *Client) ShowRoute(ctx context.Context) (string, error) {
	args := []string{"show", "route"}
	if c.table != "" {
		args = append(args, "table", c.table)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return "", &util.SourceError{Command: strings.Join(c.command(args...), " "), Output: out, Err: err}
	}
	if isControlFailure(out) {
		return "", &util.SourceError{
			Command: strings.Join(c.command(args...), " "),
			Output:  out,
			Err:     fmt.Errorf("control socket unavailable"),
		}
	}
	return out, nil
}

// Configure asks BIRD to reload its configuration file. The daemon's output
// is returned in both cases so callers can show it.
func (c *Client) Configure(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "configure")
	if err != nil {
		return out, fmt.Errorf("birdc configure: %w", err)
	}
	if !reconfigured(out) {
		return out, fmt.Errorf("birdc configure: daemon did not accept the configuration")
	}
	util.Debugf("birdc configure: %s", strings.TrimSpace(out))
	return out, nil
}

// birdc exits zero even when it cannot reach the daemon.
func isControlFailure(out string) bool {
	return strings.Contains(out, "Unable to connect to server control socket")
}

// reconfigured recognizes the replies BIRD sends for an accepted configure:
// "Reconfigured", "Reconfiguration in progress", "Reconfiguration already in
// progress, queueing new config".
func reconfigured(out string) bool {
	if isControlFailure(out) {
		return false
	}
	return strings.Contains(out, "Reconfigured") ||
		strings.Contains(out, "Reconfiguration in progress") ||
		strings.Contains(out, "Reconfiguration already in progress")
}
