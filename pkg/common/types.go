// Package common provides the handler and stage types shared across the scaly core.
package common

import (
	"fmt"

	"github.com/scaly/core/pkg/message"
)

// Handler turns a request and a response into the next response. Both the
// terminal controller and every continuation passed to a Stage are Handlers.
type Handler interface {
	Handle(req *message.ServerRequest, resp *message.Response) (*message.Response, error)
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(req *message.ServerRequest, resp *message.Response) (*message.Response, error)

// Handle calls f(req, resp).
func (f HandlerFunc) Handle(req *message.ServerRequest, resp *message.Response) (*message.Response, error) {
	return f(req, resp)
}

// Stage is one unit of the middleware chain.
// A stage either calls next exactly once and may post-process what it
// returns, or returns a response without calling next, which skips every
// later stage.
type Stage interface {
	Process(req *message.ServerRequest, resp *message.Response, next Handler) (*message.Response, error)
}

// StageFunc adapts an ordinary function to Stage.
type StageFunc func(req *message.ServerRequest, resp *message.Response, next Handler) (*message.Response, error)

// Process calls f(req, resp, next).
func (f StageFunc) Process(req *message.ServerRequest, resp *message.Response, next Handler) (*message.Response, error) {
	return f(req, resp, next)
}

// MiddlewareProtocolError reports a stage that broke the stage contract:
// it called next more than once, or returned neither a response nor an error.
type MiddlewareProtocolError struct {
	Stage  string // Stage description, e.g. its position and type
	Reason string
}

// Error implements the error interface.
func (e *MiddlewareProtocolError) Error() string {
	return fmt.Sprintf("middleware protocol violation in %s: %s", e.Stage, e.Reason)
}
