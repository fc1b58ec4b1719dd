package common

import (
	"fmt"

	"github.com/scaly/core/pkg/message"
)

// MiddlewareChain represents an ordered list of stages
type MiddlewareChain []Stage

// NewMiddlewareChain creates a new middleware chain
func NewMiddlewareChain(stages ...Stage) MiddlewareChain {
	return append(MiddlewareChain(nil), stages...)
}

// Append returns a new chain with stages added to the end
func (c MiddlewareChain) Append(stages ...Stage) MiddlewareChain {
	result := make(MiddlewareChain, 0, len(c)+len(stages))
	result = append(result, c...)
	return append(result, stages...)
}

// Prepend returns a new chain with stages added to the beginning
func (c MiddlewareChain) Prepend(stages ...Stage) MiddlewareChain {
	result := make(MiddlewareChain, len(stages)+len(c))
	copy(result, stages)
	copy(result[len(stages):], c)
	return result
}

// Then composes the chain around the terminal handler h. The chain is built
// from the end backward, so the first stage runs its pre-processing first
// and its post-processing last.
func (c MiddlewareChain) Then(h Handler) Handler {
	next := terminal(h)
	for i := len(c) - 1; i >= 0; i-- {
		next = link(i, c[i], next)
	}
	return next
}

// ThenFunc composes the chain around a handler function
func (c MiddlewareChain) ThenFunc(f HandlerFunc) Handler {
	return c.Then(f)
}

// terminal guards the innermost handler against returning nothing.
func terminal(h Handler) Handler {
	return HandlerFunc(func(req *message.ServerRequest, resp *message.Response) (*message.Response, error) {
		out, err := h.Handle(req, resp)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, &MiddlewareProtocolError{
				Stage:  fmt.Sprintf("terminal handler %T", h),
				Reason: "returned neither a response nor an error",
			}
		}
		return out, nil
	})
}

// link binds stage s to its continuation. Each invocation gets its own
// guarded continuation so a second call to next is reported instead of
// running the rest of the chain twice.
func link(position int, s Stage, next Handler) Handler {
	return HandlerFunc(func(req *message.ServerRequest, resp *message.Response) (*message.Response, error) {
		calls := 0
		guarded := HandlerFunc(func(req *message.ServerRequest, resp *message.Response) (*message.Response, error) {
			calls++
			if calls > 1 {
				return nil, &MiddlewareProtocolError{
					Stage:  describe(position, s),
					Reason: "called next more than once",
				}
			}
			return next.Handle(req, resp)
		})

		out, err := s.Process(req, resp, guarded)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, &MiddlewareProtocolError{
				Stage:  describe(position, s),
				Reason: "returned neither a response nor an error",
			}
		}
		return out, nil
	})
}

func describe(position int, s Stage) string {
	return fmt.Sprintf("stage %d (%T)", position, s)
}
