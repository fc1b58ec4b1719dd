package middleware

import (
	"github.com/google/uuid"
	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
)

// TraceHeader is the header carrying the trace id in both directions.
const TraceHeader = "X-Trace-ID"

// TraceMiddleware creates a stage that assigns a trace id to each request.
// A well-formed UUID in the incoming X-Trace-ID header is reused; otherwise a
// new one is generated. The id is stored under common.TraceIDAttribute on
// the request and the response, and echoed in the X-Trace-ID response header.
func TraceMiddleware() common.Stage {
	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		traceID := uuid.New().String()
		if incoming, err := uuid.Parse(req.HeaderLine(TraceHeader)); err == nil {
			traceID = incoming.String()
		}
		value := message.StringValue(traceID)

		out, err := next.Handle(req.WithAttribute(common.TraceIDAttribute, value), resp)
		if err != nil {
			return nil, err
		}
		out, err = out.WithHeader(TraceHeader, traceID)
		if err != nil {
			return nil, err
		}
		return out.WithAttribute(common.TraceIDAttribute, value), nil
	})
}

// TraceID returns the trace id stored on req, or "" when none was assigned.
func TraceID(req *message.ServerRequest) string {
	v, _ := req.Attribute(common.TraceIDAttribute)
	return v.Str()
}
