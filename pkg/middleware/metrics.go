package middleware

import (
	"time"

	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
	"github.com/scaly/core/pkg/metrics"
	"github.com/scaly/core/pkg/router"
)

// Metrics is a stage that records each request in collector, labeled by
// method, matched route pattern and status.
func Metrics(collector *metrics.Collector) common.Stage {
	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		done := collector.Begin()
		defer done()
		start := time.Now()

		route := req.AttributeOr(router.RouteAttribute, message.StringValue("unmatched")).Str()

		out, err := next.Handle(req, resp)
		if err != nil {
			collector.Observe(req.Method(), route, 0, time.Since(start), 0)
			return nil, err
		}

		var size int64
		if body := out.Body(); body.IsSeekable() {
			size, _ = body.Size()
		}
		collector.Observe(req.Method(), route, out.StatusCode(), time.Since(start), size)
		return out, nil
	})
}
