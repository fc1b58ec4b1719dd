// Package middleware provides stock stages for the scaly router.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
	"go.uber.org/zap"
)

const plainText = "text/plain; charset=utf-8"

// statusResponse returns resp replaced by a plain-text body holding the standard phrase for code.
func statusResponse(resp *message.Response, code int) (*message.Response, error) {
	return resp.Text(code, plainText, http.StatusText(code))
}

// withHeaders sets each name/value pair on resp in order.
func withHeaders(resp *message.Response, pairs ...string) (*message.Response, error) {
	for i := 0; i+1 < len(pairs); i += 2 {
		var err error
		if resp, err = resp.WithHeader(pairs[i], pairs[i+1]); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// requestFields returns the common log fields for req, with the trace id first when present.
func requestFields(req *message.ServerRequest, extra ...zap.Field) []zap.Field {
	fields := make([]zap.Field, 0, len(extra)+3)
	if id := TraceID(req); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	fields = append(fields,
		zap.String("method", req.Method()),
		zap.String("path", req.URI().Path()),
	)
	return append(fields, extra...)
}

// Recovery is a stage that recovers from panics in later stages and the
// controller, answering with 500 Internal Server Error.
func Recovery(logger *zap.Logger) common.Stage {
	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (out *message.Response, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Panic recovered", requestFields(req,
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
				)...)
				out, err = statusResponse(resp, http.StatusInternalServerError)
			}
		}()

		return next.Handle(req, resp)
	})
}

// Logging is a stage that logs every request once the rest of the chain returns
func Logging(logger *zap.Logger) common.Stage {
	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		start := time.Now()

		out, err := next.Handle(req, resp)
		duration := time.Since(start)

		if err != nil {
			logger.Error("Request failed", requestFields(req,
				zap.Duration("duration", duration),
				zap.Error(err),
			)...)
			return nil, err
		}

		fields := requestFields(req,
			zap.Int("status", out.StatusCode()),
			zap.Duration("duration", duration),
		)

		// Use appropriate log level based on status code and duration
		switch {
		case out.StatusCode() >= 500:
			logger.Error("Server error", fields...)
		case out.StatusCode() >= 400:
			logger.Warn("Client error", fields...)
		case duration > time.Second:
			logger.Warn("Slow request", fields...)
		default:
			logger.Debug("Request", fields...)
		}
		return out, nil
	})
}

// MaxBodySize is a stage that answers 413 Request Entity Too Large when the
// declared Content-Length or the buffered body exceeds maxSize bytes.
// A maxSize of 0 or less disables the check.
func MaxBodySize(maxSize int64) common.Stage {
	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		if maxSize <= 0 {
			return next.Handle(req, resp)
		}
		if line := req.HeaderLine("Content-Length"); line != "" {
			if n, err := strconv.ParseInt(line, 10, 64); err == nil && n > maxSize {
				return statusResponse(resp, http.StatusRequestEntityTooLarge)
			}
		}
		if body := req.Body(); body.IsSeekable() {
			if size, err := body.Size(); err == nil && size > maxSize {
				return statusResponse(resp, http.StatusRequestEntityTooLarge)
			}
		}
		return next.Handle(req, resp)
	})
}

// CORSConfig defines the cross-origin policy applied by CORS.
type CORSConfig struct {
	AllowOrigins     []string      // Allowed origins; "*" allows any
	AllowMethods     []string      // Methods announced to preflight requests
	AllowHeaders     []string      // Request headers announced to preflight requests
	ExposeHeaders    []string      // Response headers readable by the browser
	AllowCredentials bool          // Send Access-Control-Allow-Credentials
	MaxAge           time.Duration // How long a preflight result may be cached
}

func (c CORSConfig) allowOrigin(origin string) (string, bool) {
	for _, o := range c.AllowOrigins {
		if o == "*" {
			if c.AllowCredentials {
				return origin, true
			}
			return "*", true
		}
		if strings.EqualFold(o, origin) {
			return origin, true
		}
	}
	return "", false
}

// CORS is a stage that adds CORS headers to responses for allowed origins.
// Preflight requests are answered with 204 No Content without running later stages.
func CORS(config CORSConfig) common.Stage {
	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		origin := req.HeaderLine("Origin")
		if origin == "" {
			return next.Handle(req, resp)
		}
		allowed, ok := config.allowOrigin(origin)
		if !ok {
			return next.Handle(req, resp)
		}

		headers := []string{"Access-Control-Allow-Origin", allowed, "Vary", "Origin"}
		if config.AllowCredentials {
			headers = append(headers, "Access-Control-Allow-Credentials", "true")
		}

		// Handle preflight requests
		if req.Method() == http.MethodOptions && req.HasHeader("Access-Control-Request-Method") {
			if len(config.AllowMethods) > 0 {
				headers = append(headers, "Access-Control-Allow-Methods", strings.Join(config.AllowMethods, ", "))
			}
			if len(config.AllowHeaders) > 0 {
				headers = append(headers, "Access-Control-Allow-Headers", strings.Join(config.AllowHeaders, ", "))
			}
			if config.MaxAge > 0 {
				headers = append(headers, "Access-Control-Max-Age", strconv.Itoa(int(config.MaxAge.Seconds())))
			}
			preflight, err := resp.WithStatus(http.StatusNoContent, "")
			if err != nil {
				return nil, err
			}
			return withHeaders(preflight, headers...)
		}

		out, err := next.Handle(req, resp)
		if err != nil {
			return nil, err
		}
		if len(config.ExposeHeaders) > 0 {
			headers = append(headers, "Access-Control-Expose-Headers", strings.Join(config.ExposeHeaders, ", "))
		}
		return withHeaders(out, headers...)
	})
}
