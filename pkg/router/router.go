package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
	"go.uber.org/zap"
)

// RouteAttribute is the request attribute holding the matched route pattern.
const RouteAttribute = "router.route"

// ErrRouterSealed is returned when a route is registered after the first dispatch.
var ErrRouterSealed = errors.New("router: routes cannot be registered after dispatch has started")

// slowRequest is the duration above which a dispatch is logged at Warn.
const slowRequest = time.Second

// Params holds the path parameters captured by the matched route.
type Params = httprouter.Params

// paramsKey is the context key under which Dispatch stores the route parameters.
type paramsKey struct{}

// Router is the main router struct. Routes are registered up front and the
// table is read-only once the first request has been dispatched.
type Router struct {
	config RouterConfig
	logger *zap.Logger
	global common.MiddlewareChain

	mu     sync.Mutex
	routes []*route
	sealed atomic.Bool
}

type route struct {
	pattern    *pattern
	methods    map[string]bool
	stages     common.MiddlewareChain
	controller Controller
}

// NewRouter creates a new Router with the given configuration and registers
// the routes of its sub-routers.
func NewRouter(config RouterConfig) (*Router, error) {
	// Set up the logger
	logger := config.Logger
	if logger == nil {
		// Create a default logger if none is provided
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			// Fallback to a no-op logger if we can't create a production logger
			logger = zap.NewNop()
		}
	}

	r := &Router{
		config: config,
		logger: logger,
		global: common.NewMiddlewareChain(config.Middlewares...),
	}

	for _, sr := range config.SubRouters {
		if err := r.RegisterSubRouter(sr); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RegisterSubRouter registers all routes in a sub-router under its path prefix.
func (r *Router) RegisterSubRouter(sr SubRouterConfig) error {
	prefix := strings.TrimSuffix(sr.PathPrefix, "/")
	for _, rc := range sr.Routes {
		stages := common.NewMiddlewareChain(sr.Middlewares...).Append(rc.Middlewares...)
		if err := r.register(prefix+rc.Path, rc.Methods, stages, rc.Handler); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRoute registers a route with the router.
// For routes with typed request and response bodies, use RegisterGenericRoute.
func (r *Router) RegisterRoute(rc RouteConfigBase) error {
	return r.register(rc.Path, rc.Methods, rc.Middlewares, rc.Handler)
}

// RegisterGenericRoute registers a route with generic request and response types.
// This is a standalone function rather than a method because Go methods cannot have type parameters.
func RegisterGenericRoute[T any, U any](r *Router, rc RouteConfig[T, U]) error {
	if rc.Codec == nil || rc.Handler == nil {
		return fmt.Errorf("router: generic route %q needs a codec and a handler", rc.Path)
	}

	controller := func(req *message.ServerRequest, resp *message.Response, _ Params) (*message.Response, error) {
		data, err := rc.Codec.Decode(req)
		if err != nil {
			r.logger.Warn("Failed to decode request", r.logFields(req, nil, zap.Error(err))...)
			return nil, NewHTTPError(http.StatusBadRequest, "Failed to decode request")
		}

		out, err := rc.Handler(req, data)
		if err != nil {
			return nil, err
		}

		encoded, err := rc.Codec.Encode(resp, out)
		if err != nil {
			return nil, fmt.Errorf("encode response: %w", err)
		}
		return encoded, nil
	}

	return r.register(rc.Path, rc.Methods, rc.Middlewares, controller)
}

func (r *Router) register(path string, methods []string, stages []common.Stage, controller Controller) error {
	if controller == nil {
		return fmt.Errorf("router: route %q has no handler", path)
	}
	if len(methods) == 0 {
		return fmt.Errorf("router: route %q has no methods", path)
	}
	p, err := compilePattern(path)
	if err != nil {
		return err
	}

	rt := &route{
		pattern:    p,
		methods:    make(map[string]bool, len(methods)),
		stages:     r.global.Append(stages...),
		controller: controller,
	}
	for _, m := range methods {
		rt.methods[strings.ToUpper(m)] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return ErrRouterSealed
	}
	r.routes = append(r.routes, rt)
	r.logger.Debug("Route registered",
		zap.String("pattern", path),
		zap.Strings("methods", methods),
		zap.Int("stages", len(rt.stages)),
	)
	return nil
}

// seal freezes the route table. Registrations that won the lock earlier are
// visible to every dispatch that observes sealed.
func (r *Router) seal() {
	if r.sealed.Load() {
		return
	}
	r.mu.Lock()
	r.sealed.Store(true)
	r.mu.Unlock()
}

// Dispatch matches req against the route table and runs the matched route's
// chain. The first route in registration order whose method and pattern
// match wins. When nothing matches, found is false and both the response and
// the error are nil. Errors raised by stages or the controller are returned
// unchanged.
func (r *Router) Dispatch(req *message.ServerRequest) (resp *message.Response, found bool, err error) {
	r.seal()
	start := time.Now()

	path := httprouter.CleanPath(req.URI().Path())
	rt, params := r.match(req.Method(), path)
	if rt == nil {
		r.logger.Debug("Route not found", r.logFields(req, nil)...)
		return nil, false, nil
	}

	req = req.WithContext(context.WithValue(req.Context(), paramsKey{}, params)).
		WithAttribute(RouteAttribute, message.StringValue(rt.pattern.raw))

	resp, err = rt.stages.Then(terminal(rt.controller, params)).Handle(req, message.NewResponse())
	duration := time.Since(start)
	if err != nil {
		r.logger.Error("Dispatch failed", r.logFields(req, nil,
			zap.String("route", rt.pattern.raw),
			zap.Duration("duration", duration),
			zap.Error(err),
		)...)
		return nil, true, err
	}

	fields := r.logFields(req, resp,
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", duration),
	)
	switch {
	case resp.StatusCode() >= 500:
		r.logger.Error("Server error", fields...)
	case resp.StatusCode() >= 400:
		r.logger.Warn("Client error", fields...)
	default:
		r.logger.Debug("Request dispatched", fields...)
	}
	if duration > slowRequest {
		r.logger.Warn("Slow request", fields...)
	}
	return resp, true, nil
}

func (r *Router) match(method, path string) (*route, Params) {
	for _, rt := range r.routes {
		if !rt.methods[method] {
			continue
		}
		if params, ok := rt.pattern.match(path); ok {
			return rt, params
		}
	}
	return nil, nil
}

// terminal adapts a controller to the chain's handler shape.
func terminal(c Controller, params Params) common.Handler {
	return common.HandlerFunc(func(req *message.ServerRequest, resp *message.Response) (*message.Response, error) {
		return c(req, resp, params)
	})
}

// logFields builds the method and path fields, prepending the trace id when
// enabled and present on the response or request.
func (r *Router) logFields(req *message.ServerRequest, resp *message.Response, extra ...zap.Field) []zap.Field {
	fields := make([]zap.Field, 0, len(extra)+3)
	if r.config.EnableTraceID {
		if id := traceID(req, resp); id != "" {
			fields = append(fields, zap.String("trace_id", id))
		}
	}
	fields = append(fields,
		zap.String("method", req.Method()),
		zap.String("path", req.URI().Path()),
	)
	return append(fields, extra...)
}

func traceID(req *message.ServerRequest, resp *message.Response) string {
	if resp != nil {
		if v, ok := resp.Attribute(common.TraceIDAttribute); ok {
			return v.Str()
		}
	}
	v, _ := req.Attribute(common.TraceIDAttribute)
	return v.Str()
}

// ParamsFromRequest retrieves the route parameters stored by Dispatch.
// This allows stages to access route parameters extracted from the URL.
func ParamsFromRequest(req *message.ServerRequest) Params {
	params, _ := req.Context().Value(paramsKey{}).(Params)
	return params
}

// ParamFromRequest retrieves a specific route parameter.
func ParamFromRequest(req *message.ServerRequest, name string) string {
	return ParamsFromRequest(req).ByName(name)
}
