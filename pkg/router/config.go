// Package router maps server requests onto registered routes and runs each
// route's middleware chain around its controller.
package router

import (
	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
	"go.uber.org/zap"
)

// RouterConfig defines the global configuration for the router.
type RouterConfig struct {
	Logger        *zap.Logger       // Logger for all router operations
	EnableTraceID bool              // Prepend the trace id attribute to log entries
	SubRouters    []SubRouterConfig // Sub-routers with their own configurations
	Middlewares   []common.Stage    // Global stages applied to all routes
}

// SubRouterConfig defines configuration for a group of routes with a common path prefix.
// Its stages run after the global stages and before each route's own stages.
type SubRouterConfig struct {
	PathPrefix  string            // Common path prefix for all routes in this sub-router
	Routes      []RouteConfigBase // Routes in this sub-router
	Middlewares []common.Stage    // Stages applied to all routes in this sub-router
}

// RouteConfigBase defines a route bound to a plain controller.
type RouteConfigBase struct {
	Path        string         // Route pattern, prefixed with the sub-router path prefix if applicable
	Methods     []string       // HTTP methods this route handles
	Handler     Controller     // Controller action invoked at the end of the chain
	Middlewares []common.Stage // Stages applied to this specific route
}

// RouteConfig defines a route with generic request and response types.
// The router decodes the request body with Codec, calls Handler and encodes
// the result into the response.
type RouteConfig[T any, U any] struct {
	Path        string               // Route pattern, prefixed with the sub-router path prefix if applicable
	Methods     []string             // HTTP methods this route handles
	Codec       Codec[T, U]          // Codec for marshaling/unmarshaling request and response
	Handler     GenericHandler[T, U] // Generic handler function
	Middlewares []common.Stage       // Stages applied to this specific route
}

// Controller is the terminal action of a route. It receives the request as
// shaped by the route's stages, a fresh response and the unescaped path parameters.
type Controller func(req *message.ServerRequest, resp *message.Response, params Params) (*message.Response, error)

// GenericHandler defines a handler function with generic request and response types.
// The type parameters T and U represent the request and response data types respectively.
type GenericHandler[T any, U any] func(req *message.ServerRequest, data T) (U, error)

// Codec defines an interface for marshaling and unmarshaling request and response data.
// The codec package provides JSON and Protocol Buffers implementations.
type Codec[T any, U any] interface {
	// Decode reads the request body and converts it into a value of type T.
	Decode(req *message.ServerRequest) (T, error)

	// Encode serializes data into a new body on resp and sets the
	// Content-Type header, returning the resulting response.
	Encode(resp *message.Response, data U) (*message.Response, error)
}
