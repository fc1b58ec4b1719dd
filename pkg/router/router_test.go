package router

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRequest(t *testing.T, method, target string) *message.ServerRequest {
	t.Helper()
	req, err := message.NewServerRequest(method, "http://example.com"+target, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	return req
}

func newTestRouter(t *testing.T, config RouterConfig) *Router {
	t.Helper()
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	r, err := NewRouter(config)
	if err != nil {
		t.Fatalf("Failed to create router: %v", err)
	}
	return r
}

func textController(body string) Controller {
	return func(req *message.ServerRequest, resp *message.Response, params Params) (*message.Response, error) {
		return resp.Text(200, "text/plain", body)
	}
}

func bodyOf(t *testing.T, resp *message.Response) string {
	t.Helper()
	if err := resp.Body().Rewind(); err != nil {
		t.Fatalf("Failed to rewind body: %v", err)
	}
	contents, err := resp.Body().Contents()
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return contents
}

func markerStage(name string, order *[]string) common.Stage {
	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		*order = append(*order, name+"-pre")
		out, err := next.Handle(req, resp)
		*order = append(*order, name+"-post")
		return out, err
	})
}

// TestRouteMatching tests that routes are matched correctly
func TestRouteMatching(t *testing.T) {
	r := newTestRouter(t, RouterConfig{
		SubRouters: []SubRouterConfig{
			{
				PathPrefix: "/api",
				Routes: []RouteConfigBase{
					{
						Path:    "/users/{id}",
						Methods: []string{"GET"},
						Handler: func(req *message.ServerRequest, resp *message.Response, params Params) (*message.Response, error) {
							return resp.Text(200, "text/plain", "User ID: "+params.ByName("id"))
						},
					},
				},
			},
		},
	})

	resp, found, err := r.Dispatch(newTestRequest(t, "GET", "/api/users/123"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !found {
		t.Fatal("Expected route to be found")
	}
	if resp.StatusCode() != 200 {
		t.Errorf("Expected status code %d, got %d", 200, resp.StatusCode())
	}
	if got := bodyOf(t, resp); got != "User ID: 123" {
		t.Errorf("Expected response body %q, got %q", "User ID: 123", got)
	}
}

// TestRouteMiss tests that unmatched paths and methods yield not found
func TestRouteMiss(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	if err := r.RegisterRoute(RouteConfigBase{
		Path:    "/hello",
		Methods: []string{"GET"},
		Handler: textController("hi"),
	}); err != nil {
		t.Fatalf("Failed to register route: %v", err)
	}

	for _, tc := range []struct{ method, path string }{
		{"GET", "/missing"},
		{"POST", "/hello"},
		{"GET", "/hello/extra"},
	} {
		resp, found, err := r.Dispatch(newTestRequest(t, tc.method, tc.path))
		if found || resp != nil || err != nil {
			t.Errorf("%s %s: expected not found, got found=%v resp=%v err=%v", tc.method, tc.path, found, resp, err)
		}
	}
}

// TestFirstMatchWins tests that registration order decides between overlapping routes
func TestFirstMatchWins(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	routes := []RouteConfigBase{
		{Path: "/users/{id:[0-9]+}", Methods: []string{"GET"}, Handler: textController("numeric")},
		{Path: "/users/me", Methods: []string{"GET"}, Handler: textController("me")},
		{Path: "/users/{name}", Methods: []string{"GET"}, Handler: textController("name")},
	}
	for _, rc := range routes {
		if err := r.RegisterRoute(rc); err != nil {
			t.Fatalf("Failed to register %s: %v", rc.Path, err)
		}
	}

	tests := map[string]string{
		"/users/42":  "numeric",
		"/users/me":  "me",
		"/users/bob": "name",
	}
	for path, expected := range tests {
		resp, found, err := r.Dispatch(newTestRequest(t, "GET", path))
		if err != nil || !found {
			t.Fatalf("%s: expected match, got found=%v err=%v", path, found, err)
		}
		if got := bodyOf(t, resp); got != expected {
			t.Errorf("%s: expected %q, got %q", path, expected, got)
		}
	}
}

// TestMethodNormalization tests that route methods match case-insensitively
func TestMethodNormalization(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	if err := r.RegisterRoute(RouteConfigBase{
		Path:    "/items",
		Methods: []string{"post", "PUT"},
		Handler: textController("ok"),
	}); err != nil {
		t.Fatalf("Failed to register route: %v", err)
	}

	for _, method := range []string{"POST", "put", "Post"} {
		if _, found, _ := r.Dispatch(newTestRequest(t, method, "/items")); !found {
			t.Errorf("Expected %s to match", method)
		}
	}
}

// TestCleanPath tests that request paths are normalized before matching
func TestCleanPath(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	_ = r.RegisterRoute(RouteConfigBase{Path: "/a/b", Methods: []string{"GET"}, Handler: textController("ab")})
	_ = r.RegisterRoute(RouteConfigBase{Path: "/", Methods: []string{"GET"}, Handler: textController("root")})

	if _, found, _ := r.Dispatch(newTestRequest(t, "GET", "/a//x/../b")); !found {
		t.Error("Expected cleaned path to match /a/b")
	}
	resp, found, _ := r.Dispatch(newTestRequest(t, "GET", ""))
	if !found {
		t.Fatal("Expected empty path to match /")
	}
	if got := bodyOf(t, resp); got != "root" {
		t.Errorf("Expected %q, got %q", "root", got)
	}
}

// TestStageOrder tests that global, sub-router and route stages run in that order
func TestStageOrder(t *testing.T) {
	var order []string
	r := newTestRouter(t, RouterConfig{
		Middlewares: []common.Stage{markerStage("global", &order)},
		SubRouters: []SubRouterConfig{
			{
				PathPrefix:  "/api/",
				Middlewares: []common.Stage{markerStage("group", &order)},
				Routes: []RouteConfigBase{
					{
						Path:        "/ping",
						Methods:     []string{"GET"},
						Middlewares: []common.Stage{markerStage("route", &order)},
						Handler: func(req *message.ServerRequest, resp *message.Response, params Params) (*message.Response, error) {
							order = append(order, "H")
							return resp, nil
						},
					},
				},
			},
		},
	})

	if _, found, err := r.Dispatch(newTestRequest(t, "GET", "/api/ping")); !found || err != nil {
		t.Fatalf("Expected match, got found=%v err=%v", found, err)
	}

	expected := "global-pre,group-pre,route-pre,H,route-post,group-post,global-post"
	if got := strings.Join(order, ","); got != expected {
		t.Errorf("Expected order %s, got %s", expected, got)
	}
}

// TestShortCircuitSkipsController tests that a stage can answer without the controller
func TestShortCircuitSkipsController(t *testing.T) {
	called := false
	deny := common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		return resp.Text(403, "text/plain", "forbidden")
	})
	r := newTestRouter(t, RouterConfig{Middlewares: []common.Stage{deny}})
	_ = r.RegisterRoute(RouteConfigBase{
		Path:    "/secret",
		Methods: []string{"GET"},
		Handler: func(req *message.ServerRequest, resp *message.Response, params Params) (*message.Response, error) {
			called = true
			return resp, nil
		},
	})

	resp, found, err := r.Dispatch(newTestRequest(t, "GET", "/secret"))
	if err != nil || !found {
		t.Fatalf("Expected match, got found=%v err=%v", found, err)
	}
	if resp.StatusCode() != 403 {
		t.Errorf("Expected status code %d, got %d", 403, resp.StatusCode())
	}
	if called {
		t.Error("Expected controller not to run")
	}
}

// TestRouteAttributeAndParams tests what stages can see about the matched route
func TestRouteAttributeAndParams(t *testing.T) {
	var pattern, id string
	inspect := common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		v, _ := req.Attribute(RouteAttribute)
		pattern = v.Str()
		id = ParamFromRequest(req, "id")
		return next.Handle(req, resp)
	})
	r := newTestRouter(t, RouterConfig{Middlewares: []common.Stage{inspect}})
	_ = r.RegisterRoute(RouteConfigBase{Path: "/orders/{id}", Methods: []string{"GET"}, Handler: textController("ok")})

	if _, _, err := r.Dispatch(newTestRequest(t, "GET", "/orders/9")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pattern != "/orders/{id}" {
		t.Errorf("Expected route attribute %q, got %q", "/orders/{id}", pattern)
	}
	if id != "9" {
		t.Errorf("Expected id %q, got %q", "9", id)
	}
	if len(ParamsFromRequest(newTestRequest(t, "GET", "/"))) != 0 {
		t.Error("Expected no params on an undispatched request")
	}
}

// TestErrorsPropagate tests that controller errors reach the caller unchanged
func TestErrorsPropagate(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	boom := NewHTTPError(409, "conflict")
	r := newTestRouter(t, RouterConfig{Logger: zap.New(core)})
	_ = r.RegisterRoute(RouteConfigBase{
		Path:    "/fail",
		Methods: []string{"PUT"},
		Handler: func(req *message.ServerRequest, resp *message.Response, params Params) (*message.Response, error) {
			return nil, boom
		},
	})

	resp, found, err := r.Dispatch(newTestRequest(t, "PUT", "/fail"))
	if !found {
		t.Error("Expected route to be found")
	}
	if resp != nil {
		t.Error("Expected no response on error")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 409 {
		t.Errorf("Expected HTTPError 409, got %v", err)
	}
	if logs.FilterMessage("Dispatch failed").Len() != 1 {
		t.Error("Expected dispatch failure to be logged")
	}
}

// TestProtocolErrorPropagates tests that a broken stage surfaces as an error
func TestProtocolErrorPropagates(t *testing.T) {
	broken := common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		return nil, nil
	})
	r := newTestRouter(t, RouterConfig{})
	_ = r.RegisterRoute(RouteConfigBase{
		Path:        "/broken",
		Methods:     []string{"GET"},
		Handler:     textController("unreachable"),
		Middlewares: []common.Stage{broken},
	})

	_, _, err := r.Dispatch(newTestRequest(t, "GET", "/broken"))
	var protoErr *common.MiddlewareProtocolError
	if !errors.As(err, &protoErr) {
		t.Errorf("Expected MiddlewareProtocolError, got %v", err)
	}
}

// TestSealedAfterDispatch tests that routes cannot be added once dispatch starts
func TestSealedAfterDispatch(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	_ = r.RegisterRoute(RouteConfigBase{Path: "/a", Methods: []string{"GET"}, Handler: textController("a")})
	_, _, _ = r.Dispatch(newTestRequest(t, "GET", "/a"))

	err := r.RegisterRoute(RouteConfigBase{Path: "/b", Methods: []string{"GET"}, Handler: textController("b")})
	if !errors.Is(err, ErrRouterSealed) {
		t.Errorf("Expected ErrRouterSealed, got %v", err)
	}
	if _, found, _ := r.Dispatch(newTestRequest(t, "GET", "/b")); found {
		t.Error("Expected rejected route not to be dispatched")
	}
}

// TestRegisterRouteValidation tests that bad route definitions are rejected
func TestRegisterRouteValidation(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})

	if err := r.RegisterRoute(RouteConfigBase{Path: "/x", Methods: []string{"GET"}}); err == nil {
		t.Error("Expected error for missing handler")
	}
	if err := r.RegisterRoute(RouteConfigBase{Path: "/x", Handler: textController("x")}); err == nil {
		t.Error("Expected error for missing methods")
	}
	err := r.RegisterRoute(RouteConfigBase{Path: "x", Methods: []string{"GET"}, Handler: textController("x")})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("Expected ErrInvalidPattern, got %v", err)
	}

	_, err = NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		SubRouters: []SubRouterConfig{
			{PathPrefix: "/api", Routes: []RouteConfigBase{{Path: "/{", Methods: []string{"GET"}, Handler: textController("x")}}},
		},
	})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("Expected NewRouter to report ErrInvalidPattern, got %v", err)
	}
}

// TestDispatchLogging tests levels and trace id fields in dispatch logs
func TestDispatchLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	trace := common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		out, err := next.Handle(req.WithAttribute(common.TraceIDAttribute, message.StringValue("trace-123")), resp)
		if err != nil {
			return nil, err
		}
		return out.WithAttribute(common.TraceIDAttribute, message.StringValue("trace-123")), nil
	})
	r := newTestRouter(t, RouterConfig{
		Logger:        zap.New(core),
		EnableTraceID: true,
		Middlewares:   []common.Stage{trace},
	})
	_ = r.RegisterRoute(RouteConfigBase{
		Path:    "/teapot",
		Methods: []string{"GET"},
		Handler: func(req *message.ServerRequest, resp *message.Response, params Params) (*message.Response, error) {
			return resp.WithStatus(418, "")
		},
	})

	_, _, _ = r.Dispatch(newTestRequest(t, "GET", "/teapot"))
	_, _, _ = r.Dispatch(newTestRequest(t, "GET", "/nowhere"))

	warn := logs.FilterMessage("Client error").All()
	if len(warn) != 1 {
		t.Fatalf("Expected one client error entry, got %d", len(warn))
	}
	if warn[0].Level != zapcore.WarnLevel {
		t.Errorf("Expected Warn level, got %s", warn[0].Level)
	}
	fields := warn[0].ContextMap()
	if fields["trace_id"] != "trace-123" {
		t.Errorf("Expected trace_id field, got %v", fields["trace_id"])
	}
	if fields["status"] != int64(418) {
		t.Errorf("Expected status 418, got %v", fields["status"])
	}
	if logs.FilterMessage("Route not found").Len() != 1 {
		t.Error("Expected route miss to be logged")
	}
}

// TestConcurrentDispatch tests that the sealed table serves parallel requests
func TestConcurrentDispatch(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	_ = r.RegisterRoute(RouteConfigBase{
		Path:    "/echo/{v}",
		Methods: []string{"GET"},
		Handler: func(req *message.ServerRequest, resp *message.Response, params Params) (*message.Response, error) {
			return resp.Text(200, "text/plain", params.ByName("v"))
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := message.NewServerRequest("GET", "http://example.com/echo/x", nil, nil)
			resp, found, err := r.Dispatch(req)
			if err != nil || !found || resp.StatusCode() != 200 {
				t.Errorf("Unexpected result found=%v err=%v", found, err)
			}
		}()
	}
	wg.Wait()
}
