package middleware

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
	"github.com/scaly/core/pkg/stream"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newRequest(t *testing.T, method, target string, headers map[string][]string, params map[string]string) *message.ServerRequest {
	t.Helper()
	req, err := message.NewServerRequest(method, "http://example.com"+target, headers, params)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	return req
}

func okHandler(body string) common.Handler {
	return common.HandlerFunc(func(req *message.ServerRequest, resp *message.Response) (*message.Response, error) {
		return resp.Text(200, "text/plain", body)
	})
}

func run(t *testing.T, stage common.Stage, h common.Handler, req *message.ServerRequest) *message.Response {
	t.Helper()
	resp, err := common.NewMiddlewareChain(stage).Then(h).Handle(req, message.NewResponse())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return resp
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

// TestRecovery tests that panics become 500 responses and are logged
func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	panicking := common.HandlerFunc(func(req *message.ServerRequest, resp *message.Response) (*message.Response, error) {
		panic("test panic")
	})

	resp := run(t, Recovery(zap.New(core)), panicking, newRequest(t, "GET", "/panic", nil, nil))

	if resp.StatusCode() != 500 {
		t.Errorf("Expected status code %d, got %d", 500, resp.StatusCode())
	}
	if got := bodyOf(t, resp); got != "Internal Server Error" {
		t.Errorf("Expected body %q, got %q", "Internal Server Error", got)
	}
	entries := logs.FilterMessage("Panic recovered").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one panic log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["path"] != "/panic" {
		t.Errorf("Expected path field, got %v", entries[0].ContextMap()["path"])
	}

	// No panic passes the response through
	resp = run(t, Recovery(zap.NewNop()), okHandler("fine"), newRequest(t, "GET", "/", nil, nil))
	if resp.StatusCode() != 200 {
		t.Errorf("Expected status code %d, got %d", 200, resp.StatusCode())
	}
}

// TestLogging tests the log level chosen for each status class
func TestLogging(t *testing.T) {
	tests := []struct {
		status  int
		message string
		level   zapcore.Level
	}{
		{200, "Request", zapcore.DebugLevel},
		{404, "Client error", zapcore.WarnLevel},
		{503, "Server error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		core, logs := observer.New(zapcore.DebugLevel)
		status := tt.status
		h := common.HandlerFunc(func(req *message.ServerRequest, resp *message.Response) (*message.Response, error) {
			return resp.WithStatus(status, "")
		})
		run(t, Logging(zap.New(core)), h, newRequest(t, "GET", "/log", nil, nil))

		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("Expected one log entry for %d, got %d", tt.status, len(entries))
		}
		if entries[0].Message != tt.message || entries[0].Level != tt.level {
			t.Errorf("Expected %q at %s for %d, got %q at %s", tt.message, tt.level, tt.status, entries[0].Message, entries[0].Level)
		}
		if entries[0].ContextMap()["status"] != int64(tt.status) {
			t.Errorf("Expected status field %d, got %v", tt.status, entries[0].ContextMap()["status"])
		}
	}
}

// TestLoggingError tests that chain errors are logged and returned
func TestLoggingError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	boom := errors.New("boom")
	failing := common.HandlerFunc(func(req *message.ServerRequest, resp *message.Response) (*message.Response, error) {
		return nil, boom
	})

	_, err := common.NewMiddlewareChain(Logging(zap.New(core))).Then(failing).
		Handle(newRequest(t, "GET", "/", nil, nil), message.NewResponse())
	if !errors.Is(err, boom) {
		t.Errorf("Expected error to propagate, got %v", err)
	}
	if logs.FilterMessage("Request failed").Len() != 1 {
		t.Error("Expected failure to be logged")
	}
}

// TestMaxBodySize tests rejection by declared length and by buffered size
func TestMaxBodySize(t *testing.T) {
	stage := MaxBodySize(4)

	resp := run(t, stage, okHandler("ok"), newRequest(t, "POST", "/", map[string][]string{"Content-Length": {"10"}}, nil))
	if resp.StatusCode() != 413 {
		t.Errorf("Expected status code %d for declared length, got %d", 413, resp.StatusCode())
	}

	body, err := stream.FromString("too long", "r")
	if err != nil {
		t.Fatalf("Failed to create body: %v", err)
	}
	resp = run(t, stage, okHandler("ok"), newRequest(t, "POST", "/", nil, nil).WithBody(body))
	if resp.StatusCode() != 413 {
		t.Errorf("Expected status code %d for buffered body, got %d", 413, resp.StatusCode())
	}

	small, _ := stream.FromString("abcd", "r")
	resp = run(t, stage, okHandler("ok"), newRequest(t, "POST", "/", nil, nil).WithBody(small))
	if resp.StatusCode() != 200 {
		t.Errorf("Expected status code %d at the limit, got %d", 200, resp.StatusCode())
	}
}

// TestCORS tests simple and preflight cross-origin requests
func TestCORS(t *testing.T) {
	called := false
	h := common.HandlerFunc(func(req *message.ServerRequest, resp *message.Response) (*message.Response, error) {
		called = true
		return resp, nil
	})
	stage := CORS(CORSConfig{
		AllowOrigins:  []string{"https://app.example.com"},
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{"X-Trace-ID"},
		MaxAge:        10 * time.Minute,
	})

	resp := run(t, stage, h, newRequest(t, "GET", "/", map[string][]string{"Origin": {"https://app.example.com"}}, nil))
	if !called {
		t.Error("Expected handler to run for a simple request")
	}
	if resp.HeaderLine("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Errorf("Unexpected Allow-Origin %q", resp.HeaderLine("Access-Control-Allow-Origin"))
	}
	if resp.HeaderLine("Access-Control-Expose-Headers") != "X-Trace-ID" {
		t.Errorf("Unexpected Expose-Headers %q", resp.HeaderLine("Access-Control-Expose-Headers"))
	}

	called = false
	preflight := newRequest(t, "OPTIONS", "/", map[string][]string{
		"Origin":                        {"https://app.example.com"},
		"Access-Control-Request-Method": {"POST"},
	}, nil)
	resp = run(t, stage, h, preflight)
	if called {
		t.Error("Expected preflight to short-circuit")
	}
	if resp.StatusCode() != 204 {
		t.Errorf("Expected status code %d, got %d", 204, resp.StatusCode())
	}
	if resp.HeaderLine("Access-Control-Allow-Methods") != "GET, POST" {
		t.Errorf("Unexpected Allow-Methods %q", resp.HeaderLine("Access-Control-Allow-Methods"))
	}
	if resp.HeaderLine("Access-Control-Max-Age") != "600" {
		t.Errorf("Unexpected Max-Age %q", resp.HeaderLine("Access-Control-Max-Age"))
	}

	resp = run(t, stage, h, newRequest(t, "GET", "/", map[string][]string{"Origin": {"https://evil.example.com"}}, nil))
	if resp.HasHeader("Access-Control-Allow-Origin") {
		t.Error("Expected no CORS headers for a disallowed origin")
	}
}

// TestCORSWildcard tests wildcard origins with and without credentials
func TestCORSWildcard(t *testing.T) {
	req := newRequest(t, "GET", "/", map[string][]string{"Origin": {"https://any.example.com"}}, nil)

	resp := run(t, CORS(CORSConfig{AllowOrigins: []string{"*"}}), okHandler("ok"), req)
	if resp.HeaderLine("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected wildcard origin, got %q", resp.HeaderLine("Access-Control-Allow-Origin"))
	}

	resp = run(t, CORS(CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true}), okHandler("ok"), req)
	if resp.HeaderLine("Access-Control-Allow-Origin") != "https://any.example.com" {
		t.Errorf("Expected echoed origin with credentials, got %q", resp.HeaderLine("Access-Control-Allow-Origin"))
	}
	if !strings.EqualFold(resp.HeaderLine("Access-Control-Allow-Credentials"), "true") {
		t.Error("Expected Allow-Credentials header")
	}
}
