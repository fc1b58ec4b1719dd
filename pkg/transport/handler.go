// Package transport adapts net/http to the message model: it turns each
// *http.Request into a ServerRequest, dispatches it and writes the Response.
package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/scaly/core/pkg/config"
	"github.com/scaly/core/pkg/message"
	"github.com/scaly/core/pkg/router"
	"github.com/scaly/core/pkg/stream"
	"github.com/scaly/core/pkg/uri"
	"go.uber.org/zap"
)

// Dispatcher is implemented by *router.Router.
type Dispatcher interface {
	Dispatch(req *message.ServerRequest) (resp *message.Response, found bool, err error)
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Logger      *zap.Logger // Logger for transport errors
	MaxBodySize int64       // Request bodies larger than this are rejected with 413; 0 means no limit
}

// Handler serves HTTP requests through a Dispatcher.
type Handler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
	maxBody    int64

	wg         sync.WaitGroup
	shutdown   bool
	shutdownMu sync.RWMutex
}

// NewHandler creates a Handler dispatching to d.
func NewHandler(d Dispatcher, config HandlerConfig) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		dispatcher: d,
		logger:     logger,
		maxBody:    config.MaxBodySize,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// First add to the wait group before checking shutdown status
	h.wg.Add(1)
	h.shutdownMu.RLock()
	isShutdown := h.shutdown
	h.shutdownMu.RUnlock()
	if isShutdown {
		h.wg.Done()
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.wg.Done()

	req, err := h.newServerRequest(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.handleError(w, r, err, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
			return
		}
		h.handleError(w, r, err, http.StatusBadRequest, "Bad Request")
		return
	}

	resp, found, err := h.dispatcher.Dispatch(req)
	if err != nil {
		h.handleError(w, r, err, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}
	h.write(w, r, resp)
}

// newServerRequest buffers the body and collects the server parameters.
func (h *Handler) newServerRequest(w http.ResponseWriter, r *http.Request) (*message.ServerRequest, error) {
	body, err := stream.Memory("w+b")
	if err != nil {
		return nil, err
	}
	if r.Body != nil {
		src := io.Reader(r.Body)
		if h.maxBody > 0 {
			src = http.MaxBytesReader(w, r.Body, h.maxBody)
		}
		if _, err := io.Copy(body, src); err != nil {
			return nil, err
		}
		if err := body.Rewind(); err != nil {
			return nil, err
		}
	}

	headers := make(map[string][]string, len(r.Header)+1)
	for name, values := range r.Header {
		headers[name] = values
	}
	if r.Host != "" {
		headers["Host"] = []string{r.Host}
	}

	https := "off"
	scheme := "http"
	if r.TLS != nil {
		https, scheme = "on", "https"
	}
	params := map[string]string{
		"REMOTE_ADDR":     r.RemoteAddr,
		"SERVER_PROTOCOL": r.Proto,
		"REQUEST_METHOD":  r.Method,
		"REQUEST_URI":     r.RequestURI,
		"HTTPS":           https,
	}

	req, err := message.NewServerRequest(r.Method, absoluteURI(scheme, r), headers, params)
	if err != nil {
		return nil, err
	}
	return req.WithContext(r.Context()).WithBody(body), nil
}

// absoluteURI joins scheme, Host and the request target. net/http accepts
// bytes such as '[' or '|' unencoded in the target, so path and query are
// percent-encoded to the form uri.Parse accepts. Absolute-form targets keep
// their own scheme and host.
func absoluteURI(scheme string, r *http.Request) string {
	host := r.Host
	if r.URL.Scheme != "" && r.URL.Host != "" {
		scheme, host = r.URL.Scheme, r.URL.Host
	}
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	target := uri.EscapePath(path)
	if r.URL.RawQuery != "" || r.URL.ForceQuery {
		target += "?" + uri.EscapeQuery(r.URL.RawQuery)
	}
	return scheme + "://" + host + target
}

// write copies status, headers and body to w. The body is rewound first and
// closed once written.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, resp *message.Response) {
	for _, f := range resp.Header().Fields() {
		// Set-Cookie cannot be folded into one line.
		if strings.EqualFold(f.Name, "Set-Cookie") {
			for _, v := range f.Values {
				w.Header().Add(f.Name, v)
			}
			continue
		}
		w.Header().Set(f.Name, resp.HeaderLine(f.Name))
	}
	w.WriteHeader(resp.StatusCode())

	body := resp.Body()
	if body == nil || !body.IsReadable() {
		return
	}
	defer body.Close()
	if body.IsSeekable() {
		if err := body.Rewind(); err != nil {
			h.logger.Error("Failed to rewind response body", requestFields(r, zap.Error(err))...)
			return
		}
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error("Failed to write response body", requestFields(r, zap.Error(err))...)
	}
}

// handleError logs err and writes an error response. An *router.HTTPError
// picks its own status code and message.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int, msg string) {
	var httpErr *router.HTTPError
	if errors.As(err, &httpErr) {
		statusCode = httpErr.StatusCode
		msg = httpErr.Message
	}

	fields := requestFields(r, zap.Int("status", statusCode), zap.Error(err))
	if statusCode >= 500 {
		h.logger.Error(msg, fields...)
	} else {
		h.logger.Warn(msg, fields...)
	}
	http.Error(w, msg, statusCode)
}

func requestFields(r *http.Request, extra ...zap.Field) []zap.Field {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	}
	return append(fields, extra...)
}

// Shutdown stops accepting new requests and waits for in-flight ones.
// If the context is canceled first, it returns the context's error.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.shutdownMu.Lock()
	h.shutdown = true
	h.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewServer returns an *http.Server for h using the address and timeouts in cfg.
func NewServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
