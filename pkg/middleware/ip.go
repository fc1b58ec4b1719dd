package middleware

import (
	"net"
	"strings"

	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
)

// IPSourceType defines the source for client IP addresses
type IPSourceType string

const (
	// IPSourceRemoteAddr uses the REMOTE_ADDR server parameter
	IPSourceRemoteAddr IPSourceType = "remote_addr"

	// IPSourceXForwardedFor uses the X-Forwarded-For header
	IPSourceXForwardedFor IPSourceType = "x_forwarded_for"

	// IPSourceXRealIP uses the X-Real-IP header
	IPSourceXRealIP IPSourceType = "x_real_ip"

	// IPSourceCustomHeader uses a custom header specified in the configuration
	IPSourceCustomHeader IPSourceType = "custom_header"
)

// IPConfig defines configuration for IP extraction
type IPConfig struct {
	// Source specifies where to extract the client IP from
	Source IPSourceType

	// CustomHeader is the name of the custom header to use when Source is IPSourceCustomHeader
	CustomHeader string

	// TrustProxy determines whether to trust proxy headers like X-Forwarded-For.
	// If false, REMOTE_ADDR is used regardless of Source.
	TrustProxy bool
}

// DefaultIPConfig returns the default IP configuration
func DefaultIPConfig() *IPConfig {
	return &IPConfig{
		Source:     IPSourceXForwardedFor,
		TrustProxy: true,
	}
}

// ClientIP returns the client IP stored by ClientIPMiddleware, or "".
func ClientIP(req *message.ServerRequest) string {
	v, _ := req.Attribute(common.ClientIPAttribute)
	return v.Str()
}

// ClientIPMiddleware creates a stage that resolves the client IP and stores
// it under common.ClientIPAttribute.
func ClientIPMiddleware(config *IPConfig) common.Stage {
	if config == nil {
		config = DefaultIPConfig()
	}

	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		ip := extractClientIP(req, config)
		return next.Handle(req.WithAttribute(common.ClientIPAttribute, message.StringValue(ip)), resp)
	})
}

func extractClientIP(req *message.ServerRequest, config *IPConfig) string {
	remote, _ := req.ServerParam("REMOTE_ADDR")

	var ip string
	if config.TrustProxy {
		switch config.Source {
		case IPSourceXRealIP:
			ip = req.HeaderLine("X-Real-IP")
		case IPSourceCustomHeader:
			ip = req.HeaderLine(config.CustomHeader)
		case IPSourceRemoteAddr:
			ip = remote
		default:
			ip = firstForwarded(req)
		}
	}

	if strings.TrimSpace(ip) == "" {
		ip = remote
	}
	return cleanIP(strings.TrimSpace(ip))
}

// firstForwarded returns the leftmost X-Forwarded-For entry, which is the
// original client. Repeated headers are treated as one list.
func firstForwarded(req *message.ServerRequest) string {
	xff := req.HeaderLine("X-Forwarded-For")
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// cleanIP removes the port and IPv6 brackets from an address.
func cleanIP(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(ip, "["), "]")
}
