package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
	"go.uber.org/zap"
)

// AuthLevel defines how Authentication treats a request.
type AuthLevel int

const (
	// NoAuth skips authentication entirely.
	NoAuth AuthLevel = iota

	// AuthOptional stores the user id when credentials are valid and lets
	// the request proceed either way.
	AuthOptional

	// AuthRequired rejects requests without valid credentials with 401 Unauthorized.
	AuthRequired
)

// AuthProvider defines an interface for authentication providers.
// Authenticate examines the request for credentials and returns the
// authenticated user id.
type AuthProvider interface {
	Authenticate(req *message.ServerRequest) (userID string, ok bool)
}

// Challenger is implemented by providers that name their own
// WWW-Authenticate challenge. Providers without it are challenged with Bearer.
type Challenger interface {
	Challenge() string
}

// challenge returns the WWW-Authenticate value for provider.
func challenge(provider AuthProvider) string {
	if c, ok := provider.(Challenger); ok {
		return c.Challenge()
	}
	return "Bearer"
}

// BearerTokenProvider provides Bearer Token Authentication.
// It can validate tokens against a predefined map or using a custom validator function.
type BearerTokenProvider struct {
	// ValidTokens maps token to user id
	ValidTokens map[string]string

	// Validator, when set, replaces the ValidTokens lookup
	Validator func(req *message.ServerRequest, token string) (string, bool)
}

// Authenticate extracts the token from the Authorization header and validates it
// using either the validator function (if provided) or the ValidTokens map.
func (p *BearerTokenProvider) Authenticate(req *message.ServerRequest) (string, bool) {
	scheme, token, ok := strings.Cut(req.HeaderLine("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}

	if p.Validator != nil {
		return p.Validator(req, token)
	}
	id, ok := p.ValidTokens[token]
	return id, ok
}

// Challenge implements Challenger.
func (p *BearerTokenProvider) Challenge() string { return "Bearer" }

// BasicAuthProvider provides HTTP Basic Authentication.
// It validates username and password credentials against a predefined map.
// The user id is the username.
type BasicAuthProvider struct {
	Credentials map[string]string // username -> password
	Realm       string            // Realm sent in the challenge; "Restricted" when empty
}

// Challenge implements Challenger.
func (p *BasicAuthProvider) Challenge() string {
	realm := p.Realm
	if realm == "" {
		realm = "Restricted"
	}
	return `Basic realm="` + strings.ReplaceAll(realm, `"`, `\"`) + `", charset="UTF-8"`
}

// Authenticate decodes the Basic credentials from the Authorization header.
func (p *BasicAuthProvider) Authenticate(req *message.ServerRequest) (string, bool) {
	scheme, encoded, ok := strings.Cut(req.HeaderLine("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", false
	}

	expected, exists := p.Credentials[username]
	if !exists || subtle.ConstantTimeCompare([]byte(password), []byte(expected)) != 1 {
		return "", false
	}
	return username, true
}

// APIKeyProvider provides API Key Authentication.
// It checks the key in the given header first, then the query parameter.
type APIKeyProvider struct {
	ValidKeys map[string]string // key -> user id
	Header    string            // Header name, e.g. X-API-Key
	Query     string            // Query parameter name, e.g. api_key
}

// Challenge implements Challenger, naming where the key is expected.
func (p *APIKeyProvider) Challenge() string {
	if p.Header != "" {
		return `APIKey header="` + p.Header + `"`
	}
	return `APIKey query="` + p.Query + `"`
}

// Authenticate looks the key up in ValidKeys.
func (p *APIKeyProvider) Authenticate(req *message.ServerRequest) (string, bool) {
	var key string
	if p.Header != "" {
		key = req.HeaderLine(p.Header)
	}
	if key == "" && p.Query != "" {
		key = req.QueryParam(p.Query)
	}
	if key == "" {
		return "", false
	}
	id, ok := p.ValidKeys[key]
	return id, ok
}

// Authentication is a stage that authenticates requests with provider and
// stores the user id under common.UserIDAttribute.
func Authentication(provider AuthProvider, level AuthLevel, logger *zap.Logger) common.Stage {
	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		if level == NoAuth {
			return next.Handle(req, resp)
		}

		if id, ok := provider.Authenticate(req); ok {
			logger.Debug("Authentication successful", requestFields(req)...)
			return next.Handle(req.WithAttribute(common.UserIDAttribute, message.StringValue(id)), resp)
		}

		if level == AuthRequired {
			remote, _ := req.ServerParam("REMOTE_ADDR")
			logger.Warn("Authentication failed", requestFields(req, zap.String("remote_addr", remote))...)
			out, err := statusResponse(resp, http.StatusUnauthorized)
			if err != nil {
				return nil, err
			}
			if c := challenge(provider); c != "" {
				return out.WithHeader("WWW-Authenticate", c)
			}
			return out, nil
		}
		return next.Handle(req, resp)
	})
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(req *message.ServerRequest) string {
	v, _ := req.Attribute(common.UserIDAttribute)
	return v.Str()
}
