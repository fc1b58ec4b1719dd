package common

// Well-known attribute keys shared by the stock stages, the router and the
// transport adapter.
const (
	// TraceIDAttribute holds the request's trace id (string).
	TraceIDAttribute = "trace_id"

	// ClientIPAttribute holds the resolved client IP (string).
	ClientIPAttribute = "client_ip"

	// UserIDAttribute holds the authenticated user id (string).
	UserIDAttribute = "user_id"

	// TemplateAttribute names the template a rendering stage should apply.
	// Handlers set it on the response; stages earlier in the chain may set
	// it on the request as a default.
	TemplateAttribute = "template"
)
