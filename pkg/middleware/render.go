package middleware

import (
	"bytes"
	"html/template"

	"github.com/scaly/core/pkg/common"
	"github.com/scaly/core/pkg/message"
	"github.com/scaly/core/pkg/stream"
)

// Renderer produces a response body from a named template.
type Renderer interface {
	Render(name string, req *message.ServerRequest, resp *message.Response) (string, error)
}

// RendererFunc adapts an ordinary function to Renderer.
type RendererFunc func(name string, req *message.ServerRequest, resp *message.Response) (string, error)

// Render calls f(name, req, resp).
func (f RendererFunc) Render(name string, req *message.ServerRequest, resp *message.Response) (string, error) {
	return f(name, req, resp)
}

// Render is a stage that, after the rest of the chain returns, renders the
// template named by common.TemplateAttribute into the response body. The
// response attribute wins over the request attribute. Responses without a
// template name pass through untouched.
func Render(renderer Renderer, contentType string) common.Stage {
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}

	return common.StageFunc(func(req *message.ServerRequest, resp *message.Response, next common.Handler) (*message.Response, error) {
		out, err := next.Handle(req, resp)
		if err != nil {
			return nil, err
		}

		name, ok := out.Attribute(common.TemplateAttribute)
		if !ok {
			name, ok = req.Attribute(common.TemplateAttribute)
		}
		if !ok || name.Str() == "" {
			return out, nil
		}

		rendered, err := renderer.Render(name.Str(), req, out)
		if err != nil {
			return nil, err
		}
		body, err := stream.Memory("w+")
		if err != nil {
			return nil, err
		}
		if _, err := body.WriteString(rendered); err != nil {
			return nil, err
		}

		out, err = out.WithBody(body).WithHeader("Content-Type", contentType)
		if err != nil {
			return nil, err
		}
		return out.WithoutAttribute(common.TemplateAttribute), nil
	})
}

// TemplateRenderer renders html/template templates. Templates receive a
// map of the request attributes overlaid with the response attributes,
// each formatted as a string.
type TemplateRenderer struct {
	templates *template.Template
}

// NewTemplateRenderer creates a TemplateRenderer over a parsed template set.
func NewTemplateRenderer(templates *template.Template) *TemplateRenderer {
	return &TemplateRenderer{templates: templates}
}

// Render executes the template called name.
func (r *TemplateRenderer) Render(name string, req *message.ServerRequest, resp *message.Response) (string, error) {
	data := make(map[string]string)
	for _, attrs := range []message.Attributes{req.Attributes(), resp.Attributes()} {
		for _, key := range attrs.Keys() {
			v, _ := attrs.Get(key)
			data[key] = v.String()
		}
	}

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
