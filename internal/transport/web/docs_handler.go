package web

import (
	"crypto/rand"
	"encoding/base64"
	"html/template"
	"net/http"
)

var docsTemplate = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script nonce="{{.Nonce}}">
    window.ui = SwaggerUIBundle({ url: {{.SpecURL}}, dom_id: "#swagger-ui" });
  </script>
</body>
</html>
`))

// OpenAPIJSON serves the OpenAPI document / Sert le document OpenAPI
func (h *Handler) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	if h.deps.OpenAPI == nil {
		writeProblem(w, r, http.StatusNotFound, "no OpenAPI document loaded")
		return
	}
	jsonResponse(w, http.StatusOK, h.deps.OpenAPI)
}

// Docs renders a Swagger UI page pointing at /openapi.json.
func (h *Handler) Docs(w http.ResponseWriter, r *http.Request) {
	nonce, err := newNonce()
	if err != nil {
		writeProblem(w, r, http.StatusInternalServerError, "failed to render docs")
		return
	}

	title := "API documentation"
	if h.deps.Config != nil && h.deps.Config.Docs.Title != "" {
		title = h.deps.Config.Docs.Title
	}

	// Replaces the default policy: the page needs the CDN bundle and one inline script.
	w.Header().Set("Content-Security-Policy",
		"default-src 'self'; script-src 'nonce-"+nonce+"' cdn.jsdelivr.net; "+
			"style-src 'self' cdn.jsdelivr.net; img-src 'self' data:; frame-ancestors 'none'")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err = docsTemplate.Execute(w, map[string]string{
		"Title":   title,
		"Nonce":   nonce,
		"SpecURL": "/openapi.json",
	})
	if err != nil {
		LoggerFromContext(r.Context(), h.logger).Error("Failed to render docs page", "error", err)
	}
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
