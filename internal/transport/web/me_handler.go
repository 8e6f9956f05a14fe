package web

import (
	"net/http"
	"time"
)

// IdentityResponse mirrors the verified token claims.
type IdentityResponse struct {
	Subject   string     `json:"subject"`
	Role      string     `json:"role,omitempty"`
	Issuer    string     `json:"issuer,omitempty"`
	Audience  []string   `json:"audience,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Me returns the identity of the authenticated caller / Retourne l'identité de l'appelant
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	resp := IdentityResponse{
		Subject:  claims.Subject,
		Role:     claims.Role,
		Issuer:   claims.Issuer,
		Audience: claims.Audience,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.UTC()
		resp.ExpiresAt = &exp
	}

	jsonResponse(w, http.StatusOK, resp)
}
