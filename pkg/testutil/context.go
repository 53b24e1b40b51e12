package testutil

import (
	"net/http"

	"audittrail/pkg/requestcontext"
)

// WithPrincipal adds an authenticated principal to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithPrincipal(req *http.Request, userID, userName, role string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), requestcontext.Principal{
		UserID:   userID,
		UserName: userName,
		Role:     role,
	})
	return req.WithContext(ctx)
}

// WithAuditor is WithPrincipal for a privileged reader.
func WithAuditor(req *http.Request) *http.Request {
	return WithPrincipal(req, "auditor-1", "audit.anna", "AUDITOR")
}
