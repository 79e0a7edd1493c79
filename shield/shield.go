// Package shield provides the HTTP middleware stack of the domresume API:
// security headers, body limits on writes, HEAD handling and access logs.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

// DefaultMaxBody caps PUT, POST and PATCH bodies.
const DefaultMaxBody = 4 << 20

// APIStack returns the standard middleware stack for the state API.
// Middleware is ordered: AccessLog → HeadToGet → SecurityHeaders → MaxBody.
func APIStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		AccessLog(logger),
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultMaxBody),
	}
}
