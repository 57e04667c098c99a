package middleware

import "net/http"

// Stack composes middlewares into a single wrapper, applied left to right:
//
//	stack := Stack(securityMw.Handler, loggingMw.Handler)
//	server.Handler = stack(mux)
//
// This is equivalent to:
//
//	server.Handler = securityMw.Handler(loggingMw.Handler(mux))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
