package middleware

import (
	"net/http"

	"github.com/forcedotcom/sf-fx-bulk/pkg/requestid"
)

// RequestID reads the request id sent by the client, or generates one, and
// stores it in the request context. The id is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestid.Header)
		if requestID == "" {
			requestID = requestid.Generate()
		}

		w.Header().Set(requestid.Header, requestID)
		next.ServeHTTP(w, r.WithContext(requestid.ToContext(r.Context(), requestID)))
	})
}
