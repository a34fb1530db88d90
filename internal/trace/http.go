package trace

import "net/http"

// Middleware continues the caller's trace (or starts one) and echoes the IDs back in response headers.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := continueFrom(r.Header.Get(TraceIDKey), r.Header.Get(SpanIDKey))
		w.Header().Set(TraceIDKey, tc.TraceID)
		w.Header().Set(SpanIDKey, tc.SpanID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}
