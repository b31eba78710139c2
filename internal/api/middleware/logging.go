package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// requestUser is a mutable slot the auth middleware fills in once the
// bearer token has been resolved, so the access log can attribute the
// request even though logging wraps authentication.
type requestUser struct {
	uid string
}

type requestUserKey struct{}

func setRequestUser(ctx context.Context, uid string) {
	if ru, ok := ctx.Value(requestUserKey{}).(*requestUser); ok {
		ru.uid = uid
	}
}

// Logger returns a request logging middleware using zerolog. Client and
// server errors log at warn and error so they stand out in the stream.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ru := &requestUser{}
			r = r.WithContext(context.WithValue(r.Context(), requestUserKey{}, ru))

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				evt := logger.Info()
				switch {
				case ww.Status() >= 500:
					evt = logger.Error()
				case ww.Status() >= 400:
					evt = logger.Warn()
				}
				if ru.uid != "" {
					evt = evt.Str("uid", ru.uid)
				}
				evt.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
