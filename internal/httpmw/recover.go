package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

// Recover turns a handler panic into a logged 500. onPanic, when set, runs
// after logging (metrics hook). http.ErrAbortHandler is re-raised so the
// server can drop the connection as it expects.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.Wrap(e, "panic")
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}
				logger.Error(r.Context(), err, "httpserver panic recovered",
					"request_id", RequestIDFromContext(r.Context()),
					"url.path", r.URL.Path,
					"panic_stack", string(debug.Stack()),
				)
				if onPanic != nil {
					onPanic()
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
