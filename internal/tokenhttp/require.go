package tokenhttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/token"
)

// NIDFunc resolves the item a request is for.
type NIDFunc func(*http.Request) (int64, error)

// RequireToken lets a request through only when it carries a token that
// redeems for the item nid resolves. The token is consumed either way.
func RequireToken(tokens Service, nid NIDFunc, strict bool) func(http.Handler) http.Handler {
	if nid == nil {
		nid = NIDFromRequest
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, err := nid(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if out := tokens.Redeem(ctx, token.FromRequest(r), id, strict); out != token.OutcomeAccepted {
				log.FromContext(ctx).Info(ctx, "request refused by token gate", "nid", id, "outcome", string(out))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
