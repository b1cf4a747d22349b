// Package tokenhttp exposes the token service over HTTP so the host CMS can
// mint a token before triggering an export and delegate the check when the
// loopback request arrives.
package tokenhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-seed/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/token"
)

// OutcomeHeader carries the redemption outcome on validate responses.
const OutcomeHeader = "X-Token-Outcome"

// Service is implemented by *token.Service.
type Service interface {
	Create(ctx context.Context, ownerID int64) (string, error)
	Redeem(ctx context.Context, value string, expectedOwner int64, strict bool) token.Outcome
}

type API struct {
	tokens Service
	logger log.Logger
}

func NewAPI(tokens Service, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{tokens: tokens, logger: logger}
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.With(httpmw.Scope("tokens.create")).Post("/api/tokens", api.HandleCreate)
	r.With(httpmw.Scope("tokens.validate")).Get("/api/tokens/validate", api.HandleValidate)
	r.With(httpmw.Scope("tokens.validate")).Post("/api/tokens/validate", api.HandleValidate)
}

type CreateRequest struct {
	NID int64 `json:"nid"`
}

type CreateResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleCreate answers 201 with a fresh token for the item in the body.
func (api *API) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContext(ctx)

	var req CreateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			api.writeJSON(ctx, w, http.StatusRequestEntityTooLarge, errorResponse{"request body too large"})
			return
		}
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{"invalid JSON body"})
		return
	}
	if req.NID <= 0 {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{"nid must be a positive integer"})
		return
	}

	v, err := api.tokens.Create(ctx, req.NID)
	if err != nil {
		L.Error(ctx, err, "token create failed", "nid", req.NID)
		api.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{"token create failed"})
		return
	}
	L.Debug(ctx, "token issued", "nid", req.NID)
	api.writeJSON(ctx, w, http.StatusCreated, CreateResponse{Token: v})
}

// HandleValidate redeems the token in the request for ?nid=. strict defaults
// to true. 204 accepted, 403 refused, 400 bad parameters.
func (api *API) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nid, err := NIDFromRequest(r)
	if err != nil {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	strict, err := strictFromRequest(r)
	if err != nil {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}

	out := api.tokens.Redeem(ctx, token.FromRequest(r), nid, strict)
	w.Header().Set(OutcomeHeader, string(out))
	if out != token.OutcomeAccepted {
		log.FromContext(ctx).Info(ctx, "token refused", "nid", nid, "strict", strict, "outcome", string(out))
		api.writeJSON(ctx, w, http.StatusForbidden, errorResponse{"token rejected"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var (
	errBadNID    = errors.New("nid must be a positive integer")
	errBadStrict = errors.New("strict must be a boolean")
)

// NIDFromRequest reads the item id from the query string or form body.
func NIDFromRequest(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("nid")
	if raw == "" && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		raw = r.PostFormValue("nid")
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, errBadNID
	}
	return n, nil
}

func strictFromRequest(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("strict")
	if raw == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errBadStrict
	}
	return b, nil
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	writeJSON(ctx, api.logger, w, status, v)
}

func writeJSON(ctx context.Context, L log.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
