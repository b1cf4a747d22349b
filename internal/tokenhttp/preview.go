package tokenhttp

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-seed/internal/content"
	"github.com/keithlinneman/linnemanlabs-seed/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/render"
	"github.com/keithlinneman/linnemanlabs-seed/internal/token"
)

// Renderer fetches markup for a route; *render.Renderer implements it.
type Renderer interface {
	Render(ctx context.Context, route string, query url.Values) (string, error)
}

// Preview serves an item's markup to callers holding a token for it. The
// caller's token is spent at the gate and a fresh one is minted for the
// loopback render, so the site serves unpublished revisions too. Basic auth
// and host from the caller are passed through to the render.
type Preview struct {
	tokens   Service
	renderer Renderer
	logger   log.Logger
}

func NewPreview(tokens Service, renderer Renderer, logger log.Logger) *Preview {
	if logger == nil {
		logger = log.Nop()
	}
	return &Preview{tokens: tokens, renderer: renderer, logger: logger}
}

func (p *Preview) RegisterRoutes(r chi.Router) {
	r.With(httpmw.Scope("preview"), RequireToken(p.tokens, PathNID, true)).
		Get("/api/preview/{nid}", p.HandlePreview)
}

// PathNID reads the item id from the {nid} route parameter.
func PathNID(r *http.Request) (int64, error) {
	n, err := strconv.ParseInt(chi.URLParam(r, "nid"), 10, 64)
	if err != nil || n <= 0 {
		return 0, errBadNID
	}
	return n, nil
}

// HandlePreview renders /node/{nid}, optionally at ?quant_revision=. 200 with
// the markup, 502 when the site answered without markup.
func (p *Preview) HandlePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContext(ctx)

	nid, err := PathNID(r)
	if err != nil {
		writeJSON(ctx, p.logger, w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	q := url.Values{}
	if rev := r.URL.Query().Get(render.RevisionParam); rev != "" {
		if n, err := strconv.ParseInt(rev, 10, 64); err != nil || n <= 0 {
			writeJSON(ctx, p.logger, w, http.StatusBadRequest, errorResponse{render.RevisionParam + " must be a positive integer"})
			return
		}
		q.Set(render.RevisionParam, rev)
	}

	loopback, err := p.tokens.Create(ctx, nid)
	if err != nil {
		L.Error(ctx, err, "preview token create failed", "nid", nid)
		writeJSON(ctx, p.logger, w, http.StatusInternalServerError, errorResponse{"token create failed"})
		return
	}
	q.Set(token.Param, loopback)

	route := content.Item{ID: nid}.SystemPath()
	markup, err := p.renderer.Render(render.WithInbound(ctx, r), route, q)
	if err != nil {
		L.Error(ctx, err, "preview render failed", "nid", nid)
		writeJSON(ctx, p.logger, w, http.StatusInternalServerError, errorResponse{"render failed"})
		return
	}
	if markup == "" {
		writeJSON(ctx, p.logger, w, http.StatusBadGateway, errorResponse{"site did not render " + route})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, markup); err != nil {
		L.Warn(ctx, "preview write failed", "nid", nid, "error", err)
	}
}
