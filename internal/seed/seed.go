// Package seed exports CMS content to static-hosting sinks.
//
// An Orchestrator turns one content item into output events: it renders the
// item through the site's own HTTP stack, merges metadata from the registered
// providers and emits the markup at the item's alias and at every reserved
// path (front page, 404, 403) the site points at the item. A Batch drives an
// Orchestrator over a whole manifest.
package seed

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/keithlinneman/linnemanlabs-seed/internal/content"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/metadata"
	"github.com/keithlinneman/linnemanlabs-seed/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-seed/internal/render"
	"github.com/keithlinneman/linnemanlabs-seed/internal/token"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

// ErrSetup marks configuration problems that stop a run before any export.
var ErrSetup = errors.New("seed: setup")

// Renderer fetches markup for a route; render.Renderer implements it.
type Renderer interface {
	Render(ctx context.Context, route string, query url.Values) (string, error)
}

// TokenIssuer mints preview tokens; token.Service implements it.
type TokenIssuer interface {
	Create(ctx context.Context, ownerID int64) (string, error)
}

// Metrics is implemented by the metrics package.
type Metrics interface {
	IncExport(kind, result string)
	IncEmitted(kind string)
}

type Options struct {
	Renderer Renderer
	Sink     Sink

	// Providers defaults to metadata.Defaults().
	Providers []metadata.Provider

	Site content.Site

	// Tokens, when set, mints a token for every unpublished item so the
	// site serves its latest revision to the loopback request.
	Tokens TokenIssuer

	// AssetRoot is the directory static files are read from.
	AssetRoot string

	Logger  log.Logger
	Metrics Metrics
	Now     func() time.Time
}

type Orchestrator struct {
	renderer  Renderer
	sink      Sink
	providers []metadata.Provider
	special   []SpecialPage
	tokens    TokenIssuer
	assetRoot string
	logger    log.Logger
	metrics   Metrics
	now       func() time.Time
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Renderer == nil {
		return nil, xerrors.Wrap(ErrSetup, "renderer is required")
	}
	if opts.Sink == nil {
		return nil, xerrors.Wrap(ErrSetup, "sink is required")
	}
	if opts.AssetRoot != "" {
		// file events carry absolute source paths
		abs, err := filepath.Abs(opts.AssetRoot)
		if err != nil {
			return nil, xerrors.Wrapf(ErrSetup, "asset root %s: %v", opts.AssetRoot, err)
		}
		opts.AssetRoot = abs
	}
	if opts.Providers == nil {
		opts.Providers = metadata.Defaults()
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		renderer:  opts.Renderer,
		sink:      opts.Sink,
		providers: opts.Providers,
		special:   SpecialPages(opts.Site),
		tokens:    opts.Tokens,
		assetRoot: opts.AssetRoot,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}, nil
}

// ExportItem renders it and emits one event per resolved path: first each
// reserved path that targets the item, in fixed order, then the item's alias.
// The front page is therefore emitted twice, at "/" and at its alias.
// Nothing is emitted when rendering fails.
func (o *Orchestrator) ExportItem(ctx context.Context, it content.Item) error {
	err := o.exportItem(ctx, it)
	o.count("node", err)
	return err
}

func (o *Orchestrator) exportItem(ctx context.Context, it content.Item) error {
	route := it.URL()
	for _, sp := range o.special {
		if sp.Path == FrontPath && targets(sp.Target, it.ID) {
			route = FrontPath
		}
	}

	q := url.Values{render.RevisionParam: {strconv.FormatInt(it.RevisionID, 10)}}
	if o.tokens != nil && !it.Published {
		tok, err := o.tokens.Create(ctx, it.ID)
		if err != nil {
			return xerrors.Wrapf(err, "mint preview token for nid %d", it.ID)
		}
		q.Set(token.Param, tok)
	}

	markup, err := o.renderer.Render(ctx, route, q)
	if err != nil {
		return xerrors.Wrapf(err, "render nid %d", it.ID)
	}

	meta := metadata.Merge(o.providers, it)
	rev := it.RevisionID

	var events []Event
	for _, sp := range o.special {
		if targets(sp.Target, it.ID) {
			events = append(events, Event{Markup: markup, Path: sp.Path, Metadata: meta, Revision: &rev})
		}
	}
	events = append(events, Event{Markup: markup, Path: it.URL(), Metadata: meta, Revision: &rev})

	for _, ev := range events {
		if err := o.sink.Output(ctx, ev); err != nil {
			return xerrors.Wrapf(err, "emit nid %d at %s", it.ID, ev.Path)
		}
		if o.metrics != nil {
			o.metrics.IncEmitted("page")
		}
	}
	o.logger.Debug(ctx, "item exported", "nid", it.ID, "vid", it.RevisionID, "paths", len(events))
	return nil
}

// ExportRoute renders an arbitrary route, such as a search page, and emits
// it with default metadata and no revision.
func (o *Orchestrator) ExportRoute(ctx context.Context, route string) error {
	err := o.exportRoute(ctx, route)
	o.count("route", err)
	return err
}

func (o *Orchestrator) exportRoute(ctx context.Context, route string) error {
	markup, err := o.renderer.Render(ctx, route, nil)
	if err != nil {
		return xerrors.Wrapf(err, "render route %s", route)
	}
	ev := Event{Markup: markup, Path: route, Metadata: metadata.Route(o.now())}
	if err := o.sink.Output(ctx, ev); err != nil {
		return xerrors.Wrapf(err, "emit route %s", route)
	}
	if o.metrics != nil {
		o.metrics.IncEmitted("page")
	}
	return nil
}

// ExportFile emits a file event for publicPath when the file exists under
// the asset root. A missing file is skipped and reported as not emitted.
func (o *Orchestrator) ExportFile(ctx context.Context, publicPath string) (bool, error) {
	ok, err := o.exportFile(ctx, publicPath)
	switch {
	case err != nil:
		o.count("file", err)
	case !ok:
		if o.metrics != nil {
			o.metrics.IncExport("file", "skipped")
		}
	default:
		o.count("file", nil)
	}
	return ok, err
}

func (o *Orchestrator) exportFile(ctx context.Context, publicPath string) (bool, error) {
	if o.assetRoot == "" {
		return false, xerrors.Wrap(ErrSetup, "asset root is not configured")
	}
	src, err := pathutil.Join(o.assetRoot, publicPath)
	if err != nil {
		return false, xerrors.Wrapf(err, "file %s", publicPath)
	}
	fi, err := os.Stat(src)
	if err != nil || fi.IsDir() {
		o.logger.Debug(ctx, "asset not found, skipping", "path", publicPath)
		return false, nil
	}
	if err := o.sink.File(ctx, FileEvent{SourcePath: src, PublicPath: publicPath}); err != nil {
		return false, xerrors.Wrapf(err, "emit file %s", publicPath)
	}
	if o.metrics != nil {
		o.metrics.IncEmitted("file")
	}
	return true, nil
}

func (o *Orchestrator) count(kind string, err error) {
	if o.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.metrics.IncExport(kind, result)
}
