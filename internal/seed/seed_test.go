package seed

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/keithlinneman/linnemanlabs-seed/internal/content"
	"github.com/keithlinneman/linnemanlabs-seed/internal/metadata"
	"github.com/keithlinneman/linnemanlabs-seed/internal/render"
	"github.com/keithlinneman/linnemanlabs-seed/internal/token"
)

type renderCall struct {
	route string
	query url.Values
}

type fakeRenderer struct {
	markup string
	err    error
	calls  []renderCall
}

func (f *fakeRenderer) Render(_ context.Context, route string, q url.Values) (string, error) {
	f.calls = append(f.calls, renderCall{route: route, query: q})
	return f.markup, f.err
}

type fakeSink struct {
	events []Event
	files  []FileEvent
	err    error
}

func (f *fakeSink) Output(_ context.Context, ev Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) File(_ context.Context, ev FileEvent) error {
	if f.err != nil {
		return f.err
	}
	f.files = append(f.files, ev)
	return nil
}

func (f *fakeSink) paths() []string {
	var out []string
	for _, ev := range f.events {
		out = append(out, ev.Path)
	}
	return out
}

type fakeIssuer struct {
	owners []int64
	err    error
}

func (f *fakeIssuer) Create(_ context.Context, owner int64) (string, error) {
	f.owners = append(f.owners, owner)
	if f.err != nil {
		return "", f.err
	}
	return "tok+/=", nil
}

type staticProvider map[string]any

func (staticProvider) Name() string                        { return "static" }
func (staticProvider) Applies(content.Item) bool           { return true }
func (p staticProvider) Build(content.Item) map[string]any { return p }

func newTestOrchestrator(t *testing.T, opts Options) (*Orchestrator, *fakeRenderer, *fakeSink) {
	t.Helper()
	r := &fakeRenderer{markup: "<html>HELLO</html>"}
	s := &fakeSink{}
	if opts.Renderer == nil {
		opts.Renderer = r
	}
	if opts.Sink == nil {
		opts.Sink = s
	}
	o, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, r, s
}

var about = content.Item{ID: 12, RevisionID: 34, Title: "About", Path: "/about", Published: true}

func TestExportItem_PlainItem(t *testing.T) {
	o, r, s := newTestOrchestrator(t, Options{})

	if err := o.ExportItem(context.Background(), about); err != nil {
		t.Fatalf("ExportItem: %v", err)
	}

	if len(r.calls) != 1 || r.calls[0].route != "/about" {
		t.Fatalf("render calls = %+v", r.calls)
	}
	if got := r.calls[0].query.Get(render.RevisionParam); got != "34" {
		t.Fatalf("quant_revision = %q, want 34", got)
	}
	if r.calls[0].query.Has(token.Param) {
		t.Fatal("published items need no token")
	}
	if got := s.paths(); !reflect.DeepEqual(got, []string{"/about"}) {
		t.Fatalf("paths = %v", got)
	}
	ev := s.events[0]
	if ev.Markup != "<html>HELLO</html>" || ev.Revision == nil || *ev.Revision != 34 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestExportItem_FrontPageFanOut(t *testing.T) {
	o, r, s := newTestOrchestrator(t, Options{Site: content.Site{Front: "/node/12"}})

	if err := o.ExportItem(context.Background(), about); err != nil {
		t.Fatalf("ExportItem: %v", err)
	}
	if r.calls[0].route != "/" {
		t.Fatalf("front page should render at /, got %q", r.calls[0].route)
	}
	if got := s.paths(); !reflect.DeepEqual(got, []string{"/", "/about"}) {
		t.Fatalf("paths = %v, want [/ /about]", got)
	}
	if s.events[0].Markup != s.events[1].Markup {
		t.Fatal("both events carry the same markup")
	}
}

func TestExportItem_SpecialOrder(t *testing.T) {
	site := content.Site{Front: "/node/12", NotFound: "/node/12", Forbidden: "/node/12"}
	o, _, s := newTestOrchestrator(t, Options{Site: site})

	if err := o.ExportItem(context.Background(), about); err != nil {
		t.Fatalf("ExportItem: %v", err)
	}
	want := []string{"/", "/_quant404", "/_quant403", "/about"}
	if got := s.paths(); !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
}

func TestExportItem_ErrorPagesOnly(t *testing.T) {
	site := content.Site{Front: "/node/1", NotFound: "/node/12", Forbidden: "/about"}
	o, r, s := newTestOrchestrator(t, Options{Site: site})

	if err := o.ExportItem(context.Background(), about); err != nil {
		t.Fatalf("ExportItem: %v", err)
	}
	if r.calls[0].route != "/about" {
		t.Fatalf("route = %q", r.calls[0].route)
	}
	// aliased targets never match
	if got := s.paths(); !reflect.DeepEqual(got, []string{"/_quant404", "/about"}) {
		t.Fatalf("paths = %v", got)
	}
}

func TestExportItem_NoAliasUsesSystemPath(t *testing.T) {
	o, _, s := newTestOrchestrator(t, Options{})

	if err := o.ExportItem(context.Background(), content.Item{ID: 5, RevisionID: 6, Published: true}); err != nil {
		t.Fatalf("ExportItem: %v", err)
	}
	if got := s.paths(); !reflect.DeepEqual(got, []string{"/node/5"}) {
		t.Fatalf("paths = %v", got)
	}
}

func TestExportItem_MetadataMerge(t *testing.T) {
	o, _, s := newTestOrchestrator(t, Options{
		Providers: []metadata.Provider{
			staticProvider{"a": 1},
			staticProvider{"a": 2, "b": 3},
		},
	})

	if err := o.ExportItem(context.Background(), about); err != nil {
		t.Fatalf("ExportItem: %v", err)
	}
	if want := map[string]any{"a": 2, "b": 3}; !reflect.DeepEqual(s.events[0].Metadata, want) {
		t.Fatalf("metadata = %v, want %v", s.events[0].Metadata, want)
	}
}

func TestExportItem_RenderErrorEmitsNothing(t *testing.T) {
	r := &fakeRenderer{err: errors.New("bad route")}
	o, _, s := newTestOrchestrator(t, Options{Renderer: r, Site: content.Site{Front: "/node/12"}})

	if err := o.ExportItem(context.Background(), about); err == nil {
		t.Fatal("expected error")
	}
	if len(s.events) != 0 {
		t.Fatalf("emitted %v on failure", s.paths())
	}
}

func TestExportItem_EmptyMarkupStillEmits(t *testing.T) {
	r := &fakeRenderer{markup: ""}
	o, _, s := newTestOrchestrator(t, Options{Renderer: r})

	if err := o.ExportItem(context.Background(), about); err != nil {
		t.Fatalf("ExportItem: %v", err)
	}
	if len(s.events) != 1 || s.events[0].Markup != "" {
		t.Fatalf("events = %+v", s.events)
	}
}

func TestExportItem_UnpublishedGetsToken(t *testing.T) {
	iss := &fakeIssuer{}
	o, r, _ := newTestOrchestrator(t, Options{Tokens: iss})

	draft := about
	draft.Published = false
	if err := o.ExportItem(context.Background(), draft); err != nil {
		t.Fatalf("ExportItem: %v", err)
	}
	if !reflect.DeepEqual(iss.owners, []int64{12}) {
		t.Fatalf("owners = %v", iss.owners)
	}
	if got := r.calls[0].query.Get(token.Param); got != "tok+/=" {
		t.Fatalf("quant_token = %q", got)
	}

	if err := o.ExportItem(context.Background(), about); err != nil {
		t.Fatalf("ExportItem: %v", err)
	}
	if len(iss.owners) != 1 {
		t.Fatal("published items must not mint tokens")
	}
}

func TestExportItem_TokenFailureAborts(t *testing.T) {
	iss := &fakeIssuer{err: token.ErrCreate}
	o, r, s := newTestOrchestrator(t, Options{Tokens: iss})

	draft := about
	draft.Published = false
	err := o.ExportItem(context.Background(), draft)
	if !errors.Is(err, token.ErrCreate) {
		t.Fatalf("err = %v, want ErrCreate", err)
	}
	if len(r.calls) != 0 || len(s.events) != 0 {
		t.Fatal("nothing should be rendered or emitted")
	}
}

func TestExportRoute(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	o, r, s := newTestOrchestrator(t, Options{Now: func() time.Time { return now }})

	if err := o.ExportRoute(context.Background(), "/search"); err != nil {
		t.Fatalf("ExportRoute: %v", err)
	}
	if r.calls[0].route != "/search" || len(r.calls[0].query) != 0 {
		t.Fatalf("render call = %+v", r.calls[0])
	}
	ev := s.events[0]
	if ev.Path != "/search" || ev.Revision != nil {
		t.Fatalf("event = %+v", ev)
	}
	if !reflect.DeepEqual(ev.Metadata, metadata.Route(now)) {
		t.Fatalf("metadata = %v", ev.Metadata)
	}
}

func TestExportFile(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "themes", "site"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "themes", "site", "logo.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	o, _, s := newTestOrchestrator(t, Options{AssetRoot: root})
	ctx := context.Background()

	ok, err := o.ExportFile(ctx, "/themes/site/logo.png")
	if err != nil || !ok {
		t.Fatalf("ExportFile = %v, %v", ok, err)
	}
	want := FileEvent{SourcePath: filepath.Join(root, "themes", "site", "logo.png"), PublicPath: "/themes/site/logo.png"}
	if len(s.files) != 1 || s.files[0] != want {
		t.Fatalf("files = %+v", s.files)
	}

	ok, err = o.ExportFile(ctx, "/themes/site/missing.png")
	if err != nil || ok {
		t.Fatalf("missing file: %v, %v; want skipped", ok, err)
	}

	ok, err = o.ExportFile(ctx, "/themes")
	if err != nil || ok {
		t.Fatalf("directory: %v, %v; want skipped", ok, err)
	}

	if _, err := o.ExportFile(ctx, "/../secret"); err == nil {
		t.Fatal("traversal must be rejected")
	}
	if len(s.files) != 1 {
		t.Fatalf("files = %+v", s.files)
	}
}

func TestExportFile_RelativeAssetRootIsAbsolute(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "a.css"), []byte("a{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	o, _, s := newTestOrchestrator(t, Options{AssetRoot: "assets"})
	ok, err := o.ExportFile(context.Background(), "/a.css")
	if err != nil || !ok {
		t.Fatalf("ExportFile = %v, %v", ok, err)
	}
	got := s.files[0].SourcePath
	if !filepath.IsAbs(got) {
		t.Fatalf("SourcePath = %q, want absolute", got)
	}
	if want := filepath.Join(dir, "assets", "a.css"); got != want {
		t.Fatalf("SourcePath = %q, want %q", got, want)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Sink: &fakeSink{}}); !errors.Is(err, ErrSetup) {
		t.Fatalf("err = %v", err)
	}
	if _, err := New(Options{Renderer: &fakeRenderer{}}); !errors.Is(err, ErrSetup) {
		t.Fatalf("err = %v", err)
	}
}
