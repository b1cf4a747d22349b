package sink

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-seed/internal/seed"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

// Dir writes the export layout under a local directory.
type Dir struct {
	root   string
	logger log.Logger
}

func NewDir(root string, logger log.Logger) (*Dir, error) {
	if root == "" {
		return nil, xerrors.New("output directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, xerrors.Wrapf(err, "resolve %s", root)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", abs)
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Dir{root: abs, logger: logger}, nil
}

func (d *Dir) Output(ctx context.Context, ev seed.Event) error {
	rel, err := pathutil.PageKey(ev.Path)
	if err != nil {
		return xerrors.Wrapf(err, "page %q", ev.Path)
	}
	dst := filepath.Join(d.root, filepath.FromSlash(rel))
	if err := writeAtomic(dst, func(w io.Writer) error {
		_, err := io.WriteString(w, ev.Markup)
		return err
	}); err != nil {
		return err
	}
	d.logger.Debug(ctx, "page written", "path", dst)
	return nil
}

func (d *Dir) File(ctx context.Context, ev seed.FileEvent) error {
	rel, err := pathutil.FileKey(ev.PublicPath)
	if err != nil {
		return xerrors.Wrapf(err, "file %q", ev.PublicPath)
	}
	src, err := os.Open(ev.SourcePath)
	if err != nil {
		return xerrors.Wrapf(err, "open %s", ev.SourcePath)
	}
	defer src.Close()

	dst := filepath.Join(d.root, filepath.FromSlash(rel))
	if err := writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	}); err != nil {
		return err
	}
	d.logger.Debug(ctx, "file written", "path", dst)
	return nil
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place.
func writeAtomic(dst string, fill func(io.Writer) error) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Wrapf(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".seed-*")
	if err != nil {
		return xerrors.Wrapf(err, "create temp in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := fill(tmp); err != nil {
		tmp.Close()
		return xerrors.Wrapf(err, "write %s", dst)
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return xerrors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return xerrors.Wrapf(err, "rename into %s", dst)
	}
	return nil
}
