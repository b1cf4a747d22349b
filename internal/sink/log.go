package sink

import (
	"context"

	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/seed"
)

// Log records events without delivering them. Used for dry runs.
type Log struct {
	logger log.Logger
}

func NewLog(logger log.Logger) *Log {
	if logger == nil {
		logger = log.Nop()
	}
	return &Log{logger: logger}
}

func (l *Log) Output(ctx context.Context, ev seed.Event) error {
	kv := []any{"path", ev.Path, "bytes", len(ev.Markup), "metadata_keys", len(ev.Metadata)}
	if ev.Revision != nil {
		kv = append(kv, "revision", *ev.Revision)
	}
	l.logger.Info(ctx, "page export", kv...)
	return nil
}

func (l *Log) File(ctx context.Context, ev seed.FileEvent) error {
	l.logger.Info(ctx, "file export", "public_path", ev.PublicPath, "source", ev.SourcePath)
	return nil
}
