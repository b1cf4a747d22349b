package seed

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/keithlinneman/linnemanlabs-seed/internal/content"
	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

// Reporter receives operator-facing progress; message.Log implements it.
type Reporter interface {
	Status(ctx context.Context, msg string)
	Warn(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
}

// BatchMetrics is implemented by the metrics package.
type BatchMetrics interface {
	ObserveBatch(result string, seconds float64)
}

type BatchOptions struct {
	Reporter Reporter
	Logger   log.Logger
	Metrics  BatchMetrics

	// PerSecond throttles exports; zero disables throttling.
	PerSecond float64
	Burst     int
}

// Batch runs an Orchestrator over a manifest: items first, then extra
// routes, then files. One failed export never stops the run.
type Batch struct {
	o        *Orchestrator
	reporter Reporter
	logger   log.Logger
	metrics  BatchMetrics
	limiter  *rate.Limiter
}

func NewBatch(o *Orchestrator, opts BatchOptions) *Batch {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	b := &Batch{o: o, reporter: opts.Reporter, logger: opts.Logger, metrics: opts.Metrics}
	if opts.PerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(opts.PerSecond), burst)
	}
	return b
}

// Result summarizes a run. Err is set only for failures that ended the run
// early: setup problems and cancellation.
type Result struct {
	RunID     string
	Processed int
	Failed    int
	Skipped   int
	Err       error
}

// Summary is the operator-facing closing line.
func (r Result) Summary() string {
	switch {
	case r.Err != nil:
		return "Finished with an error."
	case r.Processed == 1:
		return "One item processed."
	default:
		return fmt.Sprintf("%d items processed.", r.Processed)
	}
}

func (b *Batch) Run(ctx context.Context, m *content.Manifest) Result {
	start := time.Now()
	res := Result{RunID: uuid.NewString()}

	logger := b.logger.With("run_id", res.RunID)
	ctx = log.WithContext(ctx, logger)

	res.Err = b.run(ctx, logger, m, &res)

	outcome := "ok"
	if res.Err != nil {
		outcome = "error"
		logger.Error(ctx, res.Err, "seed run aborted", "processed", res.Processed)
		b.report(ctx, "error", res.Summary())
	} else {
		logger.Info(ctx, "seed run finished",
			"processed", res.Processed,
			"failed", res.Failed,
			"skipped", res.Skipped,
			"duration", time.Since(start),
		)
		b.report(ctx, "status", res.Summary())
	}
	if b.metrics != nil {
		b.metrics.ObserveBatch(outcome, time.Since(start).Seconds())
	}
	return res
}

func (b *Batch) run(ctx context.Context, logger log.Logger, m *content.Manifest, res *Result) error {
	if err := b.setup(m); err != nil {
		return err
	}
	logger.Info(ctx, "seed run starting",
		"items", len(m.Items),
		"routes", len(m.Routes),
		"files", len(m.Files),
	)

	for _, it := range m.Items {
		if err := b.wait(ctx); err != nil {
			return err
		}
		b.report(ctx, "status", fmt.Sprintf("Processing %s (Revision: %d)", it.Title, it.RevisionID))
		if err := b.o.ExportItem(ctx, it); err != nil {
			b.fail(ctx, logger, res, err, fmt.Sprintf("Export of %s failed.", it.URL()), "nid", it.ID)
		}
		res.Processed++
	}

	for _, route := range m.Routes {
		if err := b.wait(ctx); err != nil {
			return err
		}
		b.report(ctx, "status", "Processing route: "+route)
		if err := b.o.ExportRoute(ctx, route); err != nil {
			b.fail(ctx, logger, res, err, fmt.Sprintf("Export of %s failed.", route), "route", route)
		}
		res.Processed++
	}

	for _, f := range m.Files {
		if err := b.wait(ctx); err != nil {
			return err
		}
		b.report(ctx, "status", "Processing theme asset: "+path.Base(f))
		ok, err := b.o.ExportFile(ctx, f)
		switch {
		case err != nil:
			b.fail(ctx, logger, res, err, fmt.Sprintf("Export of %s failed.", f), "file", f)
		case !ok:
			res.Skipped++
		}
		res.Processed++
	}
	return nil
}

func (b *Batch) setup(m *content.Manifest) error {
	if m == nil {
		return xerrors.Wrap(ErrSetup, "manifest is required")
	}
	if len(m.Files) == 0 {
		return nil
	}
	if b.o.assetRoot == "" {
		return xerrors.Wrap(ErrSetup, "asset root is required to export files")
	}
	fi, err := os.Stat(b.o.assetRoot)
	if err != nil {
		return xerrors.Wrapf(ErrSetup, "asset root %s: %v", b.o.assetRoot, err)
	}
	if !fi.IsDir() {
		return xerrors.Wrapf(ErrSetup, "asset root %s is not a directory", b.o.assetRoot)
	}
	return nil
}

func (b *Batch) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

func (b *Batch) fail(ctx context.Context, logger log.Logger, res *Result, err error, msg string, kv ...any) {
	res.Failed++
	logger.Error(ctx, err, "export failed", kv...)
	b.report(ctx, "warning", msg)
}

func (b *Batch) report(ctx context.Context, level, msg string) {
	if b.reporter == nil {
		return
	}
	switch level {
	case "warning":
		b.reporter.Warn(ctx, msg)
	case "error":
		b.reporter.Error(ctx, msg)
	default:
		b.reporter.Status(ctx, msg)
	}
}
