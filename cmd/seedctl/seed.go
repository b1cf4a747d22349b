package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-seed/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-seed/internal/content"
	"github.com/keithlinneman/linnemanlabs-seed/internal/message"
	"github.com/keithlinneman/linnemanlabs-seed/internal/seed"
	"github.com/keithlinneman/linnemanlabs-seed/internal/sink"
	"github.com/keithlinneman/linnemanlabs-seed/internal/token"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

// pushJob is the Pushgateway job name for seed runs.
const pushJob = "seedctl_seed"

func newSeedCmd(conf *cfg.App) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Render every item, route and file in the manifest and deliver them to the sinks",
		Long: `seed loads the manifest, renders each item through the local server and hands
the markup to the configured sinks: --output-dir, --s3-bucket, or the log
with --dry-run. Reserved pages (front, 404, 403) are emitted at their fixed
paths as well as at the item alias.

The command exits non-zero when any export failed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSeed(ctx, conf, cmd.OutOrStdout())
		},
	}
}

func runSeed(ctx context.Context, conf *cfg.App, out io.Writer) error {
	ctx, rt, err := start(ctx, conf, "seed", cfg.ValidateSeed)
	if err != nil {
		return err
	}
	defer rt.close(ctx)
	L := rt.L

	m, err := content.LoadManifest(conf.ManifestPath)
	if err != nil {
		L.Error(ctx, err, "manifest load failed", "path", conf.ManifestPath)
		return err
	}

	msgs := message.NewLog(L)

	r, err := rt.renderer(msgs)
	if err != nil {
		return err
	}

	dst, err := buildSink(ctx, rt)
	if err != nil {
		L.Error(ctx, err, "sink setup failed")
		return err
	}

	opts := seed.Options{
		Renderer:  r,
		Sink:      dst,
		Site:      m.Site,
		AssetRoot: conf.AssetRoot,
		Logger:    L,
		Metrics:   rt.m,
	}
	if conf.PreviewTokens {
		db, store, err := rt.openStore(ctx)
		if err != nil {
			L.Error(ctx, err, "token store unavailable")
			return err
		}
		defer db.Close()
		svc, err := token.NewService(token.Options{Store: store, Logger: L, Metrics: rt.m})
		if err != nil {
			return err
		}
		opts.Tokens = svc
	}

	o, err := seed.New(opts)
	if err != nil {
		return err
	}
	res := seed.NewBatch(o, seed.BatchOptions{
		Reporter:  msgs,
		Logger:    L,
		Metrics:   rt.m,
		PerSecond: conf.SeedRate,
		Burst:     conf.SeedBurst,
	}).Run(ctx, m)

	printMessages(out, msgs.Messages())

	if conf.PushGateway != "" {
		// the run context may already be cancelled, push regardless
		if err := rt.m.Push(context.WithoutCancel(ctx), conf.PushGateway, pushJob); err != nil {
			L.Error(ctx, err, "metrics push failed", "gateway", conf.PushGateway)
		}
	}

	return seedError(res)
}

// buildSink assembles the configured destinations. Dry runs only log.
func buildSink(ctx context.Context, rt *runtime) (seed.Sink, error) {
	conf := rt.conf
	if conf.DryRun {
		return sink.NewLog(rt.L), nil
	}

	var sinks sink.Fanout
	if conf.OutputDir != "" {
		d, err := sink.NewDir(conf.OutputDir, rt.L)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, d)
	}
	if conf.S3Bucket != "" {
		awsCfg, err := rt.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		s, err := sink.NewS3(sink.S3Options{
			Client:        s3.NewFromConfig(awsCfg),
			Bucket:        conf.S3Bucket,
			Prefix:        conf.S3Prefix,
			SkipUnchanged: conf.S3SkipUnchanged,
			Logger:        rt.L,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

func printMessages(w io.Writer, msgs []message.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s\n", m.Level, m.Text)
	}
}

func seedError(res seed.Result) error {
	switch {
	case res.Err != nil:
		return res.Err
	case res.Failed > 0:
		return xerrors.Newf("run %s: %d of %d exports failed", res.RunID, res.Failed, res.Processed)
	}
	return nil
}
