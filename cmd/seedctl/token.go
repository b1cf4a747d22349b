package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-seed/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-seed/internal/token"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

func newTokenCmd(conf *cfg.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage preview tokens in the token store",
	}
	cmd.AddCommand(newTokenCreateCmd(conf), newTokenPurgeCmd(conf))
	return cmd
}

func newTokenCreateCmd(conf *cfg.App) *cobra.Command {
	var nid int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint a single-use preview token for a node and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nid <= 0 {
				return xerrors.Newf("--nid must be positive (got %d)", nid)
			}
			ctx, rt, err := start(cmd.Context(), conf, "token", cfg.ValidateDatabase)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			db, store, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			svc, err := token.NewService(token.Options{Store: store, Logger: rt.L, Metrics: rt.m})
			if err != nil {
				return err
			}
			v, err := svc.Create(ctx, nid)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().Int64Var(&nid, "nid", 0, "node id the token is bound to")
	_ = cmd.MarkFlagRequired("nid")
	return cmd
}

func newTokenPurgeCmd(conf *cfg.App) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete tokens older than the token TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, rt, err := start(cmd.Context(), conf, "token", cfg.ValidateDatabase)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			db, store, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := store.Purge(ctx, time.Now().Add(-token.TTL))
			if err != nil {
				return err
			}
			rt.m.AddTokensPurged(n)
			fmt.Fprintf(cmd.OutOrStdout(), "%d expired tokens deleted\n", n)
			return nil
		},
	}
}
