package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	v "github.com/keithlinneman/linnemanlabs-seed/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v.Get())
		},
	}
}
