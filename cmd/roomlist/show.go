package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/internal/appconfig"
	"pkt.systems/roomlist/internal/persist"
)

func newShowCmd() *cobra.Command {
	var cfgPath string
	var format string
	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Print a saved room list snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			name := defaultSnapshotName
			if len(args) == 1 {
				name = args[0]
			}
			store, err := persist.NewStoreWithLogger(cfg.StateDir, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			snapshot, ok, err := store.Load(name)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no snapshot saved as %q in %s", name, cfg.StateDir)
			}
			return writeSnapshot(cmd.OutOrStdout(), snapshot, format)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config path (default ~/.roomlist/config.yaml)")
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}
