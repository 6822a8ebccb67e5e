package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkt.systems/roomlist/internal/appconfig"
	"pkt.systems/roomlist/internal/persist"
	"pkt.systems/roomlist/internal/version"
)

// versionReport is the build info plus the on-disk formats this binary reads.
type versionReport struct {
	version.Info   `yaml:",inline"`
	SnapshotFormat int `json:"snapshot_format" yaml:"snapshot_format"`
	ConfigVersion  int `json:"config_version" yaml:"config_version"`
}

func newVersionCmd() *cobra.Command {
	var verbose bool
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			report := versionReport{
				Info:           version.Read(),
				SnapshotFormat: persist.FormatVersion,
				ConfigVersion:  appconfig.CurrentConfigVersion,
			}
			return writeVersion(cmd.OutOrStdout(), report, format, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include vcs, toolchain and format versions")
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}

func writeVersion(w io.Writer, report versionReport, format string, verbose bool) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case formatYAML:
		data, err := marshalYAML(report)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	if !verbose {
		_, err := fmt.Fprintf(w, "%s %s\n", report.Module, report.Version)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "module\t%s\n", report.Module)
	_, _ = fmt.Fprintf(tw, "version\t%s\n", report.String())
	if report.Revision != "" {
		_, _ = fmt.Fprintf(tw, "revision\t%s\n", report.Revision)
	}
	if !report.Committed.IsZero() {
		_, _ = fmt.Fprintf(tw, "committed\t%s\n", report.Committed.Format("2006-01-02T15:04:05Z"))
	}
	_, _ = fmt.Fprintf(tw, "go\t%s %s\n", report.GoVersion, report.Platform)
	_, _ = fmt.Fprintf(tw, "snapshot format\t%d\n", report.SnapshotFormat)
	_, _ = fmt.Fprintf(tw, "config version\t%d\n", report.ConfigVersion)
	return tw.Flush()
}
