package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pkt.systems/pslog"
	"pkt.systems/roomlist/core"
	"pkt.systems/roomlist/internal/appconfig"
	"pkt.systems/roomlist/internal/fixture"
	"pkt.systems/roomlist/internal/metrics"
	"pkt.systems/roomlist/internal/persist"
	"pkt.systems/roomlist/schema"
)

const defaultSnapshotName = "roomlist"

type replayOptions struct {
	save    string
	rebuild bool
	hold    bool
	format  string
}

func newReplayCmd() *cobra.Command {
	var cfgPath string
	var metricsAddr string
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Apply a scripted stream of room list updates and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(opts.format); err != nil {
				return err
			}
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if opts.hold && cfg.Metrics.Addr == "" {
				return fmt.Errorf("--hold needs a metrics address")
			}
			script, err := fixture.Load(args[0])
			if err != nil {
				return fmt.Errorf("load script %s: %w", args[0], err)
			}
			return runReplay(cmd.Context(), cmd.OutOrStdout(), cfg, script, opts)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config path (default ~/.roomlist/config.yaml)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
	cmd.Flags().StringVar(&opts.save, "save", "", "persist every published snapshot under this name in the state dir")
	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "rebuild every summary after the last batch")
	cmd.Flags().BoolVar(&opts.hold, "hold", false, "keep serving /metrics, /snapshot and /stats until interrupted")
	cmd.Flags().StringVarP(&opts.format, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}

func runReplay(ctx context.Context, out io.Writer, cfg appconfig.Config, script fixture.Script, opts replayOptions) error {
	runID := uuid.NewString()
	logger := pslog.Ctx(ctx).With("run", runID)
	ctx = pslog.ContextWithLogger(ctx, logger)
	start := time.Now()

	sink := metrics.New(cfg.Metrics.Namespace)
	dir := fixture.NewDirectory(script)
	proc, err := core.NewProcessor(cfg.ProcessorSettings(), core.ProcessorDeps{
		Builder:     dir,
		Lookup:      dir,
		Diagnostics: sink,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = proc.Close() }()

	var recorder *persist.Recorder
	if opts.save != "" {
		store, err := persist.NewStoreWithLogger(cfg.StateDir, logger)
		if err != nil {
			return err
		}
		recorder = persist.NewRecorder(store, opts.save, logger)
		recorder.RunID = runID
	}

	group, groupCtx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(groupCtx)
	defer stopServing()
	if cfg.Metrics.Addr != "" {
		group.Go(func() error {
			return sink.Serve(serveCtx, cfg.Metrics.Addr, nil, snapshotRoutes(proc, runID))
		})
	}

	unsubscribe := func() {}
	if recorder != nil {
		var snapshots <-chan schema.Snapshot
		snapshots, unsubscribe = proc.Subscribe()
		group.Go(func() error {
			return recorder.Run(groupCtx, snapshots)
		})
	}

	if opts.rebuild && script.Rebuild == nil {
		script.Rebuild = &fixture.RebuildSpec{}
	}
	playErr := fixture.Play(groupCtx, proc, script, dir)
	unsubscribe()
	if playErr == nil && opts.hold {
		logger.Info("replay holding for metrics scrapes; interrupt to exit", "addr", cfg.Metrics.Addr)
		<-groupCtx.Done()
	}
	stopServing()
	if err := group.Wait(); err != nil && (playErr == nil || errors.Is(playErr, context.Canceled)) {
		playErr = err
	}
	if playErr != nil {
		return playErr
	}

	stats := proc.Stats()
	snapshot := proc.Snapshot()
	logger.Info("replay complete",
		"batches", stats.Posted,
		"applied", stats.Applied,
		"unchanged", stats.Unchanged,
		"cancelled", stats.Cancelled,
		"failed", stats.Failed,
		"duplicates", stats.Duplicates,
		"rebuilds", stats.Rebuilds,
		"seq", snapshot.Seq,
		"rooms", snapshot.Len(),
		"elapsed", time.Since(start),
	)
	if open := dir.OpenHandles(); open != 0 {
		logger.Warn("replay leaked room handles", "open", open)
	}
	return writeSnapshot(out, snapshot, opts.format)
}
