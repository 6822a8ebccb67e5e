package fixture

import (
	"context"
	"fmt"

	"pkt.systems/roomlist/core"
	"pkt.systems/roomlist/internal/logx"
)

// Play posts every scripted batch to proc, waits for them to be processed
// and runs the scripted rebuild, if any.
func Play(ctx context.Context, proc *core.Processor, script Script, dir *Directory) error {
	log := logx.Ctx(ctx)
	batches := script.Updates(dir)
	for i, batch := range batches {
		if err := proc.PostUpdate(ctx, batch); err != nil {
			for _, rest := range batches[i+1:] {
				core.ReleaseUpdates(ctx, rest)
			}
			return fmt.Errorf("post batch %d: %w", i+1, err)
		}
	}
	log.Debug("fixture batches posted", "batches", len(batches))
	if err := proc.Flush(ctx); err != nil {
		return err
	}
	if script.Rebuild == nil {
		return nil
	}
	dir.Forget(script.Rebuild.Forget...)
	if err := proc.RebuildRoomSummaries(ctx); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	return nil
}
