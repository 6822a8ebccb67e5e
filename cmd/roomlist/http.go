package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pkt.systems/roomlist/core"
	"pkt.systems/roomlist/internal/persist"
)

// snapshotRoutes serves the processor's latest snapshot as JSON.
func snapshotRoutes(proc *core.Processor, runID string) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/snapshot", func(w http.ResponseWriter, _ *http.Request) {
			record := persist.NewSnapshotRecord(proc.Snapshot())
			record.RunID = runID
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			_ = enc.Encode(record)
		})
		r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(proc.Stats())
		})
	}
}
