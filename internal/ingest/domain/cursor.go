package domain

import "time"

// IngestionCursor is the persisted per-user ingestion progress.
//
// Uninitialized (no record) -> BaselineSet (BaselineAt set, not ready) ->
// BaselineReady. Only a connect event moves it back to BaselineSet.
type IngestionCursor struct {
	LastUID       string     `json:"last_uid"`
	ProcessedIDs  []string   `json:"processed_ids"`
	BaselineAt    *time.Time `json:"baseline_at"`
	BaselineReady bool       `json:"baseline_ready"`
}

// ProcessedSet is the processed ids as a lookup set.
func (c *IngestionCursor) ProcessedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.ProcessedIDs))
	for _, id := range c.ProcessedIDs {
		set[id] = struct{}{}
	}
	return set
}
