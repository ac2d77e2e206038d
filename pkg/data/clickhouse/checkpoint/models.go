package checkpoint

// Checkpoint is the persisted sliding window state for one chain: the lowest
// checkpoint sequence number not yet processed. Timestamp (unix millis) picks
// the newest row when ReplacingMergeTree collapses duplicates.
type Checkpoint struct {
	Chain     string `json:"chain"`
	Lowest    uint64 `json:"lowest_unprocessed"`
	Timestamp int64  `json:"timestamp"`
}
