package audit

// ToolResult summarizes what the invoked tool returned. Detail is opaque
// to the chain — it is recorded, never interpreted.
type ToolResult struct {
	Status string `json:"status,omitempty"` // "succeeded" or "failed"
	Detail string `json:"detail,omitempty"`
}

// Entry is one line in the hash-chained JSONL audit log.
// All fields are structs or scalars (no map[string]any) to guarantee
// deterministic json.Marshal field order for reproducible MACs.
//
// Hash is hex(HMAC-SHA256(key, prev_hash || line-without-hash)). Entries
// are immutable once appended; Seq is gapless starting at 1.
type Entry struct {
	Seq         uint64     `json:"seq"`
	Timestamp   string     `json:"ts"`
	Actor       string     `json:"actor"`
	Capability  string     `json:"capability"`
	Sensitivity string     `json:"sensitivity"`
	Decision    string     `json:"decision"` // allowed | denied | allowed_after_confirmation
	Result      ToolResult `json:"result"`
	PrevHash    string     `json:"prev_hash"`
	Hash        string     `json:"hash"`
}

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"
