package logging

type BaseEvent struct {
	TSUTC         string `json:"ts_utc"`
	TSUnixMS      int64  `json:"ts_unix_ms"`
	Seq           uint64 `json:"seq"`
	Type          string `json:"type"`
	RunID         string `json:"run_id"`
	SchemaVersion int    `json:"schema_version"`
	ToolName      string `json:"tool_name"`
	ToolVersion   string `json:"tool_version"`
	HostID        string `json:"host_id"`
	ClockSource   string `json:"clock_source"`
}

func (b *BaseEvent) Base() *BaseEvent {
	return b
}

type RunStart struct {
	BaseEvent
	TestDomain string `json:"test_domain"`
	Candidates int    `json:"candidates"`
	BatchSize  int    `json:"batch_size"`
	TimeoutMs  int64  `json:"timeout_ms"`
	Source     string `json:"source"`
}

type ResolverResult struct {
	BaseEvent
	Rank    int    `json:"rank"`
	IP      string `json:"ip"`
	RttMs   int64  `json:"rtt_ms"`
	Outcome string `json:"outcome"`
}

type RunSummary struct {
	BaseEvent
	Candidates int      `json:"candidates"`
	Reachable  int      `json:"reachable"`
	LossPct    float64  `json:"loss_pct"`
	RttMinMs   float64  `json:"rtt_min_ms"`
	RttAvgMs   float64  `json:"rtt_avg_ms"`
	RttP95Ms   float64  `json:"rtt_p95_ms"`
	Top        []string `json:"top"`
	DurationMs int64    `json:"duration_ms"`
	Err        string   `json:"err,omitempty"`
}

type ListUpdate struct {
	BaseEvent
	Path    string `json:"path"`
	Servers int    `json:"servers"`
	Err     string `json:"err,omitempty"`
}
