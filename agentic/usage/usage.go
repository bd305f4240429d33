package usage

// Usage captures token usage for a single model response.
type Usage struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cache_read,omitempty"`
	CacheWrite int `json:"cache_write,omitempty"`
	Total      int `json:"total"`
}

// StopReason describes why a generation stopped.
type StopReason string

const (
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonStop      StopReason = "stop"
	StopReasonTool      StopReason = "tool"
	StopReasonError     StopReason = "error"
	StopReasonAbort     StopReason = "abort"
)

// Normalize fills Total when missing.
func Normalize(u Usage) Usage {
	if u.Total == 0 {
		u.Total = u.Input + u.Output
	}
	return u
}

// Merge overlays the non-zero counters of next onto u. Streaming providers
// report input tokens at message start and output tokens in later deltas,
// so a zero in next means "not reported", not "reset".
func Merge(u, next Usage) Usage {
	if next.Input != 0 {
		u.Input = next.Input
	}
	if next.Output != 0 {
		u.Output = next.Output
	}
	if next.CacheRead != 0 {
		u.CacheRead = next.CacheRead
	}
	if next.CacheWrite != 0 {
		u.CacheWrite = next.CacheWrite
	}
	u.Total = 0
	return Normalize(u)
}
