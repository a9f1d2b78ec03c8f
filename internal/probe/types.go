package probe

import (
	"math"
	"time"
)

// Unreachable is the RTT recorded when no reply arrived in time or the
// socket failed.
const Unreachable = time.Duration(math.MaxInt64)

type Outcome string

const (
	OutcomeReplied     Outcome = "replied"
	OutcomeTimedOut    Outcome = "timed_out"
	OutcomeSocketError Outcome = "socket_error"
)

type Result struct {
	IP      string
	RTT     time.Duration
	Outcome Outcome
}

func (r Result) Reachable() bool {
	return r.RTT != Unreachable
}

// Millis returns the RTT in whole milliseconds, or -1 when unreachable.
func (r Result) Millis() int64 {
	if !r.Reachable() {
		return -1
	}
	return r.RTT.Milliseconds()
}
