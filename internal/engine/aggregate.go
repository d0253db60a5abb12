package engine

import (
	"context"
	"fmt"

	"github.com/jholdgaard/subastamon/internal/event"
)

// maybeEmitAggregatedLog summarizes recent activity into a HEARTBEAT
// roughly every AggWindowSeconds, rather than one log line per UPDATE.
// The very first call only arms the window (warm-up, nothing emitted
// yet), matching the original collector's first-tick behavior.
func (e *Engine) maybeEmitAggregatedLog(ctx context.Context) {
	if e.agg.total() <= 0 {
		return
	}

	now := e.clock.Now()
	if e.aggLastEmit == nil {
		e.aggLastEmit = &now
		return
	}

	if now.Sub(*e.aggLastEmit).Seconds() < e.cfg.AggWindowSeconds {
		return
	}

	msg := fmt.Sprintf("updates=%d changed=%d http_errors=%d ends=%d", e.agg.updates, e.agg.changed, e.agg.httpError, e.agg.end)
	e.emit(event.Event{Level: event.LevelInfo, Kind: event.KindHeartbeat, Message: msg, CreatedAt: now})

	e.agg = aggCounts{}
	e.aggLastEmit = &now
}
