package engine

import (
	"fmt"
)

// 📊 Status is the read-only snapshot shown on the status line
type Status struct {
	State    State
	Pending  int // uploads waiting for a retry
	Messages int // messages not yet seen by a viewer
	Target   string
}

func (s Status) String() string {
	icon := "✗"
	text := "SyncSFTP is not connected"
	switch s.State {
	case StateConnected:
		icon, text = "✓", "SyncSFTP is connected"
	case StatePaused:
		icon, text = "⏸", "SyncSFTP is paused"
	case StateUnconfigured:
		text = "SyncSFTP is not configured"
	}
	out := fmt.Sprintf("%s %s (ℹ %d messages)", icon, text, s.Messages)
	if s.Pending > 0 {
		out += fmt.Sprintf(", %d queued", s.Pending)
	}
	return out
}

type pendingCounter interface {
	Pending() int
}

// Status reports state, queue depth and the sink's backlog
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{State: e.stateLocked()}
	if e.cfg.IsValid() {
		st.Target = e.cfg.String()
	}
	e.mu.Unlock()

	st.Pending = e.queue.Len()
	if c, ok := e.opts.Sink.(pendingCounter); ok {
		st.Messages = c.Pending()
	}
	return st
}
