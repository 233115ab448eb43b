package recorder

import (
	"time"

	"github.com/tphakala/sensorrec/internal/capture"
	"github.com/tphakala/sensorrec/internal/chunkwriter"
)

// Status is a point-in-time view of the recorder.
type Status struct {
	State       string                `json:"state" yaml:"state"`
	SessionID   string                `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Dir         string                `json:"dir,omitempty" yaml:"dir,omitempty"`
	StartedAt   time.Time             `json:"started_at,omitzero" yaml:"started_at,omitempty"`
	Streams     []capture.StreamStats `json:"streams,omitempty" yaml:"streams,omitempty"`
	Writer      chunkwriter.Stats     `json:"writer" yaml:"writer"`
	LastArchive string                `json:"last_archive,omitempty" yaml:"last_archive,omitempty"`
}

// Status reports the running session, or the last finished one while idle.
func (r *Recorder) Status() Status {
	if s := r.cur.Load(); s != nil {
		st := r.snapshot(s, r.State())
		return *st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastStatus != nil {
		st := *r.lastStatus
		st.State = StateIdle.String()
		return st
	}
	return Status{State: r.State().String(), LastArchive: r.lastArchive}
}

func (r *Recorder) snapshot(s *session, state State) *Status {
	st := &Status{
		State:     state.String(),
		SessionID: s.id,
		Dir:       s.dir,
		StartedAt: s.started,
		Writer:    s.writer.Stats(),
		Streams:   make([]capture.StreamStats, 0, len(s.order)),
	}
	for _, name := range s.order {
		st.Streams = append(st.Streams, s.streams[name].Stats())
	}
	return st
}
