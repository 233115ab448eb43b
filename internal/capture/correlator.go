package capture

import (
	"sync"
)

// Correlator pairs asynchronously delivered sensor settings with image
// entries by exact timestamp. Settings are recorded into a live generation
// map; at handoff the live map is frozen into a snapshot that travels with
// the chunk, and only entries newer than the chunk carry forward.
type Correlator struct {
	mu   sync.Mutex
	live map[int64]SensorSettings
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{live: make(map[int64]SensorSettings)}
}

// Record stores settings for the frame at timestamp. Safe for concurrent use.
func (c *Correlator) Record(timestamp int64, settings SensorSettings) {
	c.mu.Lock()
	c.live[timestamp] = settings
	c.mu.Unlock()
}

// Pending returns the number of settings waiting in the live generation.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// Swap freezes the live generation for a chunk whose newest entry has
// timestamp lastTimestamp. Settings for later timestamps move into the new
// live generation; the returned snapshot must not be modified.
func (c *Correlator) Swap(lastTimestamp int64) map[int64]SensorSettings {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.live) == 0 {
		return nil
	}

	snapshot := c.live
	next := make(map[int64]SensorSettings)
	for ts, s := range snapshot {
		if ts > lastTimestamp {
			next[ts] = s
			delete(snapshot, ts)
		}
	}
	c.live = next
	return snapshot
}

// Discard drops every recorded setting at or before lastTimestamp. Used when
// a chunk is dropped under backpressure.
func (c *Correlator) Discard(lastTimestamp int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ts := range c.live {
		if ts <= lastTimestamp {
			delete(c.live, ts)
		}
	}
}

// ResolveSettings attaches snapshot settings to every entry of chunk and marks
// them resolved. Entries without a match get zero settings. It returns the
// matched and unmatched counts.
func ResolveSettings(chunk *Chunk, snapshot map[int64]SensorSettings) (matched, unmatched int) {
	entries := chunk.Entries()
	for i := range entries {
		s, ok := snapshot[entries[i].Timestamp]
		if !ok {
			chunk.ApplySettings(i, SensorSettings{})
			unmatched++
			continue
		}
		s.Resolved = true
		chunk.ApplySettings(i, s)
		matched++
	}
	return matched, unmatched
}
