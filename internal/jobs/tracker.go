package jobs

import "sync"

// BatchState is a snapshot of the most recently dispatched batch.
type BatchState struct {
	ID          string `json:"id"`
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	CurrentFile string `json:"currentFile,omitempty"`
	Active      bool   `json:"active"`
}

// Tracker records batch progress for UI snapshots. It observes only and
// never gates: a second batch dispatched while the first is still running
// simply overwrites the snapshot, matching the unguarded trigger surface.
type Tracker struct {
	mu      sync.RWMutex
	current BatchState
}

// NewTracker creates a tracker with no batch recorded.
func NewTracker() *Tracker {
	return &Tracker{}
}

// BatchStarted records a freshly dispatched batch.
func (t *Tracker) BatchStarted(id string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = BatchState{
		ID:     id,
		Total:  total,
		Active: total > 0,
	}
}

// FileStarted records the file currently inside the pipeline.
func (t *Tracker) FileStarted(id, file string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.ID != id {
		return
	}
	t.current.CurrentFile = file
}

// FileCompleted counts one successful file.
func (t *Tracker) FileCompleted(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.ID != id {
		return
	}
	t.current.Completed++
	t.current.CurrentFile = ""
}

// FileFailed counts one failed file.
func (t *Tracker) FileFailed(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.ID != id {
		return
	}
	t.current.Failed++
	t.current.CurrentFile = ""
}

// BatchFinished marks the batch inactive.
func (t *Tracker) BatchFinished(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current.ID != id {
		return
	}
	t.current.Active = false
	t.current.CurrentFile = ""
}

// Current returns a snapshot of the tracked batch.
func (t *Tracker) Current() BatchState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}
