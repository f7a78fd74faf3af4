package extractor

import (
	"sync"
	"time"
)

// ExtractionStatus is the state of a tracked extraction.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionInProgress ExtractionStatus = "in_progress"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// Terminal reports whether the status is final.
func (s ExtractionStatus) Terminal() bool {
	return s == ExtractionCompleted || s == ExtractionFailed
}

// Progress describes one extraction keyed by (collection, source).
type Progress struct {
	CollectionID string           `json:"collection_id"`
	Source       string           `json:"source"`
	Status       ExtractionStatus `json:"status"`
	DocumentID   string           `json:"document_id,omitempty"`
	Error        string           `json:"error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type progressKey struct {
	collection string
	source     string
}

// Tracker records extraction progress in memory. Progress is advisory
// status for API consumers, not durable state.
type Tracker struct {
	mu      sync.RWMutex
	entries map[progressKey]*Progress
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[progressKey]*Progress)}
}

// Start records a pending extraction, resetting any previous terminal entry
// for the same source.
func (t *Tracker) Start(collectionID, source string) *Progress {
	now := time.Now()
	p := &Progress{
		CollectionID: collectionID,
		Source:       source,
		Status:       ExtractionInProgress,
		StartedAt:    now,
		UpdatedAt:    now,
	}

	t.mu.Lock()
	t.entries[progressKey{collectionID, source}] = p
	t.mu.Unlock()
	return p
}

// Complete marks the extraction completed with the stored document ID.
func (t *Tracker) Complete(collectionID, source, documentID string) {
	t.update(collectionID, source, func(p *Progress) {
		p.Status = ExtractionCompleted
		p.DocumentID = documentID
		p.Error = ""
	})
}

// Fail marks the extraction failed with the error text.
func (t *Tracker) Fail(collectionID, source string, err error) {
	t.update(collectionID, source, func(p *Progress) {
		p.Status = ExtractionFailed
		if err != nil {
			p.Error = err.Error()
		}
	})
}

func (t *Tracker) update(collectionID, source string, fn func(*Progress)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[progressKey{collectionID, source}]
	if !ok {
		return
	}
	fn(p)
	p.UpdatedAt = time.Now()
}

// Get returns the progress for one source, or nil when untracked.
func (t *Tracker) Get(collectionID, source string) *Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.entries[progressKey{collectionID, source}]
	if !ok {
		return nil
	}
	copied := *p
	return &copied
}

// List returns all tracked extractions for a collection.
func (t *Tracker) List(collectionID string) []*Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*Progress
	for key, p := range t.entries {
		if key.collection == collectionID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out
}

// Cleanup removes terminal entries older than maxAge and returns the number
// removed.
func (t *Tracker) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, p := range t.entries {
		if p.Status.Terminal() && p.UpdatedAt.Before(cutoff) {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}
