package learning

import (
	"sort"
	"sync"
	"time"
)

// MaxPatternExamples bounds the examples ring of a pattern record.
const MaxPatternExamples = 5

// PatternRecord counts sightings of one phrasing pattern.
type PatternRecord struct {
	Key         string    `json:"key"`
	Domain      string    `json:"domain"`
	Occurrences int       `json:"occurrences"`
	Examples    []string  `json:"examples"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// PatternTracker records recurring task patterns in memory.
type PatternTracker struct {
	mu      sync.Mutex
	records map[string]*PatternRecord
	now     func() time.Time
}

// NewPatternTracker creates an empty tracker.
func NewPatternTracker() *PatternTracker {
	return &PatternTracker{
		records: make(map[string]*PatternRecord),
		now:     time.Now,
	}
}

// Track increments the occurrence count for key and returns a snapshot of
// the updated record. The domain is fixed at first sighting unless it was empty.
func (t *PatternTracker) Track(key, domain, example string) PatternRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.records[key]
	if !ok {
		rec = &PatternRecord{Key: key, Domain: domain, FirstSeen: now}
		t.records[key] = rec
	}
	if rec.Domain == "" {
		rec.Domain = domain
	}

	rec.Occurrences++
	rec.LastSeen = now
	rec.Examples = append(rec.Examples, example)
	if len(rec.Examples) > MaxPatternExamples {
		rec.Examples = append([]string(nil), rec.Examples[len(rec.Examples)-MaxPatternExamples:]...)
	}

	return rec.clone()
}

// Get returns a snapshot of the record for key.
func (t *PatternTracker) Get(key string) (PatternRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok {
		return PatternRecord{}, false
	}
	return rec.clone(), true
}

// List returns snapshots of every record, sorted by key.
func (t *PatternTracker) List() []PatternRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PatternRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DomainCount sums occurrences across every pattern in the domain.
func (t *PatternTracker) DomainCount(domain string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, rec := range t.records {
		if rec.Domain == domain {
			total += rec.Occurrences
		}
	}
	return total
}

func (r *PatternRecord) clone() PatternRecord {
	c := *r
	c.Examples = append([]string(nil), r.Examples...)
	return c
}
