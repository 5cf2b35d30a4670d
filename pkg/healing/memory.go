package healing

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/forge-recipe/pkg/types"
)

var timeNow = time.Now // injected for testability

type loadState int

const (
	stateUnloaded loadState = iota
	stateLoaded
)

// Memory is the healing-record table backed by one JSON document.
// It is safe for concurrent use within a process.
type Memory struct {
	path string

	mu      sync.Mutex
	state   loadState
	records []*Record
	lookups int
	hits    int
}

// New returns a Memory backed by the document at path. Nothing is read until
// the first call that needs the records.
func New(path string) *Memory {
	return &Memory{path: path}
}

// Path returns the backing document path.
func (m *Memory) Path() string {
	return m.path
}

// ensureLoaded must be called with m.mu held.
func (m *Memory) ensureLoaded() {
	if m.state == stateLoaded {
		return
	}
	records, migrated, err := readDocument(m.path)
	if err != nil {
		slog.Warn("healing: store unreadable, starting empty", "path", m.path, "err", err)
		records = nil
	} else if migrated {
		slog.Debug("healing: migrated legacy store in memory", "path", m.path, "records", len(records))
	}
	m.records = records
	m.state = stateLoaded
}

// FindMatch returns the best remembered action for targetKey. Records from
// currentURL's domain win over records from other domains regardless of
// confidence; within a tier higher confidence then higher success count wins.
func (m *Memory) FindMatch(targetKey, currentURL string, minConfidence float64) (types.ActionRef, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded()

	m.lookups++
	domain := DomainOf(currentURL)

	var same, cross []*Record
	for _, r := range m.records {
		if r.TargetKey != targetKey || r.Confidence < minConfidence {
			continue
		}
		if domain != "" && r.Domain == domain {
			same = append(same, r)
		} else {
			cross = append(cross, r)
		}
	}

	for _, tier := range [][]*Record{same, cross} {
		if len(tier) == 0 {
			continue
		}
		sort.SliceStable(tier, func(i, j int) bool {
			if tier[i].Confidence != tier[j].Confidence {
				return tier[i].Confidence > tier[j].Confidence
			}
			return tier[i].SuccessCount > tier[j].SuccessCount
		})
		m.hits++
		return tier[0].Action.Clone(), true
	}
	return types.ActionRef{}, false
}

// Record notes a successful heal of targetKey at url by action and persists the store.
func (m *Memory) Record(targetKey string, action types.ActionRef, url string, evidence Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded()

	now := timeNow()
	if evidence.Timestamp.IsZero() {
		evidence.Timestamp = now
	}
	if evidence.HealedSelector == "" {
		evidence.HealedSelector = action.Selector
	}
	if evidence.PageURL == "" {
		evidence.PageURL = url
	}

	var rec *Record
	for _, r := range m.records {
		if r.TargetKey == targetKey && r.URL == url && r.Action.Selector == action.Selector {
			rec = r
			break
		}
	}
	if rec == nil {
		rec = &Record{
			TargetKey: targetKey,
			URL:       url,
			Domain:    DomainOf(url),
		}
		m.records = append(m.records, rec)
	}
	rec.SuccessCount++
	rec.LastSuccessAt = now
	rec.Action = action.Clone()
	rec.Evidence = evidence
	rec.recompute()

	return writeDocument(m.path, m.records)
}

// RecordFailure counts a failed replay against every record for (targetKey, url).
// The store is only rewritten when something matched.
func (m *Memory) RecordFailure(targetKey, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded()

	now := timeNow()
	matched := 0
	for _, r := range m.records {
		if r.TargetKey != targetKey || r.URL != url {
			continue
		}
		r.FailCount++
		failedAt := now
		r.LastFailAt = &failedAt
		r.recompute()
		matched++
	}
	if matched == 0 {
		return nil
	}
	return writeDocument(m.path, m.records)
}

// Prune drops records below minConfidence and, when maxAge is positive,
// records whose last success is older than maxAge. It returns the number
// removed and only rewrites the store if that number is non-zero.
func (m *Memory) Prune(minConfidence float64, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded()

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = timeNow().Add(-maxAge)
	}

	kept := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		if r.Confidence < minConfidence {
			continue
		}
		if !cutoff.IsZero() && r.LastSuccessAt.Before(cutoff) {
			continue
		}
		kept = append(kept, r)
	}
	removed := len(m.records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	m.records = kept
	return removed, writeDocument(m.path, m.records)
}

// Stats reports the store size, confidence and lookup hit rate.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded()

	s := Stats{
		TotalRecords: len(m.records),
		Lookups:      m.lookups,
		Hits:         m.hits,
		ByDomain:     make(map[string]int),
	}
	var sum float64
	for _, r := range m.records {
		sum += r.Confidence
		s.ByDomain[r.Domain]++
	}
	if s.TotalRecords > 0 {
		s.AverageConfidence = sum / float64(s.TotalRecords)
	}
	if s.Lookups > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Lookups)
	}
	return s
}

// Records returns copies of all records, optionally limited to one target key.
func (m *Memory) Records(targetKey string) []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoaded()

	var out []*Record
	for _, r := range m.records {
		if targetKey != "" && r.TargetKey != targetKey {
			continue
		}
		out = append(out, r.clone())
	}
	return out
}

// Reload discards the cached records so the next call reads the document again.
func (m *Memory) Reload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = stateUnloaded
	m.records = nil
}
