// Package audittest provides in-memory audit doubles for tests.
package audittest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/warden/pkg/audit"
)

// Store is an in-memory audit.Store. Set AppendErr to make writes fail.
type Store struct {
	mu        sync.Mutex
	events    []*audit.AuditEvent
	nextID    int64
	AppendErr error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

var _ audit.Store = (*Store)(nil)

// Append stores a copy of the event
func (s *Store) Append(_ context.Context, event *audit.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.nextID++
	event.ID = s.nextID
	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

// Events returns every stored event in insertion order
func (s *Store) Events() []*audit.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*audit.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// EventsOfType returns the stored events of one type
func (s *Store) EventsOfType(eventType audit.EventType) []*audit.AuditEvent {
	var out []*audit.AuditEvent
	for _, e := range s.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) matching(filter audit.SearchFilter) []*audit.AuditEvent {
	var out []*audit.AuditEvent
	for _, e := range s.Events() {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Search returns matching events ordered like the SQL store
func (s *Store) Search(_ context.Context, filter audit.SearchFilter) ([]*audit.AuditEvent, error) {
	events := s.matching(filter)
	asc := filter.SortOrder == "asc"
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if asc {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.Timestamp.After(b.Timestamp)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(events) {
			return []*audit.AuditEvent{}, nil
		}
		events = events[filter.Offset:]
	}
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	if events == nil {
		events = []*audit.AuditEvent{}
	}
	return events, nil
}

// Get returns the event with id, or nil
func (s *Store) Get(_ context.Context, id int64) (*audit.AuditEvent, error) {
	for _, e := range s.Events() {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

// Count returns the number of matching events
func (s *Store) Count(_ context.Context, filter audit.SearchFilter) (int64, error) {
	return int64(len(s.matching(filter))), nil
}

// GetStats aggregates over the matching events
func (s *Store) GetStats(_ context.Context, filter audit.SearchFilter) (*audit.AuditStats, error) {
	stats := audit.NewStats(filter)
	actors := make(map[string]bool)
	ips := make(map[string]bool)

	for _, e := range s.matching(filter) {
		stats.TotalEvents++
		stats.EventsByType[e.EventType]++
		stats.EventsByLevel[e.Level]++
		stats.EventsByModule[e.Module]++
		if e.UserEmail != "" {
			actors[e.UserEmail] = true
		}
		if e.IPAddress != "" {
			ips[e.IPAddress] = true
		}
	}

	stats.UniqueActors = int64(len(actors))
	stats.UniqueIPs = int64(len(ips))
	stats.Derive()
	return stats, nil
}

// Timeline buckets matching events by hour or day in UTC
func (s *Store) Timeline(_ context.Context, start, end time.Time, bucket audit.BucketSize, filter audit.SearchFilter) ([]audit.TimeBucket, error) {
	filter.StartTime = &start
	filter.EndTime = &end

	counts := make(map[time.Time]int64)
	for _, e := range s.matching(filter) {
		ts := e.Timestamp.UTC()
		var key time.Time
		if bucket == audit.BucketDay {
			key = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		} else {
			key = ts.Truncate(time.Hour)
		}
		counts[key]++
	}

	buckets := make([]audit.TimeBucket, 0, len(counts))
	for k, v := range counts {
		buckets = append(buckets, audit.TimeBucket{Start: k, Count: v})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets, nil
}

// TopIPs ranks origin addresses by matching event count
func (s *Store) TopIPs(_ context.Context, filter audit.SearchFilter, limit int) ([]audit.IPCount, error) {
	if limit <= 0 {
		limit = 10
	}
	counts := make(map[string]int64)
	for _, e := range s.matching(filter) {
		if e.IPAddress != "" {
			counts[e.IPAddress]++
		}
	}

	out := make([]audit.IPCount, 0, len(counts))
	for ip, c := range counts {
		out = append(out, audit.IPCount{IPAddress: ip, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IPAddress < out[j].IPAddress
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteBefore drops events older than cutoff
func (s *Store) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for _, e := range s.events {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return deleted, nil
}
