package bulkdm

import (
	"sort"
	"time"
)

// InFlight reports whether a job currently holds the send slot.
func (s *Service) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Current returns the running job's snapshot, if any.
func (s *Service) Current() (JobStatus, bool) {
	s.mu.Lock()
	id := s.curID
	s.mu.Unlock()
	if id == "" {
		return JobStatus{}, false
	}
	return s.Status(id)
}

// Status returns a copy of one job's record.
func (s *Service) Status(id string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st := s.status[id]
	if st == nil {
		return JobStatus{}, false
	}
	return *st, true
}

// History returns all known job records, newest first.
func (s *Service) History() []JobStatus {
	s.statusMu.RLock()
	out := make([]JobStatus, 0, len(s.status))
	for _, st := range s.status {
		if st == nil {
			continue
		}
		out = append(out, *st)
	}
	s.statusMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Prune drops stale job records. Wired to the maintenance scheduler.
func (s *Service) Prune(now time.Time) {
	s.pruneStatus(now)
}
