package bulkdm

import (
	"sort"
	"time"
)

const (
	// Job records accumulate for as long as the process lives, so the
	// history map is bounded by both count and age.
	defaultStatusMax = 100
	defaultStatusTTL = 24 * time.Hour
)

func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	max := s.statusMax
	if max <= 0 {
		max = defaultStatusMax
	}
	ttl := s.statusTTL
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}

	if len(s.status) == 0 {
		return
	}

	// Drop finished jobs older than TTL. Running jobs are never pruned.
	for id, st := range s.status {
		if st == nil {
			delete(s.status, id)
			continue
		}
		if st.Running {
			continue
		}
		reference := st.DoneAt
		if reference.IsZero() {
			reference = st.CreatedAt
		}
		if !reference.IsZero() && now.Sub(reference) > ttl {
			delete(s.status, id)
		}
	}

	if len(s.status) <= max {
		return
	}

	// Still too big: drop the oldest finished records first.
	type kv struct {
		id string
		t  time.Time
	}
	items := make([]kv, 0, len(s.status))
	for id, st := range s.status {
		if st == nil || st.Running {
			continue
		}
		t := st.DoneAt
		if t.IsZero() {
			t = st.CreatedAt
		}
		items = append(items, kv{id: id, t: t})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].t.Before(items[j].t) })

	excess := len(s.status) - max
	for i := 0; i < excess && i < len(items); i++ {
		delete(s.status, items[i].id)
	}
}
