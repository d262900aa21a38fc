package bulkdm

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tmister923-blip/bot-login/internal/eventbus"
	"github.com/tmister923-blip/bot-login/pkg/logx"
)

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	cfg.normalize()
	return &Service{
		cfg:    cfg,
		bus:    bus,
		log:    log.With(logx.String("svc", "bulkdm")),
		status: make(map[string]*JobStatus),
	}
}

// Apply swaps the shared tunables. Safe while a job is running; the
// running job keeps the batch plan it started with but picks up new
// pagination settings on its next page.
func (s *Service) Apply(cfg Config) {
	cfg.normalize()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// TryStart accepts the request only when no job is in flight. The
// returned id identifies the job in status queries; ok is false when
// another job holds the slot.
func (s *Service) TryStart(ctx context.Context, members MemberLister, msgr Messenger, req Request) (id string, ok bool) {
	if msgr == nil {
		return "", false
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return "", false
	}
	s.inFlight = true
	id = uuid.NewString()
	s.curID = id
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.mu.Unlock()

	now := time.Now()
	s.statusMu.Lock()
	s.status[id] = &JobStatus{
		ID:        id,
		GuildID:   req.GuildID,
		Scope:     req.Scope,
		Status:    StatusStarting,
		CreatedAt: now,
		StartedAt: now,
		Running:   true,
	}
	s.statusMu.Unlock()
	s.pruneStatus(now)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(runCtx, members, msgr, req, id)
	}()
	return id, true
}

// Abort cancels the in-flight job, if any.
func (s *Service) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inFlight || s.runCancel == nil {
		return false
	}
	s.runCancel()
	return true
}

// Stop cancels any running job and waits for its goroutine to exit.
func (s *Service) Stop() {
	s.Abort()
	s.wg.Wait()
}

func (s *Service) clearInFlight(id string) {
	s.mu.Lock()
	if s.curID == id {
		s.inFlight = false
		s.curID = ""
		s.runCancel = nil
	}
	s.mu.Unlock()
}

// fail records a terminal error and publishes the final snapshot.
func (s *Service) fail(id string, p Progress) {
	s.statusMu.Lock()
	if st := s.status[id]; st != nil {
		st.Status = StatusError
		st.Err = p.Error
		st.Sent = p.Sent
		st.Failed = p.Failed
		st.DoneAt = time.Now()
		st.Running = false
	}
	s.statusMu.Unlock()
	s.publish(p)
}

// finish records completion and publishes the final snapshot.
func (s *Service) finish(id string, p Progress) {
	s.statusMu.Lock()
	if st := s.status[id]; st != nil {
		st.Status = StatusCompleted
		st.Sent = p.Sent
		st.Failed = p.Failed
		st.DoneAt = time.Now()
		st.Running = false
	}
	s.statusMu.Unlock()
	s.publish(p)
}

func (s *Service) setStarted(id string, total, batches int) {
	s.statusMu.Lock()
	if st := s.status[id]; st != nil {
		st.Total = total
		st.Batches = batches
		st.Status = StatusSending
	}
	s.statusMu.Unlock()
}

func (s *Service) setCounters(id string, sent, failed int) {
	s.statusMu.Lock()
	if st := s.status[id]; st != nil {
		st.Sent = sent
		st.Failed = failed
	}
	s.statusMu.Unlock()
}
