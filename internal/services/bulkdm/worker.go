package bulkdm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmister923-blip/bot-login/internal/eventbus"
	"github.com/tmister923-blip/bot-login/pkg/logx"
)

// run drives one job from resolution to completion. It is the only
// goroutine that mutates the job's counters, so the loop itself needs
// no locking; snapshots flow out through publish.
func (s *Service) run(ctx context.Context, members MemberLister, msgr Messenger, req Request, id string) {
	start := time.Now()
	defer s.clearInFlight(id)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("bulk send panicked: %v", r)
			s.log.Error("bulk dm job panicked", logx.String("job", id), logx.Any("panic", r))
			s.fail(id, Progress{Status: StatusError, Error: err.Error()})
		}
	}()

	recipients, err := s.resolve(ctx, members, req)
	if err != nil {
		s.log.Warn("bulk dm recipient resolution failed", logx.String("job", id), logx.Err(err))
		s.fail(id, Progress{Status: StatusError, Error: err.Error()})
		return
	}

	total := len(recipients)
	batchSize := req.BatchSize
	if batchSize <= 0 {
		s.mu.Lock()
		batchSize = s.cfg.BatchSize
		s.mu.Unlock()
	}
	p := newPlan(total, batchSize)

	s.setStarted(id, total, p.batches)
	s.publish(Progress{Total: total, Status: StatusStarting, TotalBatches: p.batches})
	s.log.Info("bulk dm job started",
		logx.String("job", id),
		logx.Int("total", total),
		logx.Int("batches", p.batches),
		logx.Int("batch_size", p.batchSize))

	if total == 0 {
		s.finish(id, Progress{Status: StatusCompleted})
		s.log.Info("bulk dm job finished", logx.String("job", id), logx.Duration("dur", time.Since(start)))
		return
	}

	sent, failed := 0, 0
	for bi := 0; bi < p.batches; bi++ {
		batch := p.slice(recipients, bi)
		zero := 0
		s.publish(Progress{
			Sent:          sent,
			Failed:        failed,
			Total:         total,
			Status:        StatusSending,
			CurrentBatch:  bi + 1,
			TotalBatches:  p.batches,
			BatchProgress: &zero,
		})

		batchSent, batchFailed := 0, 0
		for ui, userID := range batch {
			if ctx.Err() != nil {
				s.fail(id, Progress{Sent: sent, Failed: failed, Total: total, Status: StatusError, Error: errCanceled.Error()})
				return
			}
			if s.sendOne(ctx, msgr, id, userID, req.Message) {
				sent++
				batchSent++
			} else {
				failed++
				batchFailed++
			}
			s.setCounters(id, sent, failed)
			pct := percent(ui+1, len(batch))
			s.publish(Progress{
				Sent:          sent,
				Failed:        failed,
				Total:         total,
				Status:        StatusSending,
				CurrentBatch:  bi + 1,
				TotalBatches:  p.batches,
				BatchProgress: &pct,
			})
			// The delay also runs after the final recipient of a batch.
			if err := sleep(ctx, req.Delay); err != nil {
				s.fail(id, Progress{Sent: sent, Failed: failed, Total: total, Status: StatusError, Error: errCanceled.Error()})
				return
			}
		}

		s.publish(Progress{
			Sent:         sent,
			Failed:       failed,
			Total:        total,
			Status:       StatusBatchCompleted,
			CurrentBatch: bi + 1,
			TotalBatches: p.batches,
			BatchSent:    &batchSent,
			BatchFailed:  &batchFailed,
		})
		eventbus.PublishLog(s.bus, "info", fmt.Sprintf("Batch %d/%d completed: %d sent, %d failed", bi+1, p.batches, batchSent, batchFailed))

		if bi < p.batches-1 {
			s.publish(Progress{
				Sent:         sent,
				Failed:       failed,
				Total:        total,
				Status:       StatusResting,
				CurrentBatch: bi + 1,
				TotalBatches: p.batches,
			})
			eventbus.PublishLog(s.bus, "info", fmt.Sprintf("Resting %s before batch %d/%d", req.Rest, bi+2, p.batches))
			if req.Rest > 0 {
				if err := sleep(ctx, req.Rest); err != nil {
					s.fail(id, Progress{Sent: sent, Failed: failed, Total: total, Status: StatusError, Error: errCanceled.Error()})
					return
				}
			}
		}
	}

	s.finish(id, Progress{Sent: sent, Failed: failed, Total: total, Status: StatusCompleted, TotalBatches: p.batches})
	fields := []logx.Field{
		logx.String("job", id),
		logx.Int("sent", sent),
		logx.Int("failed", failed),
		logx.Duration("dur", time.Since(start)),
	}
	if failed > 0 {
		s.log.Warn("bulk dm job finished with failures", fields...)
	} else {
		s.log.Info("bulk dm job finished", fields...)
	}
}

// sendOne delivers a single DM. Failures are logged and counted by the
// caller; they never abort the job.
func (s *Service) sendOne(ctx context.Context, msgr Messenger, jobID, userID, content string) bool {
	chID, err := msgr.CreateDM(ctx, userID)
	if err != nil {
		s.log.Debug("dm channel open failed", logx.String("job", jobID), logx.String("user", userID), logx.Err(err))
		eventbus.PublishLog(s.bus, "error", fmt.Sprintf("Failed to DM %s: %v", userID, err))
		return false
	}
	if _, err := msgr.SendMessage(ctx, chID, content); err != nil {
		s.log.Debug("dm send failed", logx.String("job", jobID), logx.String("user", userID), logx.Err(err))
		eventbus.PublishLog(s.bus, "error", fmt.Sprintf("Failed to DM %s: %v", userID, err))
		return false
	}
	return true
}

func (s *Service) publish(p Progress) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeProgress, Time: time.Now(), Data: p})
}
