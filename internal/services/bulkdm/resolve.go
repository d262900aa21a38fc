package bulkdm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmister923-blip/bot-login/pkg/logx"
)

// resolve expands the request scope into a flat list of user IDs.
// ScopeAll walks the guild member list page by page; a failed page
// aborts the whole job rather than sending to a partial roster.
func (s *Service) resolve(ctx context.Context, members MemberLister, req Request) ([]string, error) {
	switch req.Scope {
	case ScopeCustom:
		out := make([]string, 0, len(req.Recipients))
		for _, id := range req.Recipients {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			out = append(out, id)
		}
		return out, nil
	case ScopeAll:
		// fall through below
	default:
		return nil, fmt.Errorf("unknown recipient scope %q", req.Scope)
	}

	if req.GuildID == "" {
		return nil, fmt.Errorf("guild id required for scope %q", ScopeAll)
	}
	if members == nil {
		return nil, fmt.Errorf("no member source for scope %q", ScopeAll)
	}

	s.mu.Lock()
	pageLimit := s.cfg.PageLimit
	maxPages := s.cfg.MaxPages
	pageDelay := s.cfg.PageDelay
	s.mu.Unlock()

	var out []string
	after := ""
	for page := 0; page < maxPages; page++ {
		ms, err := members.MembersPage(ctx, req.GuildID, pageLimit, after)
		if err != nil {
			return nil, fmt.Errorf("fetch members page %d: %w", page+1, err)
		}
		for _, m := range ms {
			if m.User.Bot {
				continue
			}
			out = append(out, m.User.ID)
		}
		// A short page means the roster is exhausted.
		if len(ms) < pageLimit {
			return out, nil
		}
		after = ms[len(ms)-1].User.ID
		if err := sleep(ctx, pageDelay); err != nil {
			return nil, err
		}
	}
	// Page cap hit: proceed with what we have instead of looping on a
	// cursor that never shrinks.
	s.log.Warn("member pagination capped", logx.Int("pages", maxPages), logx.Int("resolved", len(out)))
	return out, nil
}

// sleep waits for d unless the context is cancelled first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
