// Package stats tracks per-guild member activity fed by gateway events.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/tmister923-blip/bot-login/pkg/logx"
)

// UserStats is one member's activity record.
type UserStats struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	Messages  int64     `json:"messages"`
	Reactions int64     `json:"reactions"`
	LastSeen  time.Time `json:"lastSeen,omitzero"`
}

// MinuteSample is one rollup bucket of guild-wide activity.
type MinuteSample struct {
	At        time.Time `json:"at"`
	Messages  int64     `json:"messages"`
	Reactions int64     `json:"reactions"`
}

const (
	// rollup window length, in one-minute samples
	defaultWindow = 60
)

type guildStats struct {
	users map[string]*UserStats

	// counters accumulated since the last rollup tick
	pendingMessages  int64
	pendingReactions int64
	window           []MinuteSample
}

// Tracker aggregates gateway activity in memory.
type Tracker struct {
	mu     sync.RWMutex
	guilds map[string]*guildStats
	window int

	log logx.Logger
	now func() time.Time
}

func NewTracker(log logx.Logger) *Tracker {
	return &Tracker{
		guilds: make(map[string]*guildStats),
		window: defaultWindow,
		log:    log.With(logx.String("svc", "stats")),
		now:    time.Now,
	}
}

func (t *Tracker) guild(id string) *guildStats {
	g := t.guilds[id]
	if g == nil {
		g = &guildStats{users: make(map[string]*UserStats)}
		t.guilds[id] = g
	}
	return g
}

func (t *Tracker) user(g *guildStats, userID, username string) *UserStats {
	u := g.users[userID]
	if u == nil {
		u = &UserStats{UserID: userID}
		g.users[userID] = u
	}
	if username != "" {
		u.Username = username
	}
	return u
}

// RecordMessage counts one message from a member.
func (t *Tracker) RecordMessage(guildID, userID, username string) {
	if guildID == "" || userID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.guild(guildID)
	u := t.user(g, userID, username)
	u.Messages++
	u.LastSeen = t.now()
	g.pendingMessages++
}

// RecordReaction counts a reaction add or, with added=false, walks one
// back. Counters never go below zero.
func (t *Tracker) RecordReaction(guildID, userID string, added bool) {
	if guildID == "" || userID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	g := t.guild(guildID)
	u := t.user(g, userID, "")
	if added {
		u.Reactions++
		u.LastSeen = t.now()
		g.pendingReactions++
		return
	}
	if u.Reactions > 0 {
		u.Reactions--
	}
	if g.pendingReactions > 0 {
		g.pendingReactions--
	}
}

// User returns one member's record.
func (t *Tracker) User(guildID, userID string) (UserStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g := t.guilds[guildID]
	if g == nil {
		return UserStats{}, false
	}
	u := g.users[userID]
	if u == nil {
		return UserStats{}, false
	}
	return *u, true
}

// Metric selects the ranking order for TopBy.
type Metric string

const (
	ByMessages  Metric = "messages"
	ByReactions Metric = "reactions"
)

// TopBy ranks a guild's members by the given metric, ties broken by
// user ID for stable output.
func (t *Tracker) TopBy(guildID string, metric Metric, limit int) []UserStats {
	if limit <= 0 {
		limit = 10
	}
	t.mu.RLock()
	g := t.guilds[guildID]
	var out []UserStats
	if g != nil {
		out = make([]UserStats, 0, len(g.users))
		for _, u := range g.users {
			out = append(out, *u)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if metric == ByReactions {
			if out[i].Reactions != out[j].Reactions {
				return out[i].Reactions > out[j].Reactions
			}
		} else if out[i].Messages != out[j].Messages {
			return out[i].Messages > out[j].Messages
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Totals sums a guild's counters across all tracked members.
func (t *Tracker) Totals(guildID string) (messages, reactions int64, tracked int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g := t.guilds[guildID]
	if g == nil {
		return 0, 0, 0
	}
	for _, u := range g.users {
		messages += u.Messages
		reactions += u.Reactions
	}
	return messages, reactions, len(g.users)
}

// Rollup closes the current minute bucket for every guild. Wired to
// the maintenance scheduler.
func (t *Tracker) Rollup(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, g := range t.guilds {
		g.window = append(g.window, MinuteSample{
			At:        now,
			Messages:  g.pendingMessages,
			Reactions: g.pendingReactions,
		})
		g.pendingMessages = 0
		g.pendingReactions = 0
		if len(g.window) > t.window {
			g.window = g.window[len(g.window)-t.window:]
		}
	}
}

// Window returns the guild's recent per-minute samples, oldest first.
func (t *Tracker) Window(guildID string) []MinuteSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g := t.guilds[guildID]
	if g == nil {
		return nil
	}
	out := make([]MinuteSample, len(g.window))
	copy(out, g.window)
	return out
}
