// Package commands keeps per-guild chat commands and matches them
// against incoming messages.
package commands

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tmister923-blip/bot-login/pkg/logx"
)

// Type classifies what a command responds with.
type Type string

const (
	// TypeCustom replies with the stored response text.
	TypeCustom Type = "custom"
	// TypeStats replies with the invoking user's activity counters.
	TypeStats Type = "stats"
	// TypeActive replies with the guild's most active users.
	TypeActive Type = "active"
)

const prefix = "!"

// Command is one stored chat command.
type Command struct {
	ID       string `json:"id"`
	GuildID  string `json:"guildId"`
	Trigger  string `json:"trigger"`
	Type     Type   `json:"type"`
	Response string `json:"response,omitempty"`
	// Cooldown is the per-user reuse interval in seconds. Zero means
	// no cooldown.
	Cooldown  int       `json:"cooldown"`
	CreatedAt time.Time `json:"createdAt"`
}

func validType(t Type) bool {
	switch t {
	case TypeCustom, TypeStats, TypeActive:
		return true
	}
	return false
}

// Store is the in-memory command registry.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*Command
	// lastUse tracks cooldowns per guild/user/trigger.
	lastUse map[string]time.Time

	log logx.Logger
	now func() time.Time
}

func NewStore(log logx.Logger) *Store {
	return &Store{
		byID:    make(map[string]*Command),
		lastUse: make(map[string]time.Time),
		log:     log.With(logx.String("svc", "commands")),
		now:     time.Now,
	}
}

// Create registers a command. The trigger is stored lower-cased and
// must be unique within its guild.
func (s *Store) Create(guildID, trigger string, typ Type, response string, cooldown int) (Command, error) {
	trigger = normalizeTrigger(trigger)
	if trigger == "" {
		return Command{}, fmt.Errorf("trigger required")
	}
	if !validType(typ) {
		return Command{}, fmt.Errorf("unknown command type %q", typ)
	}
	if typ == TypeCustom && strings.TrimSpace(response) == "" {
		return Command{}, fmt.Errorf("custom command needs a response")
	}
	if cooldown < 0 {
		cooldown = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.GuildID == guildID && c.Trigger == trigger {
			return Command{}, fmt.Errorf("trigger %q already exists in guild", trigger)
		}
	}
	cmd := &Command{
		ID:        uuid.NewString(),
		GuildID:   guildID,
		Trigger:   trigger,
		Type:      typ,
		Response:  response,
		Cooldown:  cooldown,
		CreatedAt: s.now(),
	}
	s.byID[cmd.ID] = cmd
	s.log.Info("command created", logx.String("guild", guildID), logx.String("trigger", trigger), logx.String("type", string(typ)))
	return *cmd, nil
}

// Update rewrites a command's mutable fields.
func (s *Store) Update(id, trigger string, typ Type, response string, cooldown int) (Command, error) {
	trigger = normalizeTrigger(trigger)
	if trigger == "" {
		return Command{}, fmt.Errorf("trigger required")
	}
	if !validType(typ) {
		return Command{}, fmt.Errorf("unknown command type %q", typ)
	}
	if cooldown < 0 {
		cooldown = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := s.byID[id]
	if cmd == nil {
		return Command{}, fmt.Errorf("command %s not found", id)
	}
	for _, c := range s.byID {
		if c.ID != id && c.GuildID == cmd.GuildID && c.Trigger == trigger {
			return Command{}, fmt.Errorf("trigger %q already exists in guild", trigger)
		}
	}
	cmd.Trigger = trigger
	cmd.Type = typ
	cmd.Response = response
	cmd.Cooldown = cooldown
	return *cmd, nil
}

// Delete removes a command by id.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	return true
}

// List returns commands, optionally filtered by guild. Empty guildID
// returns everything.
func (s *Store) List(guildID string) []Command {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Command, 0, len(s.byID))
	for _, c := range s.byID {
		if guildID != "" && c.GuildID != guildID {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// Match resolves message content to a runnable command and arms its
// cooldown. Returns false when no trigger matches or the user is still
// cooling down.
func (s *Store) Match(guildID, userID, content string) (Command, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}
	fields := strings.Fields(content[len(prefix):])
	if len(fields) == 0 {
		return Command{}, false
	}
	word := strings.ToLower(fields[0])

	s.mu.Lock()
	defer s.mu.Unlock()
	var cmd *Command
	for _, c := range s.byID {
		if c.GuildID == guildID && c.Trigger == word {
			cmd = c
			break
		}
	}
	if cmd == nil {
		return Command{}, false
	}
	if cmd.Cooldown > 0 {
		key := guildID + "/" + userID + "/" + cmd.Trigger
		now := s.now()
		if last, ok := s.lastUse[key]; ok && now.Sub(last) < time.Duration(cmd.Cooldown)*time.Second {
			return Command{}, false
		}
		s.lastUse[key] = now
	}
	return *cmd, true
}

// PruneCooldowns drops expired cooldown marks. Wired to the
// maintenance scheduler.
func (s *Store) PruneCooldowns(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maxCooldown := time.Duration(0)
	for _, c := range s.byID {
		if d := time.Duration(c.Cooldown) * time.Second; d > maxCooldown {
			maxCooldown = d
		}
	}
	for k, t := range s.lastUse {
		if now.Sub(t) > maxCooldown {
			delete(s.lastUse, k)
		}
	}
}

func normalizeTrigger(trigger string) string {
	trigger = strings.ToLower(strings.TrimSpace(trigger))
	return strings.TrimPrefix(trigger, prefix)
}
