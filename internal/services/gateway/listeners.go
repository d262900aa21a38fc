// Package gateway wires Discord gateway events into the command and
// stats services.
package gateway

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/bot"
	dgo "github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/tmister923-blip/bot-login/internal/services/commands"
	"github.com/tmister923-blip/bot-login/internal/services/stats"
	"github.com/tmister923-blip/bot-login/pkg/logx"
)

// Listeners builds the event listeners every bot session registers.
func Listeners(store *commands.Store, tracker *stats.Tracker, log logx.Logger) []bot.EventListener {
	h := &handler{store: store, tracker: tracker, log: log.With(logx.String("svc", "gateway"))}
	return []bot.EventListener{
		bot.NewListenerFunc(h.onMessageCreate),
		bot.NewListenerFunc(h.onReactionAdd),
		bot.NewListenerFunc(h.onReactionRemove),
	}
}

type handler struct {
	store   *commands.Store
	tracker *stats.Tracker
	log     logx.Logger
}

func (h *handler) onMessageCreate(event *events.MessageCreate) {
	if event.Message.Author.Bot || event.GuildID == nil {
		return
	}
	guildID := event.GuildID.String()
	userID := event.Message.Author.ID.String()

	h.tracker.RecordMessage(guildID, userID, event.Message.Author.Username)

	cmd, ok := h.store.Match(guildID, userID, event.Message.Content)
	if !ok {
		return
	}
	reply := h.render(cmd, guildID, userID, event.Message.Author.Username)
	if reply == "" {
		return
	}
	if _, err := event.Client().Rest.CreateMessage(event.ChannelID, dgo.MessageCreate{Content: reply}); err != nil {
		h.log.Debug("command reply failed",
			logx.String("guild", guildID),
			logx.String("trigger", cmd.Trigger),
			logx.Err(err))
	}
}

func (h *handler) onReactionAdd(event *events.MessageReactionAdd) {
	if event.GuildID == nil {
		return
	}
	h.tracker.RecordReaction(event.GuildID.String(), event.UserID.String(), true)
}

func (h *handler) onReactionRemove(event *events.MessageReactionRemove) {
	if event.GuildID == nil {
		return
	}
	h.tracker.RecordReaction(event.GuildID.String(), event.UserID.String(), false)
}

// render produces the reply text for a matched command.
func (h *handler) render(cmd commands.Command, guildID, userID, username string) string {
	switch cmd.Type {
	case commands.TypeCustom:
		return cmd.Response
	case commands.TypeStats:
		u, ok := h.tracker.User(guildID, userID)
		if !ok {
			return fmt.Sprintf("%s, no activity recorded yet.", username)
		}
		return fmt.Sprintf("%s: %d messages, %d reactions.", username, u.Messages, u.Reactions)
	case commands.TypeActive:
		top := h.tracker.TopBy(guildID, stats.ByMessages, 5)
		if len(top) == 0 {
			return "No activity recorded yet."
		}
		var b strings.Builder
		b.WriteString("Most active users:\n")
		for i, u := range top {
			name := u.Username
			if name == "" {
				name = u.UserID
			}
			fmt.Fprintf(&b, "%d. %s (%d messages)\n", i+1, name, u.Messages)
		}
		return strings.TrimRight(b.String(), "\n")
	}
	return ""
}
