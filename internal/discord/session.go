package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/disgoorg/disgo/bot"
	dgo "github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"

	logx "github.com/tmister923-blip/bot-login/pkg/logx"
)

// Session is one connected bot: a gateway connection plus rate-limited REST
// access for a single token.
type Session struct {
	token     string
	client    *bot.Client
	limiter   *rate.Limiter
	log       logx.Logger
	createdAt time.Time
}

func (s *Session) Token() string        { return s.token }
func (s *Session) Client() *bot.Client  { return s.client }
func (s *Session) ConnectedAt() time.Time { return s.createdAt }

// do performs a raw REST call against the Discord API, honoring the shared
// rate limiter. body and out may be nil.
func (s *Session) do(ctx context.Context, method, path string, body, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	route := rest.NewEndpoint(method, path)
	return s.client.Rest.Do(route.Compile(nil), body, out, rest.WithCtx(ctx))
}

// CurrentUser returns the bot's own account.
func (s *Session) CurrentUser(ctx context.Context) (User, error) {
	var u User
	if err := s.do(ctx, http.MethodGet, "/users/@me", nil, &u); err != nil {
		return User{}, fmt.Errorf("get current user: %w", err)
	}
	return u, nil
}

// Guilds lists the guilds the bot is a member of.
func (s *Session) Guilds(ctx context.Context) ([]Guild, error) {
	var gs []Guild
	if err := s.do(ctx, http.MethodGet, "/users/@me/guilds", nil, &gs); err != nil {
		return nil, fmt.Errorf("get guilds: %w", err)
	}
	return gs, nil
}

// Guild fetches one guild with approximate member counts.
func (s *Session) Guild(ctx context.Context, guildID string) (Guild, error) {
	gid, err := snowflake.Parse(guildID)
	if err != nil {
		return Guild{}, fmt.Errorf("invalid guild id %q: %w", guildID, err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return Guild{}, err
	}
	g, err := s.client.Rest.GetGuild(gid, true, rest.WithCtx(ctx))
	if err != nil {
		return Guild{}, fmt.Errorf("get guild: %w", err)
	}
	out := Guild{
		ID:          g.ID.String(),
		Name:        g.Name,
		OwnerID:     g.OwnerID.String(),
		MemberCount: g.ApproximateMemberCount,
		Presences:   g.ApproximatePresenceCount,
	}
	if g.Icon != nil {
		out.Icon = *g.Icon
	}
	return out, nil
}

// MembersPage fetches a single page of guild members.
// after is the exclusive pagination cursor ("" for the first page).
func (s *Session) MembersPage(ctx context.Context, guildID string, limit int, after string) ([]Member, error) {
	gid, err := snowflake.Parse(guildID)
	if err != nil {
		return nil, fmt.Errorf("invalid guild id %q: %w", guildID, err)
	}
	var cursor snowflake.ID
	if after != "" {
		cursor, err = snowflake.Parse(after)
		if err != nil {
			return nil, fmt.Errorf("invalid member cursor %q: %w", after, err)
		}
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	members, err := s.client.Rest.GetMembers(gid, limit, cursor, rest.WithCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("get members: %w", err)
	}
	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = append(out, memberFromAPI(m))
	}
	return out, nil
}

func memberFromAPI(m dgo.Member) Member {
	out := Member{
		User: User{
			ID:            m.User.ID.String(),
			Username:      m.User.Username,
			Discriminator: m.User.Discriminator,
			Bot:           m.User.Bot,
		},
	}
	if m.User.GlobalName != nil {
		out.User.GlobalName = *m.User.GlobalName
	}
	if m.User.Avatar != nil {
		out.User.Avatar = *m.User.Avatar
	}
	if m.Nick != nil {
		out.Nick = *m.Nick
	}
	if m.JoinedAt != nil {
		t := *m.JoinedAt
		out.JoinedAt = &t
	}
	return out
}

// AllMembers walks the member pagination to the end.
// pageLimit is clamped to [1,1000]; maxPages bounds the walk; pageDelay is
// inserted between page fetches to stay clear of remote rate limits.
func (s *Session) AllMembers(ctx context.Context, guildID string, pageLimit, maxPages int, pageDelay time.Duration) ([]Member, error) {
	if pageLimit <= 0 || pageLimit > 1000 {
		pageLimit = 1000
	}
	if maxPages <= 0 {
		maxPages = 50
	}

	var all []Member
	after := ""
	for page := 0; page < maxPages; page++ {
		members, err := s.MembersPage(ctx, guildID, pageLimit, after)
		if err != nil {
			return nil, err
		}
		all = append(all, members...)
		if len(members) < pageLimit {
			return all, nil
		}
		after = members[len(members)-1].User.ID
		if pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pageDelay):
			}
		}
	}
	return all, nil
}

// CreateDM opens (or reuses) the direct-message channel for a user and
// returns its channel id.
func (s *Session) CreateDM(ctx context.Context, userID string) (string, error) {
	var ch DMChannel
	body := map[string]string{"recipient_id": userID}
	if err := s.do(ctx, http.MethodPost, "/users/@me/channels", body, &ch); err != nil {
		return "", fmt.Errorf("create dm channel for %s: %w", userID, err)
	}
	return ch.ID, nil
}

// SendMessage posts plain text content to a channel.
func (s *Session) SendMessage(ctx context.Context, channelID, content string) (Message, error) {
	var msg Message
	body := map[string]string{"content": content}
	if err := s.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", body, &msg); err != nil {
		return Message{}, fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return msg, nil
}

// Messages returns up to limit recent messages of a channel, newest first.
func (s *Session) Messages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	cid, err := snowflake.Parse(channelID)
	if err != nil {
		return nil, fmt.Errorf("invalid channel id %q: %w", channelID, err)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	msgs, err := s.client.Rest.GetMessages(cid, 0, 0, 0, limit, rest.WithCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		um := Message{
			ID:        m.ID.String(),
			ChannelID: m.ChannelID.String(),
			Content:   m.Content,
			Timestamp: m.ID.Time(),
			Author: User{
				ID:       m.Author.ID.String(),
				Username: m.Author.Username,
				Bot:      m.Author.Bot,
			},
		}
		if m.Author.Avatar != nil {
			um.Author.Avatar = *m.Author.Avatar
		}
		out = append(out, um)
	}
	return out, nil
}

// Channels lists a guild's channels.
func (s *Session) Channels(ctx context.Context, guildID string) ([]Channel, error) {
	var chs []Channel
	if err := s.do(ctx, http.MethodGet, "/guilds/"+guildID+"/channels", nil, &chs); err != nil {
		return nil, fmt.Errorf("get channels: %w", err)
	}
	return chs, nil
}

// UserByID fetches an arbitrary user account.
func (s *Session) UserByID(ctx context.Context, userID string) (User, error) {
	var u User
	if err := s.do(ctx, http.MethodGet, "/users/"+userID, nil, &u); err != nil {
		return User{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	return u, nil
}

// SearchMember finds a guild member by exact or prefix username match.
func (s *Session) SearchMember(ctx context.Context, guildID, query string, pageLimit, maxPages int, pageDelay time.Duration) (*Member, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("search query required")
	}
	members, err := s.AllMembers(ctx, guildID, pageLimit, maxPages, pageDelay)
	if err != nil {
		return nil, err
	}
	var prefix *Member
	for i := range members {
		name := strings.ToLower(members[i].User.Username)
		if name == query {
			return &members[i], nil
		}
		if prefix == nil && strings.HasPrefix(name, query) {
			prefix = &members[i]
		}
	}
	if prefix != nil {
		return prefix, nil
	}
	return nil, fmt.Errorf("no member matching %q", query)
}

// Stickers lists a guild's stickers.
func (s *Session) Stickers(ctx context.Context, guildID string) ([]Sticker, error) {
	var st []Sticker
	if err := s.do(ctx, http.MethodGet, "/guilds/"+guildID+"/stickers", nil, &st); err != nil {
		return nil, fmt.Errorf("get stickers: %w", err)
	}
	return st, nil
}

// DeleteSticker removes one guild sticker.
func (s *Session) DeleteSticker(ctx context.Context, guildID, stickerID string) error {
	if err := s.do(ctx, http.MethodDelete, "/guilds/"+guildID+"/stickers/"+stickerID, nil, nil); err != nil {
		return fmt.Errorf("delete sticker %s: %w", stickerID, err)
	}
	return nil
}

// UpdateProfile patches the bot account (username/avatar/banner).
func (s *Session) UpdateProfile(ctx context.Context, up ProfileUpdate) (User, error) {
	var u User
	if err := s.do(ctx, http.MethodPatch, "/users/@me", up, &u); err != nil {
		return User{}, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// SetPresence updates the gateway presence (status + activity).
func (s *Session) SetPresence(ctx context.Context, p PresenceUpdate) error {
	opts := []gateway.PresenceOpt{presenceStatusOpt(p.Status)}
	if name := strings.TrimSpace(p.ActivityName); name != "" {
		opts = append(opts, presenceActivityOpt(p.ActivityType, name, p.StreamingURL))
	}
	if err := s.client.SetPresence(ctx, opts...); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

func presenceStatusOpt(status string) gateway.PresenceOpt {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "idle":
		return gateway.WithOnlineStatus(dgo.OnlineStatusIdle)
	case "dnd":
		return gateway.WithOnlineStatus(dgo.OnlineStatusDND)
	case "invisible":
		return gateway.WithOnlineStatus(dgo.OnlineStatusInvisible)
	default:
		return gateway.WithOnlineStatus(dgo.OnlineStatusOnline)
	}
}

func presenceActivityOpt(kind, name, streamingURL string) gateway.PresenceOpt {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "streaming":
		return gateway.WithStreamingActivity(name, streamingURL)
	case "listening":
		return gateway.WithListeningActivity(name)
	case "watching":
		return gateway.WithWatchingActivity(name)
	case "custom":
		return gateway.WithCustomActivity(name)
	case "competing":
		return gateway.WithCompetingActivity(name)
	default:
		return gateway.WithPlayingActivity(name)
	}
}
