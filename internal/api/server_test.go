package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tmister923-blip/bot-login/internal/discord"
	"github.com/tmister923-blip/bot-login/internal/eventbus"
	"github.com/tmister923-blip/bot-login/internal/services/bulkdm"
	"github.com/tmister923-blip/bot-login/internal/services/commands"
	"github.com/tmister923-blip/bot-login/internal/services/music"
	"github.com/tmister923-blip/bot-login/internal/services/stats"
	"github.com/tmister923-blip/bot-login/pkg/logx"
)

type fakeSession struct {
	user    discord.User
	guilds  []discord.Guild
	members []discord.Member
	msgs    []discord.Message
	dmDelay time.Duration
}

func (f *fakeSession) CurrentUser(ctx context.Context) (discord.User, error) { return f.user, nil }
func (f *fakeSession) Guilds(ctx context.Context) ([]discord.Guild, error)   { return f.guilds, nil }
func (f *fakeSession) Guild(ctx context.Context, guildID string) (discord.Guild, error) {
	for _, g := range f.guilds {
		if g.ID == guildID {
			return g, nil
		}
	}
	return discord.Guild{}, errors.New("unknown guild")
}
func (f *fakeSession) MembersPage(ctx context.Context, guildID string, limit int, after string) ([]discord.Member, error) {
	if len(f.members) > limit {
		return f.members[:limit], nil
	}
	return f.members, nil
}
func (f *fakeSession) AllMembers(ctx context.Context, guildID string, pageLimit, maxPages int, pageDelay time.Duration) ([]discord.Member, error) {
	return f.members, nil
}
func (f *fakeSession) CreateDM(ctx context.Context, userID string) (string, error) {
	if f.dmDelay > 0 {
		time.Sleep(f.dmDelay)
	}
	return "dm-" + userID, nil
}
func (f *fakeSession) SendMessage(ctx context.Context, channelID, content string) (discord.Message, error) {
	return discord.Message{ID: "m1", ChannelID: channelID, Content: content}, nil
}
func (f *fakeSession) Messages(ctx context.Context, channelID string, limit int) ([]discord.Message, error) {
	return f.msgs, nil
}
func (f *fakeSession) Channels(ctx context.Context, guildID string) ([]discord.Channel, error) {
	return []discord.Channel{
		{ID: "c1", Type: discord.ChannelTypeText},
		{ID: "c2", Type: discord.ChannelTypeText},
		{ID: "c3", Type: discord.ChannelTypeVoice},
	}, nil
}
func (f *fakeSession) UserByID(ctx context.Context, userID string) (discord.User, error) {
	return discord.User{ID: userID, Username: "found"}, nil
}
func (f *fakeSession) SearchMember(ctx context.Context, guildID, query string, pageLimit, maxPages int, pageDelay time.Duration) (*discord.Member, error) {
	for i := range f.members {
		if f.members[i].User.Username == query {
			return &f.members[i], nil
		}
	}
	return nil, nil
}
func (f *fakeSession) Stickers(ctx context.Context, guildID string) ([]discord.Sticker, error) {
	return nil, nil
}
func (f *fakeSession) CreateSticker(ctx context.Context, guildID, name, description, tags, filename string, file io.Reader) (discord.Sticker, error) {
	return discord.Sticker{ID: "s1", Name: name}, nil
}
func (f *fakeSession) DeleteSticker(ctx context.Context, guildID, stickerID string) error { return nil }
func (f *fakeSession) UpdateProfile(ctx context.Context, up discord.ProfileUpdate) (discord.User, error) {
	return f.user, nil
}
func (f *fakeSession) SetPresence(ctx context.Context, p discord.PresenceUpdate) error { return nil }

type fakeSessions struct {
	sess *fakeSession
	err  error
}

func (f *fakeSessions) Session(ctx context.Context, token string) (BotSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}
func (f *fakeSessions) Logout(ctx context.Context, token string) {}
func (f *fakeSessions) Count() int                               { return 1 }

func testMembers(n int, bots ...int) []discord.Member {
	botSet := map[int]bool{}
	for _, b := range bots {
		botSet[b] = true
	}
	out := make([]discord.Member, n)
	for i := range out {
		out[i] = discord.Member{User: discord.User{
			ID:       fmt.Sprintf("%018d", i),
			Username: fmt.Sprintf("user%d", i),
			Bot:      botSet[i],
		}}
	}
	return out
}

func newTestServer(t *testing.T, sess *fakeSession) (*Server, *bulkdm.Service) {
	t.Helper()
	bus := eventbus.New()
	bulk := bulkdm.New(bulkdm.Config{}, bus, logx.Nop())
	srv := NewServer(
		Config{PageDelay: time.Millisecond},
		&fakeSessions{sess: sess},
		func(ctx context.Context, tok string) (*discord.User, error) {
			if tok == "good-token" {
				return &discord.User{ID: "1", Username: "bot"}, nil
			}
			return nil, errors.New("401: Unauthorized")
		},
		bulk,
		commands.NewStore(logx.Nop()),
		stats.NewTracker(logx.Nop()),
		music.New(music.Config{}, logx.Nop()),
		nil,
		logx.Nop(),
	)
	return srv, bulk
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer good-token")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{})
	w := doJSON(t, srv, http.MethodGet, "/api/bot-info", nil, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestVerifyToken(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{})

	w := doJSON(t, srv, http.MethodPost, "/api/verify-token", map[string]string{"token": "good-token"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if resp := decode(t, w); resp["valid"] != true {
		t.Fatalf("unexpected response: %v", resp)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/verify-token", map[string]string{"token": "bad"}, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/verify-token", map[string]string{}, false)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty token status = %d, want 400", w.Code)
	}
}

func TestExtractUsersFiltersBots(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{members: testMembers(10, 0, 5)})

	w := doJSON(t, srv, http.MethodPost, "/api/extract-users", map[string]any{"guildId": "g1"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if resp := decode(t, w); resp["count"] != float64(8) {
		t.Fatalf("count = %v, want 8", resp["count"])
	}

	w = doJSON(t, srv, http.MethodPost, "/api/extract-users", map[string]any{"guildId": "g1", "includeBots": true}, true)
	if resp := decode(t, w); resp["count"] != float64(10) {
		t.Fatalf("count with bots = %v, want 10", resp["count"])
	}
}

func TestPreviewRecipients(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{members: testMembers(10, 3)})

	w := doJSON(t, srv, http.MethodPost, "/api/preview-recipients", map[string]any{
		"type": "custom", "customUsers": []string{"1", "", "2"},
	}, true)
	if resp := decode(t, w); resp["count"] != float64(2) {
		t.Fatalf("custom count = %v, want 2", resp["count"])
	}

	w = doJSON(t, srv, http.MethodPost, "/api/preview-recipients", map[string]any{
		"type": "all", "guildId": "g1",
	}, true)
	if resp := decode(t, w); resp["count"] != float64(9) {
		t.Fatalf("all count = %v, want 9", resp["count"])
	}

	w = doJSON(t, srv, http.MethodPost, "/api/preview-recipients", map[string]any{"type": "nope"}, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad type status = %d, want 400", w.Code)
	}
}

func TestSendDMsAcceptsThenConflicts(t *testing.T) {
	srv, bulk := newTestServer(t, &fakeSession{dmDelay: 5 * time.Millisecond})

	body := map[string]any{
		"message":     "hello",
		"type":        "custom",
		"customUsers": []string{"1", "2", "3", "4", "5", "6", "7", "8"},
	}
	w := doJSON(t, srv, http.MethodPost, "/api/send-dms", body, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if resp := decode(t, w); resp["jobId"] == "" {
		t.Fatalf("missing jobId: %v", resp)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/send-dms", body, true)
	if w.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", w.Code)
	}
	bulk.Stop()
}

func TestSendDMsValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{})
	cases := []map[string]any{
		{"type": "all", "guildId": "g1"},                     // no message
		{"message": "x", "type": "all"},                      // no guild
		{"message": "x", "type": "custom"},                   // no users
		{"message": "x", "type": "weird"},                    // bad type
		{"message": "x", "type": "custom", "delay": -1, "customUsers": []string{"1"}}, // negative delay
	}
	for i, body := range cases {
		if w := doJSON(t, srv, http.MethodPost, "/api/send-dms", body, true); w.Code != http.StatusBadRequest {
			t.Fatalf("case %d: status = %d, want 400 (body=%s)", i, w.Code, w.Body.String())
		}
	}
}

func TestCommandCRUDOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{})

	w := doJSON(t, srv, http.MethodPost, "/api/create-command", map[string]any{
		"guildId": "g1", "trigger": "ping", "type": "custom", "response": "pong", "cooldown": 5,
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", w.Code, w.Body.String())
	}
	created := decode(t, w)["command"].(map[string]any)
	id := created["id"].(string)

	// duplicate trigger
	w = doJSON(t, srv, http.MethodPost, "/api/create-command", map[string]any{
		"guildId": "g1", "trigger": "ping", "type": "custom", "response": "x",
	}, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status = %d, want 400", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/update-command", map[string]any{
		"id": id, "trigger": "pong", "type": "custom", "response": "ping",
	}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodGet, "/api/commands?guildId=g1", nil, true)
	if list := decode(t, w)["commands"].([]any); len(list) != 1 {
		t.Fatalf("list length = %d, want 1", len(list))
	}

	w = doJSON(t, srv, http.MethodPost, "/api/delete-command", map[string]any{"id": id}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodPost, "/api/delete-command", map[string]any{"id": id}, true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("delete missing status = %d, want 404", w.Code)
	}
}

func TestServerStatsMergesTracker(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{guilds: []discord.Guild{{ID: "g1", Name: "Guild", MemberCount: 42}}})
	srv.tracker.RecordMessage("g1", "u1", "alice")
	srv.tracker.RecordMessage("g1", "u1", "")

	w := doJSON(t, srv, http.MethodPost, "/api/get-server-stats", map[string]any{"guildId": "g1"}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["textChannels"] != float64(2) || resp["voiceChannels"] != float64(1) {
		t.Fatalf("channel counts wrong: %v", resp)
	}
	activity := resp["activity"].(map[string]any)
	if activity["messages"] != float64(2) {
		t.Fatalf("tracker messages = %v, want 2", activity["messages"])
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSession{})
	w := doJSON(t, srv, http.MethodGet, "/api/health", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode(t, w)
	if resp["status"] != "ok" || resp["jobRunning"] != false {
		t.Fatalf("unexpected health: %v", resp)
	}
}
