package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	dgo "github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"golang.org/x/time/rate"

	logx "github.com/tmister923-blip/bot-login/pkg/logx"
)

const apiBase = "https://discord.com/api/v10"

// httpClient is a shared thread-safe client for the few calls that bypass
// the gateway client (token verification, multipart uploads).
var httpClient = &http.Client{Timeout: 15 * time.Second}

// Manager caches one open Session per bot token.
//
// Creating a session opens the gateway and waits for it, so concurrent
// requests presenting the same fresh token are collapsed onto a single
// login attempt.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]chan struct{}

	limiter   *rate.Limiter
	listeners []bot.EventListener
	log       logx.Logger
}

func NewManager(restRatePerSec int, log logx.Logger) *Manager {
	if restRatePerSec <= 0 {
		restRatePerSec = 25
	}
	return &Manager{
		sessions: map[string]*Session{},
		pending:  map[string]chan struct{}{},
		limiter:  rate.NewLimiter(rate.Limit(restRatePerSec), restRatePerSec),
		log:      log,
	}
}

// AddListeners registers gateway event listeners applied to every session
// created afterwards. Call during bootstrap, before the first login.
func (m *Manager) AddListeners(ls ...bot.EventListener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, ls...)
	m.mu.Unlock()
}

// Peek returns the cached session for token, if any.
func (m *Manager) Peek(token string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	return s, ok
}

// Session returns the session for token, creating and connecting it first
// if needed.
func (m *Manager) Session(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("bot token required")
	}

	for {
		m.mu.Lock()
		if s, ok := m.sessions[token]; ok {
			m.mu.Unlock()
			return s, nil
		}
		if wait, ok := m.pending[token]; ok {
			// Another request is logging in with this token; wait for it.
			m.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		done := make(chan struct{})
		m.pending[token] = done
		listeners := append([]bot.EventListener(nil), m.listeners...)
		m.mu.Unlock()

		s, err := m.connect(ctx, token, listeners)

		m.mu.Lock()
		delete(m.pending, token)
		if err == nil {
			m.sessions[token] = s
		}
		m.mu.Unlock()
		close(done)
		return s, err
	}
}

func (m *Manager) connect(ctx context.Context, token string, listeners []bot.EventListener) (*Session, error) {
	opts := []bot.ConfigOpt{
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentGuildMembers,
				gateway.IntentMessageContent,
				gateway.IntentGuildMessageReactions,
			),
			gateway.WithPresenceOpts(
				gateway.WithOnlineStatus(dgo.OnlineStatusOnline),
			),
		),
	}
	if len(listeners) > 0 {
		opts = append(opts, bot.WithEventListeners(listeners...))
	}

	client, err := disgo.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.OpenGateway(openCtx); err != nil {
		return nil, fmt.Errorf("open gateway: %w", err)
	}

	s := &Session{
		token:     token,
		client:    client,
		limiter:   m.limiter,
		log:       m.log,
		createdAt: time.Now(),
	}
	m.log.Info("bot session connected", logx.String("token_tail", tokenTail(token)))
	return s, nil
}

// Logout disconnects and forgets the session for token, if present.
func (m *Manager) Logout(ctx context.Context, token string) {
	m.mu.Lock()
	s, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.client.Close(ctx)
	m.log.Info("bot session disconnected", logx.String("token_tail", tokenTail(token)))
}

// Close disconnects every cached session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = map[string]*Session{}
	m.mu.Unlock()
	for _, s := range sessions {
		s.client.Close(ctx)
	}
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func tokenTail(token string) string {
	if len(token) <= 6 {
		return "******"
	}
	return "..." + token[len(token)-6:]
}

// VerifyToken checks a bot token against the identity endpoint without
// opening a gateway connection.
func VerifyToken(ctx context.Context, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("bot token required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/users/@me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &u, nil
}
