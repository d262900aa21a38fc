// Package music talks to a Lavalink v4 node and keeps per-guild play
// queues. Everything here is best-effort: the dashboard works without
// a node, the endpoints just report it as unavailable.
package music

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tmister923-blip/bot-login/pkg/logx"
)

type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	Secure   bool
}

// Track is the subset of Lavalink track info the dashboard shows.
type Track struct {
	Encoded  string `json:"encoded"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	URI      string `json:"uri"`
	Length   int64  `json:"length"` // milliseconds
	Artwork  string `json:"artworkUrl,omitempty"`
	IsStream bool   `json:"isStream"`
}

// QueueState is one guild's player snapshot.
type QueueState struct {
	GuildID string  `json:"guildId"`
	Playing *Track  `json:"playing,omitempty"`
	Paused  bool    `json:"paused"`
	Queue   []Track `json:"queue"`
}

type guildQueue struct {
	playing *Track
	paused  bool
	queue   []Track
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	queues map[string]*guildQueue

	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg,
		queues: make(map[string]*guildQueue),
		http:   &http.Client{Timeout: 10 * time.Second},
		log:    log.With(logx.String("svc", "music")),
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.cfg.Host != ""
}

func (s *Service) baseURL() (string, string) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	scheme, wsScheme := "http", "ws"
	if cfg.Secure {
		scheme, wsScheme = "https", "wss"
	}
	host := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return fmt.Sprintf("%s://%s", scheme, host), fmt.Sprintf("%s://%s", wsScheme, host)
}

func (s *Service) password() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Password
}

// loadResult mirrors the Lavalink v4 /loadtracks response.
type loadResult struct {
	LoadType string          `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type apiTrack struct {
	Encoded string `json:"encoded"`
	Info    struct {
		Title      string `json:"title"`
		Author     string `json:"author"`
		URI        string `json:"uri"`
		Length     int64  `json:"length"`
		ArtworkURL string `json:"artworkUrl"`
		IsStream   bool   `json:"isStream"`
	} `json:"info"`
}

func fromAPI(t apiTrack) Track {
	return Track{
		Encoded:  t.Encoded,
		Title:    t.Info.Title,
		Author:   t.Info.Author,
		URI:      t.Info.URI,
		Length:   t.Info.Length,
		Artwork:  t.Info.ArtworkURL,
		IsStream: t.Info.IsStream,
	}
}

// Search asks the node to resolve a query. Plain text becomes a
// YouTube search; URLs pass through untouched.
func (s *Service) Search(ctx context.Context, query string) ([]Track, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("music node not configured")
	}
	identifier := query
	if _, err := url.ParseRequestURI(query); err != nil {
		identifier = "ytsearch:" + query
	}

	base, _ := s.baseURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		base+"/v4/loadtracks?identifier="+url.QueryEscape(identifier), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", s.password())

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("music node request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("music node returned %s", resp.Status)
	}

	var res loadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode loadtracks response: %w", err)
	}

	switch res.LoadType {
	case "track":
		var t apiTrack
		if err := json.Unmarshal(res.Data, &t); err != nil {
			return nil, err
		}
		return []Track{fromAPI(t)}, nil
	case "search", "playlist":
		var ts []apiTrack
		if res.LoadType == "playlist" {
			var pl struct {
				Tracks []apiTrack `json:"tracks"`
			}
			if err := json.Unmarshal(res.Data, &pl); err != nil {
				return nil, err
			}
			ts = pl.Tracks
		} else if err := json.Unmarshal(res.Data, &ts); err != nil {
			return nil, err
		}
		out := make([]Track, 0, len(ts))
		for _, t := range ts {
			out = append(out, fromAPI(t))
		}
		return out, nil
	case "empty":
		return nil, nil
	case "error":
		return nil, fmt.Errorf("music node failed to load %q", query)
	}
	return nil, fmt.Errorf("unexpected load type %q", res.LoadType)
}

// Probe checks node reachability by opening and closing its websocket.
func (s *Service) Probe(ctx context.Context) error {
	if !s.Enabled() {
		return fmt.Errorf("music node not configured")
	}
	_, wsBase := s.baseURL()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	hdr := http.Header{}
	hdr.Set("Authorization", s.password())
	hdr.Set("User-Id", "0")
	hdr.Set("Client-Name", "bot-login/1.0")
	conn, _, err := dialer.DialContext(ctx, wsBase+"/v4/websocket", hdr)
	if err != nil {
		return fmt.Errorf("music node unreachable: %w", err)
	}
	_ = conn.Close()
	return nil
}

// Play queues a track. The first track of an idle guild starts
// playing immediately.
func (s *Service) Play(guildID string, t Track) QueueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[guildID]
	if q == nil {
		q = &guildQueue{}
		s.queues[guildID] = q
	}
	if q.playing == nil {
		q.playing = &t
		q.paused = false
	} else {
		q.queue = append(q.queue, t)
	}
	return q.snapshot(guildID)
}

// Pause toggles the paused flag. No-op when nothing plays.
func (s *Service) Pause(guildID string) (QueueState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[guildID]
	if q == nil || q.playing == nil {
		return QueueState{GuildID: guildID}, false
	}
	q.paused = !q.paused
	return q.snapshot(guildID), true
}

// Skip advances to the next queued track, if any.
func (s *Service) Skip(guildID string) (QueueState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[guildID]
	if q == nil || q.playing == nil {
		return QueueState{GuildID: guildID}, false
	}
	if len(q.queue) > 0 {
		next := q.queue[0]
		q.queue = q.queue[1:]
		q.playing = &next
	} else {
		q.playing = nil
	}
	q.paused = false
	return q.snapshot(guildID), true
}

// Stop clears the queue and the playing track.
func (s *Service) Stop(guildID string) QueueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, guildID)
	return QueueState{GuildID: guildID, Queue: []Track{}}
}

// Queue returns the guild's current snapshot.
func (s *Service) Queue(guildID string) QueueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[guildID]
	if q == nil {
		return QueueState{GuildID: guildID, Queue: []Track{}}
	}
	return q.snapshot(guildID)
}

func (q *guildQueue) snapshot(guildID string) QueueState {
	st := QueueState{GuildID: guildID, Paused: q.paused, Queue: make([]Track, len(q.queue))}
	copy(st.Queue, q.queue)
	if q.playing != nil {
		p := *q.playing
		st.Playing = &p
	}
	return st
}
