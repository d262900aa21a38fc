// Package api exposes the dashboard's JSON endpoints and the event
// websocket.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tmister923-blip/bot-login/internal/discord"
	"github.com/tmister923-blip/bot-login/internal/services/bulkdm"
	"github.com/tmister923-blip/bot-login/internal/services/commands"
	"github.com/tmister923-blip/bot-login/internal/services/music"
	"github.com/tmister923-blip/bot-login/internal/services/stats"
	"github.com/tmister923-blip/bot-login/internal/ws"
	"github.com/tmister923-blip/bot-login/pkg/logx"
)

// BotSession is the slice of a live bot session the handlers use.
// *discord.Session implements it; tests substitute fakes.
type BotSession interface {
	CurrentUser(ctx context.Context) (discord.User, error)
	Guilds(ctx context.Context) ([]discord.Guild, error)
	Guild(ctx context.Context, guildID string) (discord.Guild, error)
	MembersPage(ctx context.Context, guildID string, limit int, after string) ([]discord.Member, error)
	AllMembers(ctx context.Context, guildID string, pageLimit, maxPages int, pageDelay time.Duration) ([]discord.Member, error)
	CreateDM(ctx context.Context, userID string) (string, error)
	SendMessage(ctx context.Context, channelID, content string) (discord.Message, error)
	Messages(ctx context.Context, channelID string, limit int) ([]discord.Message, error)
	Channels(ctx context.Context, guildID string) ([]discord.Channel, error)
	UserByID(ctx context.Context, userID string) (discord.User, error)
	SearchMember(ctx context.Context, guildID, query string, pageLimit, maxPages int, pageDelay time.Duration) (*discord.Member, error)
	Stickers(ctx context.Context, guildID string) ([]discord.Sticker, error)
	CreateSticker(ctx context.Context, guildID, name, description, tags, filename string, file io.Reader) (discord.Sticker, error)
	DeleteSticker(ctx context.Context, guildID, stickerID string) error
	UpdateProfile(ctx context.Context, up discord.ProfileUpdate) (discord.User, error)
	SetPresence(ctx context.Context, p discord.PresenceUpdate) error
}

// SessionSource hands out sessions keyed by bot token.
type SessionSource interface {
	Session(ctx context.Context, token string) (BotSession, error)
	Logout(ctx context.Context, token string)
	Count() int
}

// VerifyFunc validates a raw token without opening a gateway session.
type VerifyFunc func(ctx context.Context, token string) (*discord.User, error)

// ManagerSource adapts *discord.Manager to SessionSource.
type ManagerSource struct {
	M *discord.Manager
}

func (a ManagerSource) Session(ctx context.Context, token string) (BotSession, error) {
	return a.M.Session(ctx, token)
}
func (a ManagerSource) Logout(ctx context.Context, token string) { a.M.Logout(ctx, token) }
func (a ManagerSource) Count() int                               { return a.M.Count() }

type Config struct {
	Addr           string
	AllowedOrigins []string

	// member pagination knobs shared with the resolver
	PageLimit int
	MaxPages  int
	PageDelay time.Duration
}

type Server struct {
	cfg      Config
	sessions SessionSource
	verify   VerifyFunc
	bulk     *bulkdm.Service
	cmds     *commands.Store
	tracker  *stats.Tracker
	music    *music.Service
	hub      *ws.Hub
	log      logx.Logger

	engine    *gin.Engine
	startedAt time.Time
}

func NewServer(
	cfg Config,
	sessions SessionSource,
	verify VerifyFunc,
	bulk *bulkdm.Service,
	cmds *commands.Store,
	tracker *stats.Tracker,
	musicSvc *music.Service,
	hub *ws.Hub,
	log logx.Logger,
) *Server {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 1000
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 100 * time.Millisecond
	}
	s := &Server{
		cfg:       cfg,
		sessions:  sessions,
		verify:    verify,
		bulk:      bulk,
		cmds:      cmds,
		tracker:   tracker,
		music:     musicSvc,
		hub:       hub,
		log:       log.With(logx.String("svc", "api")),
		startedAt: time.Now(),
	}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	cc := cors.DefaultConfig()
	if len(s.cfg.AllowedOrigins) == 0 || contains(s.cfg.AllowedOrigins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = s.cfg.AllowedOrigins
	}
	cc.AllowHeaders = []string{"Content-Type", "Authorization"}
	cc.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(cc))

	r.GET("/api/health", s.handleHealth)
	r.POST("/api/verify-token", s.handleVerifyToken)
	if s.hub != nil {
		r.GET("/ws", func(c *gin.Context) { s.hub.Upgrade(c.Writer, c.Request) })
	}

	auth := r.Group("/", s.requireToken)
	{
		auth.GET("/api/bot-info", s.handleBotInfo)
		auth.GET("/api/bot-guilds", s.handleBotGuilds)
		auth.POST("/api/extract-users", s.handleExtractUsers)
		auth.POST("/api/preview-recipients", s.handlePreviewRecipients)
		auth.POST("/api/send-dms", s.handleSendDMs)
		auth.POST("/api/search-user", s.handleSearchUser)
		auth.POST("/api/update-bot", s.handleUpdateBot)
		auth.POST("/api/upload-bot-avatar", s.handleUploadAvatar)
		auth.POST("/api/upload-bot-banner", s.handleUploadBanner)
		auth.POST("/api/get-stickers", s.handleGetStickers)
		auth.POST("/api/upload-sticker", s.handleUploadSticker)
		auth.POST("/api/delete-sticker", s.handleDeleteSticker)
		auth.POST("/api/get-server-stats", s.handleServerStats)
		auth.POST("/api/get-chat-history", s.handleChatHistory)
		auth.POST("/api/send-chat-message", s.handleSendChatMessage)
		auth.POST("/api/logout", s.handleLogout)

		auth.GET("/api/commands", s.handleListCommands)
		auth.POST("/api/create-command", s.handleCreateCommand)
		auth.POST("/api/update-command", s.handleUpdateCommand)
		auth.POST("/api/delete-command", s.handleDeleteCommand)

		auth.POST("/api/music/test-lavalink", s.handleMusicProbe)
		auth.POST("/api/music/search", s.handleMusicSearch)
		auth.POST("/api/music/play", s.handleMusicPlay)
		auth.POST("/api/music/pause", s.handleMusicPause)
		auth.POST("/api/music/stop", s.handleMusicStop)
		auth.GET("/api/music/queue/:guildId", s.handleMusicQueue)
	}
	return r
}

// Handler exposes the router for tests and for the app's HTTP server.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains with a short timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	err := <-errCh
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
