// Package app wires configuration, services, and transports together
// and owns the process lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tmister923-blip/bot-login/internal/api"
	"github.com/tmister923-blip/bot-login/internal/config"
	"github.com/tmister923-blip/bot-login/internal/discord"
	"github.com/tmister923-blip/bot-login/internal/eventbus"
	"github.com/tmister923-blip/bot-login/internal/observability/pprof"
	"github.com/tmister923-blip/bot-login/internal/runtime/supervisor"
	"github.com/tmister923-blip/bot-login/internal/services/bulkdm"
	"github.com/tmister923-blip/bot-login/internal/services/commands"
	"github.com/tmister923-blip/bot-login/internal/services/gateway"
	"github.com/tmister923-blip/bot-login/internal/services/music"
	"github.com/tmister923-blip/bot-login/internal/services/stats"
	"github.com/tmister923-blip/bot-login/internal/ws"
	"github.com/tmister923-blip/bot-login/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	sessions *discord.Manager
	bulk     *bulkdm.Service
	cmds     *commands.Store
	tracker  *stats.Tracker
	music    *music.Service
	hub      *ws.Hub
	api      *api.Server
	pprof    *pprof.Service

	cron *cron.Cron
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logxConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("svc", "config")))

	bus := eventbus.New()
	// Mirror server logs to dashboard clients once the hub is up.
	logs.SetStream(func(level, msg string) {
		eventbus.PublishLog(bus, level, msg)
	})

	tracker := stats.NewTracker(log)
	cmds := commands.NewStore(log)

	sessions := discord.NewManager(cfg.Discord.RestRatePerSec, log)
	sessions.AddListeners(gateway.Listeners(cmds, tracker, log)...)

	bulkCfg, err := bulkConfig(cfg)
	if err != nil {
		return nil, err
	}
	bulk := bulkdm.New(bulkCfg, bus, log)
	musicSvc := music.New(musicConfig(cfg), log)
	hub := ws.NewHub(bus, log, cfg.Server.AllowedOrigins)

	apiSrv := api.NewServer(
		api.Config{
			Addr:           cfg.Server.Addr,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			PageLimit:      bulkCfg.PageLimit,
			MaxPages:       bulkCfg.MaxPages,
			PageDelay:      bulkCfg.PageDelay,
		},
		api.ManagerSource{M: sessions},
		discord.VerifyToken,
		bulk, cmds, tracker, musicSvc, hub, log,
	)

	return &App{
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		bus:      bus,
		sessions: sessions,
		bulk:     bulk,
		cmds:     cmds,
		tracker:  tracker,
		music:    musicSvc,
		hub:      hub,
		api:      apiSrv,
		pprof:    pprof.New(pprofConfig(cfg), log),
	}, nil
}

// Start launches every long-running component under the supervisor.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("svc", "supervisor"))),
	)

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.apply", a.applyLoop)
	a.sup.GoRestart("ws.hub", a.hub.Run)
	a.sup.Go("http.serve", a.api.Run)

	cfg := a.cfgm.Get()

	// Log in eagerly when a token is configured; a failure here is
	// recoverable, clients can still log in per-request.
	if tok := cfg.BotToken(); tok != "" {
		a.sup.Go0("discord.login", func(ctx context.Context) {
			if _, err := a.sessions.Session(ctx, tok); err != nil {
				a.log.Warn("configured bot token login failed", logx.Err(err))
			}
		})
	}

	a.pprof.Reconfigure(a.sup.Context(), pprofConfig(cfg))

	a.cron = cron.New()
	if _, err := a.cron.AddFunc("@every 1m", func() { a.tracker.Rollup(time.Now()) }); err != nil {
		return fmt.Errorf("schedule stats rollup: %w", err)
	}
	if _, err := a.cron.AddFunc("@hourly", func() {
		now := time.Now()
		a.bulk.Prune(now)
		a.cmds.PruneCooldowns(now)
	}); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	a.cron.Start()

	a.log.Info("dashboard started", logx.String("addr", cfg.Server.Addr))
	return nil
}

// applyLoop propagates hot-reloaded config to running services.
func (a *App) applyLoop(ctx context.Context) {
	ch := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logs.Apply(logxConfig(cfg))
			if bulkCfg, err := bulkConfig(cfg); err == nil {
				a.bulk.Apply(bulkCfg)
			} else {
				a.log.Warn("bulk dm config ignored", logx.Err(err))
			}
			a.music.Apply(musicConfig(cfg))
			a.pprof.Reconfigure(ctx, pprofConfig(cfg))
			a.log.Info("configuration reloaded")
		}
	}
}

// Stop tears the app down in reverse dependency order.
func (a *App) Stop(ctx context.Context) error {
	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}
	a.bulk.Stop()
	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(ctx)
	}
	a.sessions.Close(ctx)
	a.pprof.Stop(ctx)
	_ = a.logs.Close()
	return nil
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Stream: logx.StreamConfig{
			Enabled:    cfg.Logging.Stream.Enabled,
			MinLevel:   cfg.Logging.Stream.MinLevel,
			RatePerSec: cfg.Logging.Stream.RatePerSec,
		},
	}
}

func bulkConfig(cfg *config.Config) (bulkdm.Config, error) {
	pageDelay, err := config.ParseDurationOrDefault("bulk_dm.page_delay", cfg.BulkDM.PageDelay, 100*time.Millisecond)
	if err != nil {
		return bulkdm.Config{}, err
	}
	return bulkdm.Config{
		BatchSize: cfg.BulkDM.BatchSize,
		PageLimit: cfg.BulkDM.PageLimit,
		MaxPages:  cfg.BulkDM.MaxPages,
		PageDelay: pageDelay,
	}, nil
}

func musicConfig(cfg *config.Config) music.Config {
	if cfg.Music == nil {
		return music.Config{}
	}
	return music.Config{
		Enabled:  cfg.Music.Enabled,
		Host:     cfg.Music.Host,
		Port:     cfg.Music.Port,
		Password: cfg.Music.Password,
		Secure:   cfg.Music.Secure,
	}
}

func pprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled: cfg.Pprof.Enabled,
		Addr:    cfg.Pprof.Addr,
		Prefix:  cfg.Pprof.Prefix,
		Token:   cfg.Pprof.Token,
	}
}
