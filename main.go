// Command chat-tender runs the multi-account Twitch chat manager.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres (account registry) and runs idempotent migrations.
//   - Opens one chat connection per configured (account, channel) pair and
//     starts the reconnection supervisor.
//   - Starts text-to-speech sessions for channels with read_chat enabled and
//     the bot/hate-follow moderation monitor for channels that opted in.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-tender/accounts"
	"github.com/onnwee/chat-tender/admin"
	"github.com/onnwee/chat-tender/chat"
	"github.com/onnwee/chat-tender/config"
	"github.com/onnwee/chat-tender/emotes"
	"github.com/onnwee/chat-tender/server"
	"github.com/onnwee/chat-tender/speech"
	"github.com/onnwee/chat-tender/telemetry"
	"github.com/onnwee/chat-tender/tts"
	"github.com/onnwee/chat-tender/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("chat-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := accounts.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := accounts.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}
	store := &accounts.PostgresStore{DB: database}

	gateway := &twitchapi.TokenGateway{
		Store:        store,
		BrokerURL:    cfg.TokenBrokerURL,
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
	}
	helix := &twitchapi.Client{ClientID: cfg.TwitchClientID}

	manager := chat.NewManager(chat.NewIRCTransport)
	manager.Tokens = gateway
	manager.Presence = helix
	defer manager.Shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channels, err := config.LoadChannels(cfg.ChannelsFile)
	if err != nil {
		slog.Error("channel config load failed", slog.String("path", cfg.ChannelsFile), slog.Any("err", err))
		os.Exit(1)
	}
	if len(channels) == 0 {
		slog.Warn("no channels configured", slog.String("path", cfg.ChannelsFile))
	}

	catalog := &emotes.Catalog{}
	outputDevices := speech.OutputDevices(ctx)
	monitor := admin.NewBotMonitor(manager, &twitchapi.BotListClient{}, helix, gateway)
	monitor.Interval = cfg.MonitorInterval
	monitor.BanPace = cfg.BanPace

	var sessions []*tts.Session
	for _, ch := range channels {
		channelCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		acct, err := store.Get(channelCtx, ch.Account)
		cancel()
		if err != nil || acct == nil {
			slog.Warn("skipping channel, account not registered",
				slog.String("account", ch.Account), slog.String("channel", ch.Name), slog.Any("err", err))
			continue
		}

		// The spam filter runs on every configured channel's connection.
		manager.SubscribeAdmin(acct, ch.Name, admin.FamousBotFilter())

		if ch.ReadChat {
			session, err := tts.NewSession(manager,
				speech.NewCommandRenderer(), speech.NewCommandPlayer(),
				tts.NewPipeline(tts.NewEmoteDedupFilter(catalog), ch.TTSMarker),
				tts.SessionConfig{
					Account:     acct,
					Channel:     ch.Name,
					Marker:      ch.TTSMarker,
					Voice:       ch.Voice,
					Volume:      ch.Volume,
					DeviceIndex: speech.ResolveDeviceIndex(ch.OutputDevice, outputDevices),
				})
			if err != nil {
				slog.Error("tts session failed", slog.String("channel", ch.Name), slog.Any("err", err))
			} else {
				sessions = append(sessions, session)
			}
		}
		if ch.BanBots || ch.BanHateFollowers {
			monitor.Add(admin.ChannelPolicy{
				Account:          ch.Account,
				Channel:          ch.Name,
				BanBots:          ch.BanBots,
				BanHateFollowers: ch.BanHateFollowers,
			})
		}
		slog.Info("channel configured",
			slog.String("account", ch.Account), slog.String("channel", ch.Name),
			slog.Bool("read_chat", ch.ReadChat), slog.Bool("ban_bots", ch.BanBots),
			slog.Bool("ban_hate_followers", ch.BanHateFollowers))
	}
	defer func() {
		for _, s := range sessions {
			s.Close()
		}
	}()

	supervisor := &chat.Supervisor{Manager: manager, Interval: cfg.SupervisorInterval}
	go supervisor.Run(ctx)
	go monitor.Run(ctx)

	ops := server.New(cfg.HTTPAddr, manager)
	go func() {
		if err := ops.Start(); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ops.Shutdown(sctx); err != nil {
			slog.Error("http server shutdown failed", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
