// Package main is the entry point for the Stellar external media player agent.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-emp/internal/adapters/mpdplayer"
	"github.com/edumarques81/stellar-emp/internal/adapters/remote"
	"github.com/edumarques81/stellar-emp/internal/config"
	"github.com/edumarques81/stellar-emp/internal/domain/contextmgr"
	"github.com/edumarques81/stellar-emp/internal/domain/focus"
	"github.com/edumarques81/stellar-emp/internal/emp"
	"github.com/edumarques81/stellar-emp/internal/infra/metrics"
	"github.com/edumarques81/stellar-emp/internal/infra/mpd"
	"github.com/edumarques81/stellar-emp/internal/infra/store"
	"github.com/edumarques81/stellar-emp/internal/transport/httpapi"
	"github.com/edumarques81/stellar-emp/internal/transport/socketio"
	"github.com/edumarques81/stellar-emp/internal/version"
)

const mpdRetryInterval = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to the TOML configuration file")
	envFile := flag.String("env", ".env", "Path to a .env file (optional)")
	port := flag.String("port", "3002", "HTTP server port")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Str("version", version.GetInfo().String()).Msg("Starting Stellar EMP agent")

	if err := config.LoadEnv(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", *envFile).Msg("Failed to load env file")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := store.NewDB(cfg.DBPath)
	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer db.Close()
	if stats, err := db.GetStats(); err == nil {
		log.Info().Int("authorizedPlayers", stats.AuthorizedPlayers).Str("schema", stats.SchemaVersion).Msg("Database ready")
	}
	if cfg.AgentID == "" {
		if cfg.AgentID, err = db.AgentIdentity(); err != nil {
			log.Fatal().Err(err).Msg("Failed to resolve agent identity")
		}
	}

	focusManager := focus.NewLocalManager(focus.ChannelConfig{Name: cfg.Channel})
	defer focusManager.Close()

	contexts := contextmgr.NewManager(cfg.BrokerTimeout())
	met := metrics.New()
	events := &eventRelay{}

	core, err := emp.New(emp.Config{
		AgentID:          cfg.AgentID,
		SPIVersion:       cfg.SPIVersion,
		Channel:          cfg.Channel,
		FocusWaitTimeout: cfg.FocusWaitTimeout(),
		DefaultPlayers:   cfg.DefaultPlayers(),
	}, emp.Options{
		FocusManager: focusManager,
		Events:       events,
		Context:      contexts,
		Store:        db,
		Metrics:      met,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}
	contexts.SetStateProvider(emp.SessionStateKey, core.StateProvider())
	contexts.SetStateProvider(emp.PlaybackStateKey, core.StateProvider())

	socketServer, err := socketio.NewServer(core, contexts, socketio.Options{
		ContextTimeout: 2 * cfg.BrokerTimeout(),
		PushDebounce:   cfg.PushDebounce(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	events.Add(socketServer)
	contexts.OnChange(socketServer.ContextChanged)

	var mpdClients []*mpd.Client
	for _, m := range cfg.MPD {
		client := mpd.NewClient(m.Host, m.Port, m.Password)
		if err := client.Connect(); err != nil {
			log.Warn().Err(err).Str("addr", client.Addr()).Msg("MPD not reachable yet")
		}
		mpdClients = append(mpdClients, client)

		player := mpdplayer.New(m.PlayerID, client, core, mpdplayer.WithSPIVersion(cfg.SPIVersion))
		core.AddAdapterHandler(player)
		player.Discover()
		go watchMPD(ctx, client, player)
	}
	defer func() {
		for _, c := range mpdClients {
			c.Close()
		}
	}()

	for _, r := range cfg.Remote {
		player := remote.New(remote.Config{
			PlayerID:   r.PlayerID,
			URL:        r.URL,
			SkillToken: r.SkillToken,
			Timeout:    cfg.BrokerTimeout(),
		}, core)
		core.AddAdapterHandler(player)
		go player.Run(ctx)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Agent:      core,
		Context:    contexts,
		Health:     mpdHealth(mpdClients),
		Authorized: core.AuthorizedPlayers,
		Metrics:    met,
		SocketIO:   socketServer,
	})

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", ":"+*port).Int("mpd", len(cfg.MPD)).Int("remote", len(cfg.Remote)).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	socketServer.Close()
	core.Shutdown()
	log.Info().Msg("Server stopped")
}

// watchMPD feeds MPD subsystem changes to the player, re-arming the watcher
// whenever the connection drops.
func watchMPD(ctx context.Context, client *mpd.Client, player *mpdplayer.Adapter) {
	for {
		changes, err := client.Watch(ctx, "player", "options")
		if err != nil {
			log.Warn().Err(err).Str("addr", client.Addr()).Dur("retryIn", mpdRetryInterval).Msg("MPD watcher unavailable")
		} else {
			player.Run(ctx, changes)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(mpdRetryInterval):
		}
	}
}

// mpdHealth reports the first unreachable MPD server.
func mpdHealth(clients []*mpd.Client) func() error {
	return func() error {
		for _, c := range clients {
			if err := c.Ping(); err != nil {
				return err
			}
		}
		return nil
	}
}
