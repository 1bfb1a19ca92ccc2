package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quietroom/stillengine/internal/api"
	"github.com/quietroom/stillengine/internal/config"
	"github.com/quietroom/stillengine/internal/events"
	"github.com/quietroom/stillengine/internal/library"
	"github.com/quietroom/stillengine/internal/mqtt"
	"github.com/quietroom/stillengine/internal/paths"
	"github.com/quietroom/stillengine/internal/player"
	"github.com/quietroom/stillengine/internal/script"
	"github.com/quietroom/stillengine/internal/storage/postgres"
	"github.com/quietroom/stillengine/internal/version"
)

// Well-known peripheral IDs. Peripherals announce themselves on the
// registration topic under these IDs; both are optional at startup.
const (
	audioPeripheralID  = "audio-main"
	canvasPeripheralID = "canvas-main"

	registrationTopic = "stillroom/register"
	heartbeatTopic    = "stillroom/heartbeat"
)

// drawingStore adapts the Postgres client to the player's drawing
// persistence contract.
type drawingStore struct {
	client *postgres.Client
}

func (s *drawingStore) Save(sessionTS time.Time, sessionID string, drawingIndex int, label string, image []byte) error {
	return s.client.SaveDrawing(postgres.DrawingRow{
		SessionTS:    sessionTS,
		SessionID:    sessionID,
		DrawingIndex: drawingIndex,
		Label:        label,
		Image:        image,
		SavedAt:      time.Now().UTC(),
	}, func(err error) {
		if err != nil {
			zlog.Error().Err(err).Int("drawing_index", drawingIndex).Msg("drawing write failed")
			return
		}
		events.Emit("info", "drawing.stored", "", map[string]interface{}{
			"session_id":    sessionID,
			"drawing_index": drawingIndex,
		})
	})
}

func main() {
	configPath := flag.String("config", "engine.yaml", "path to engine configuration")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *pretty {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.LoadEngineConfig(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Str("path", *configPath).Msg("failed to load engine config")
	}

	log := zlog.With().Str("engine", cfg.Engine.ID).Logger()
	log.Info().Str("version", version.Version).Str("name", cfg.Engine.Name).Msg("starting")

	api.InitAuth()
	api.InitTLS()
	api.InitMetrics()
	api.SetEngineName(cfg.Engine.ID)

	// Postgres is optional: the engine runs without persistence, events
	// stay in the in-memory ring buffer.
	pg, err := postgres.New(cfg.Engine.ID)
	if err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, running without persistence")
		api.SetPostgresStatus(false, true)
	} else {
		events.SetPostgresClient(pg)
		api.SetDrawingQuerier(pg)
		api.SetPostgresStatus(true, false)
		defer pg.Close()
	}

	cache := paths.NewCache(paths.NewFileSource(cfg.PathsDir()), cfg.Settings.Variant)

	catalog := library.New(cfg.ScriptsDir())
	if err := catalog.Watch(); err != nil {
		log.Warn().Err(err).Str("dir", cfg.ScriptsDir()).Msg("script watcher unavailable")
	} else {
		defer catalog.Close()
	}
	log.Info().Int("scripts", catalog.Len()).Str("dir", cfg.ScriptsDir()).Msg("script library loaded")

	// MQTT peripherals are optional too: with no broker the engine
	// still plays sessions, silently and without canvas input.
	specs := map[string]mqtt.PeripheralSpec{
		audioPeripheralID:  {Kind: "audio", Capabilities: []string{"play"}},
		canvasPeripheralID: {Kind: "canvas"},
	}
	registry := mqtt.NewPeripheralRegistry()
	monitor := mqtt.NewMonitor(specs, registry, 2.0)
	bridge := mqtt.NewCanvasBridge()

	client := mqtt.NewClient("stillengine-" + cfg.Engine.ID)
	audio := mqtt.NewAudio(client, "stillroom/"+audioPeripheralID+"/commands")
	listener := mqtt.NewListener(client, monitor, audio, bridge)

	client.OnConnectionLost(func(err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
		listener.HandleConnectionLost(err)
	})
	client.OnConnect(func() {
		// Re-establish the shared topics after an automatic reconnect.
		// Subscribe blocks, so it runs off the paho callback goroutine.
		go func() {
			if err := client.Subscribe(registrationTopic, listener.RegistrationHandler()); err != nil {
				log.Warn().Err(err).Msg("registration resubscribe failed")
			}
			if err := client.Subscribe(heartbeatTopic, listener.HeartbeatHandler()); err != nil {
				log.Warn().Err(err).Msg("heartbeat resubscribe failed")
			}
		}()
	})

	var sessionAudio player.AudioPlayer = player.NopAudio{}
	if client.StartWithRetry(registrationTopic, listener.RegistrationHandler()) {
		if err := client.Subscribe(heartbeatTopic, listener.HeartbeatHandler()); err != nil {
			log.Warn().Err(err).Msg("heartbeat subscription failed")
		}
		monitor.Start(5 * time.Second)
		defer monitor.Stop()
		audio.SetVolume(cfg.Volume())
		sessionAudio = audio
		api.SetMQTTStatus(true, false)
	} else {
		log.Warn().Msg("mqtt unavailable, running without peripherals")
		api.SetMQTTStatus(false, true)
	}

	sessionCfg := player.SessionConfig{
		Variant: cfg.Settings.Variant,
		Theme:   cfg.Settings.Theme,
	}
	var store player.DrawingStore
	if pg != nil {
		store = &drawingStore{client: pg}
	}

	manager := api.NewManager(catalog, func(s *script.Script) (api.Session, error) {
		p := player.New(s, sessionCfg, player.Deps{
			Audio: sessionAudio,
			Cache: cache,
			Store: store,
		})
		bridge.Bind(p)
		return p, nil
	})
	api.SetManager(manager)

	events.Emit("info", "system.startup", "engine started", map[string]interface{}{
		"engine":  cfg.Engine.ID,
		"version": version.Version,
	})
	api.SetEngineReady(true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.ListenAndServe(cfg.APIPort())
	})
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	err = g.Wait()

	events.Emit("info", "system.shutdown", "engine stopping", map[string]interface{}{
		"engine": cfg.Engine.ID,
	})
	events.CloseAllSubscribers()
	if client.IsConnected() {
		client.Disconnect()
	}

	if err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("engine exited with error")
	}
	log.Info().Msg("engine stopped")
}
