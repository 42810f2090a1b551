package battlebot

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"musicbattle/battle"
	"musicbattle/dedupe"
	"musicbattle/journal"
	"musicbattle/observability"
	"musicbattle/observability/logging"
	telemetry "musicbattle/observability/otel"
	"musicbattle/settlement"
	"musicbattle/tracks"
	"musicbattle/transport"
	"musicbattle/transport/httpsink"
	"musicbattle/transport/wsrelay"
	"musicbattle/wallet"
)

// Version is stamped at build time.
var Version = "dev"

// Main initialises and runs the battle bot daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "battlebot.yaml", "path to battlebot configuration (yaml or toml)")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("BATTLEBOT_ENV"))
	logOpts := []logging.Option{logging.WithLevel(logging.ParseLevel(cfg.Log.Level))}
	if cfg.Log.File != "" {
		logOpts = append(logOpts, logging.WithFile(logging.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}))
	}
	logger, logCloser := logging.Setup("battlebot", env, logOpts...)
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryConfig(cfg.Telemetry, env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := Build(stopCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("shutdown cleanup failed", slog.Any("error", err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           app.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("battlebot listening", slog.String("addr", cfg.ListenAddress), slog.String("version", Version))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// telemetryConfig layers the standard OTLP environment variables over the
// file configuration.
func telemetryConfig(cfg TelemetryConfig, env string) telemetry.Config {
	out := telemetry.Config{
		ServiceName: "battlebot",
		Version:     Version,
		Environment: env,
		Endpoint:    cfg.Endpoint,
		Insecure:    cfg.Insecure,
		Headers:     cfg.Headers,
		Metrics:     cfg.Metrics,
		Traces:      cfg.Traces,
		SampleRatio: cfg.SampleRatio,
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
		out.Endpoint = endpoint
	}
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			out.Insecure = parsed
		}
	}
	return out
}

// App is a fully wired bot. Close releases its stores.
type App struct {
	Dispatcher *Dispatcher
	Controller *battle.Controller
	Wallets    *wallet.Registry
	Journal    *journal.Journal
	Server     *Server

	closers []func() error
}

// Close releases every store opened by Build, newest first.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Build wires every component described by cfg. On error, anything opened
// so far is closed.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.BattleBot()
	app := &App{}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	persister, err := openWalletPersister(cfg.Wallets, app)
	if err != nil {
		return nil, err
	}
	registry := wallet.NewRegistry(persister,
		wallet.WithLogger(logger.With(slog.String("component", "wallet"))),
		wallet.WithFlushObserver(metrics))
	if err := registry.Load(ctx); err != nil {
		return nil, err
	}
	app.Wallets = registry

	provider, err := buildProvider(cfg.Tracks)
	if err != nil {
		return nil, err
	}
	client, err := settlement.NewClient(settlement.Config{
		BaseURL:   cfg.Settlement.BaseURL,
		AuthToken: cfg.Settlement.AuthToken,
		Timeout:   cfg.Settlement.Timeout.Duration,
	}, settlement.WithObserver(metrics))
	if err != nil {
		return nil, err
	}
	genres, err := cfg.genreBook()
	if err != nil {
		return nil, err
	}
	creators, err := cfg.creatorPool()
	if err != nil {
		return nil, err
	}
	store := battle.NewStore()
	controller, err := battle.NewController(battle.ControllerConfig{
		Genres:   genres,
		Creators: creators,
		Provider: provider,
		Wallets:  registry,
		Backend:  client,
		Store:    store,
	}, battle.WithLogger(logger.With(slog.String("component", "battle"))), battle.WithObserver(metrics))
	if err != nil {
		return nil, err
	}
	app.Controller = controller
	votes, err := battle.NewCoordinator(registry, client, store,
		battle.WithCoordinatorLogger(logger.With(slog.String("component", "vote"))),
		battle.WithVoteObserver(metrics))
	if err != nil {
		return nil, err
	}

	guard, err := openGuard(cfg.Dedupe, logger, app)
	if err != nil {
		return nil, err
	}

	var recorder Recorder
	if cfg.Journal.Driver != "" {
		j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, j.Close)
		app.Journal = j
		recorder = j
	}

	dispatcher, err := NewDispatcher(DispatcherConfig{
		Controller: controller,
		Votes:      votes,
		Wallets:    registry,
		Guard:      guard,
		Journal:    recorder,
		RateLimit:  cfg.RateLimit,
	}, WithDispatcherLogger(logger.With(slog.String("component", "dispatcher"))), WithMetrics(metrics))
	if err != nil {
		return nil, err
	}
	app.Dispatcher = dispatcher

	var sink transport.Sink
	if cfg.Callback.URL != "" {
		hs, err := httpsink.New(httpsink.Config{
			URL:       cfg.Callback.URL,
			AuthToken: cfg.Callback.AuthToken,
			Timeout:   cfg.Callback.Timeout.Duration,
		})
		if err != nil {
			return nil, err
		}
		sink = hs
	}
	relayOpts := []wsrelay.Option{
		wsrelay.WithLogger(logger.With(slog.String("component", "relay"))),
		wsrelay.WithConcurrency(cfg.Relay.Concurrency),
	}
	if len(cfg.Relay.OriginPatterns) > 0 {
		relayOpts = append(relayOpts, wsrelay.WithOriginPatterns(cfg.Relay.OriginPatterns...))
	}
	app.Server = NewServer(ServerConfig{
		Handler: dispatcher,
		Sink:    sink,
		Relay:   wsrelay.New(dispatcher, relayOpts...),
		Auth:    NewAuthenticator(cfg.Auth, logger),
		Logger:  logger,
	})
	logger.Info("battlebot wired",
		slog.Int("genres", len(genres.All())),
		slog.Int("creators", creators.Size()),
		slog.Int("wallets", len(registry.ListWallets())),
		slog.String("tracks_provider", cfg.Tracks.Provider),
		slog.String("dedupe", cfg.Dedupe.Driver),
		slog.Bool("journal", recorder != nil))
	return app, nil
}

func openWalletPersister(cfg WalletsConfig, app *App) (wallet.Persister, error) {
	switch cfg.Driver {
	case "bolt":
		p, err := wallet.NewBoltPersister(cfg.Path, nil)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, p.Close)
		return p, nil
	default:
		return wallet.NewFilePersister(cfg.Path)
	}
}

func buildProvider(cfg TracksConfig) (tracks.Provider, error) {
	if cfg.Provider == "spotify" {
		return tracks.NewSpotifyProvider(tracks.SpotifyConfig{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			BaseURL:      cfg.Spotify.BaseURL,
			TokenURL:     cfg.Spotify.TokenURL,
			Limit:        cfg.Spotify.Limit,
			Timeout:      cfg.Spotify.Timeout.Duration,
		})
	}
	catalog := cfg.Catalog
	if len(catalog) == 0 {
		catalog = tracks.DefaultCatalog()
	}
	return tracks.NewCatalogProvider(catalog), nil
}

func openGuard(cfg DedupeConfig, logger *slog.Logger, app *App) (*dedupe.Guard, error) {
	var store dedupe.Store
	switch cfg.Driver {
	case "leveldb":
		db, err := dedupe.OpenLevelDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		store = db
	default:
		store = dedupe.NewMemoryStore()
	}
	guard := dedupe.NewGuard(store, cfg.Window.Duration, dedupe.WithLogger(logger.With(slog.String("component", "dedupe"))))
	app.closers = append(app.closers, guard.Close)
	return guard, nil
}
