package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/pubsub"
	"github.com/vovakirdan/wirechat-dm/internal/render"
	"github.com/vovakirdan/wirechat-dm/internal/service/accounts"
	"github.com/vovakirdan/wirechat-dm/internal/service/chats"
	"github.com/vovakirdan/wirechat-dm/internal/service/friends"
	"github.com/vovakirdan/wirechat-dm/internal/store"
	"github.com/vovakirdan/wirechat-dm/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-dm/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	cfg    config.Config
	server *stdhttp.Server
	store  store.Store
	layer  pubsub.Layer
	redis  *pubsub.Redis
	client *redis.Client
	cancel context.CancelFunc
	log    *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a := &App{cfg: cfg, store: st, log: logger}

	switch cfg.PubSub.Driver {
	case config.PubSubRedis:
		a.client = redis.NewClient(&redis.Options{Addr: cfg.PubSub.RedisAddr})
		a.redis = pubsub.NewRedis(a.client, cfg.PubSub.RedisPrefix, logger)
		a.layer = a.redis
		logger.Info().Str("addr", cfg.PubSub.RedisAddr).Msg("using redis pubsub")
	default:
		a.layer = pubsub.NewMemory(logger)
	}

	renderer, err := render.New(cfg.Chat.PreviewLength)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init renderer: %w", err)
	}

	c := core.New(st, a.layer, renderer, logger, core.Options{
		OpTimeout:  cfg.WS.OpTimeout,
		SendBuffer: cfg.WS.SendBuffer,
	})

	// The revocation cache cleanup stops when the app shuts down.
	cacheCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	authService := auth.NewService(cacheCtx, st, jwtConfig(cfg), c, logger)

	a.server = transporthttp.NewServer(transporthttp.Services{
		Core:     c,
		Auth:     authService,
		Friends:  friends.New(st, c, logger),
		Accounts: accounts.New(st, c, logger),
		Chats:    chats.New(st, c, cfg.Chat.HistoryLimit),
		Store:    st,
	}, cfg, logger)

	return a, nil
}

func jwtConfig(cfg config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)
	// Websocket requests inherit gctx so open sessions end on shutdown.
	a.server.BaseContext = func(net.Listener) context.Context { return gctx }

	if a.redis != nil {
		g.Go(func() error {
			return a.redis.Run(gctx)
		})
	}

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.layer != nil {
		if err := a.layer.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close pubsub")
		}
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

// AddUser creates an account directly in the configured database.
func AddUser(ctx context.Context, cfg config.Config, logger *zerolog.Logger, username, password string) (*store.User, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	return auth.NewService(ctx, st, jwtConfig(cfg), nil, logger).CreateUser(ctx, username, password)
}
