// Command backplane hosts the capability registry and the extension
// manager, and serves the control API.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/config"
	"github.com/toolink/backplane/control"
	"github.com/toolink/backplane/discovery"
	"github.com/toolink/backplane/eventbus"
	"github.com/toolink/backplane/extension"
	_ "github.com/toolink/backplane/extension/manifest"
	"github.com/toolink/backplane/global"
	"github.com/toolink/backplane/lock"
	"github.com/toolink/backplane/metrics"
	"github.com/toolink/backplane/statestore"
	"github.com/toolink/backplane/vulkan"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.ValidateAndPrepare(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg.Log)
	// surfaces opened by hosts embedding the backplane follow the configured platform preference
	vulkan.SetDefaults(vulkan.WithResolveOptions(cfg.Preference(vulkan.Platform)...))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("backplane stopped with error")
	}
	log.Info().Msg("backplane stopped")
}

func setupLogging(c config.Log) {
	level, _ := zerolog.ParseLevel(c.Level)
	zerolog.SetGlobalLevel(level)
	if c.Format == config.FormatConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var rdb redis.UniversalClient
	if cfg.NeedsRedis() {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	bus := newBus(cfg, rdb)
	global.SetBus(bus)
	defer bus.Close()

	manager := extension.NewManager(
		extension.WithBus(bus),
		extension.WithLocker(newLocker(cfg, rdb)),
		extension.WithStateStore(newStore(cfg, rdb)),
	)
	global.SetExtensionManager(manager)

	reg := global.GetRegistry()
	// fallback when no script runtime is available to the manifest provider
	extension.ProviderCapability.MustRegister(reg, extension.Static("builtin", 0))
	reg.Seal()
	for _, name := range reg.Capabilities() {
		for _, info := range reg.Lookup(name) {
			log.Debug().Str("capability", string(name)).Str("candidate", info.Name).Int("priority", info.Priority).Msg("candidate available")
		}
	}

	if err := startExtensions(ctx, cfg, manager, reg); err != nil {
		_ = manager.Close(context.Background())
		return err
	}

	errCh := make(chan error, 2)
	var shutdown []func(context.Context)

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", cfg.Metrics.Listen).Str("path", cfg.Metrics.Path).Msg("metrics endpoint listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		shutdown = append(shutdown, func(ctx context.Context) { _ = srv.Shutdown(ctx) })
	}

	if cfg.Control.Listen != "" {
		gs, err := serveControl(cfg, manager, reg, errCh)
		if err != nil {
			_ = manager.Close(context.Background())
			return err
		}
		shutdown = append(shutdown, func(context.Context) { gs.GracefulStop() })

		if cfg.Discovery.Enabled {
			withdraw, err := announce(ctx, cfg, rdb)
			if err != nil {
				log.Error().Err(err).Msg("failed to announce control endpoint")
			} else {
				shutdown = append(shutdown, func(ctx context.Context) {
					if err := withdraw(ctx); err != nil {
						log.Warn().Err(err).Msg("failed to withdraw control endpoint")
					}
				})
			}
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(shutdown) - 1; i >= 0; i-- {
		shutdown[i](shutdownCtx)
	}
	if err := manager.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("extension manager closed with errors")
	}
	return runErr
}

func newBus(cfg *config.Config, rdb redis.UniversalClient) eventbus.Bus {
	if cfg.EventBus.Type == config.TypeRedis {
		return eventbus.New(eventbus.WithRedisClient(rdb), eventbus.WithChannelPrefix(cfg.EventBus.ChannelPrefix))
	}
	return eventbus.New()
}

func newLocker(cfg *config.Config, rdb redis.UniversalClient) lock.Locker {
	if cfg.Locker.Type != config.TypeRedis {
		return lock.NewLocal()
	}
	return lock.NewRedis(rdb,
		lock.WithKeyPrefix(cfg.Locker.KeyPrefix),
		lock.WithTTL(time.Duration(cfg.Locker.TTL)),
		lock.WithRetryDelay(time.Duration(cfg.Locker.RetryDelay)),
		lock.WithMaxRetries(cfg.Locker.MaxRetries),
	)
}

func newStore(cfg *config.Config, rdb redis.UniversalClient) statestore.Store {
	if cfg.StateStore.Type != config.TypeRedis {
		return statestore.NewMemoryStore()
	}
	return statestore.NewRedisStore(rdb, statestore.WithKeyPrefix(cfg.StateStore.KeyPrefix))
}

func startExtensions(ctx context.Context, cfg *config.Config, manager *extension.Manager, reg *capability.Registry) error {
	pctx := extension.ProviderContext{SearchPaths: cfg.Extensions.SearchPaths}
	if err := manager.Open(ctx, reg, pctx, cfg.Preference(extension.ProviderName)...); err != nil {
		// extensions that registered are still usable
		log.Warn().Err(err).Msg("extension discovery incomplete")
		if manager.Len() == 0 && errors.Is(err, capability.ErrNotFound) {
			return err
		}
	}
	if err := applyOrder(manager, cfg.Extensions.Order); err != nil {
		return err
	}
	for _, name := range cfg.Extensions.Activate {
		if err := manager.Activate(ctx, name); err != nil {
			log.Error().Str("extension", name).Err(err).Msg("failed to activate extension at startup")
		}
	}
	if cfg.Extensions.Restore {
		if err := manager.RestoreActive(ctx); err != nil {
			log.Error().Err(err).Msg("failed to restore active extensions")
		}
	}
	return nil
}

// applyOrder sets the configured activation order. It is skipped when no
// extension was discovered.
func applyOrder(manager *extension.Manager, order []string) error {
	if len(order) == 0 {
		return nil
	}
	if manager.Len() == 0 {
		log.Warn().Strs("order", order).Msg("no extensions registered, configured order ignored")
		return nil
	}
	return manager.SetOrder(order)
}

func serveControl(cfg *config.Config, manager *extension.Manager, reg *capability.Registry, errCh chan<- error) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", cfg.Control.Listen)
	if err != nil {
		return nil, err
	}
	gs := control.NewGRPCServer(control.NewServer(manager, reg))
	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("control service listening")
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	return gs, nil
}

func announce(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient) (func(context.Context) error, error) {
	registry, err := discovery.NewRedisRegistry(ctx, rdb,
		discovery.WithKeyPrefix(cfg.Discovery.KeyPrefix),
		discovery.WithTTL(time.Duration(cfg.Discovery.TTL)),
	)
	if err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	ep := &discovery.Endpoint{
		Service:  discovery.ControlService,
		Address:  cfg.Control.Advertise,
		Metadata: map[string]string{"host": host},
	}
	withdraw, err := registry.Announce(ctx, ep)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		defer registry.Close()
		return withdraw(ctx)
	}, nil
}
