// b2c-webapp is a web app which signs users in with an Azure AD B2C tenant,
// lets them edit their profile or reset their password and calls a web API
// with the access token redeemed at sign-in.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/b2cauth/b2cauth/api"
	"github.com/b2cauth/b2cauth/b2c"
	"github.com/b2cauth/b2cauth/b2c/callback"
	"github.com/b2cauth/b2cauth/tokencache"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	configFile := flag.String("config", "", "optional YAML config file with an AzureAdB2C section")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded into the environment")
	flag.Parse()

	if err := run(*configFile, *envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile, envFile string) error {
	const op = "run"
	cfg, err := loadConfig(configFile, envFile)
	if err != nil {
		return err
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "b2c-webapp",
		Level: cfg.logLevel(),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a, err := newApp(cfg, logger, reg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer a.close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// app holds the web app's components.
type app struct {
	logger   hclog.Logger
	provider *b2c.Provider
	o        *b2c.Orchestrator
	sessions *callback.SessionStore
	api      *api.Client
	redis    *redis.Client
	registry *prometheus.Registry
}

// newApp discovers the tenant's policies and wires the components. The token
// cache is Redis when cfg.RedisURL is set and in-memory otherwise.
func newApp(cfg *appConfig, logger hclog.Logger, reg *prometheus.Registry) (*app, error) {
	const op = "newApp"
	c, err := cfg.b2cConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a := &app{logger: logger, registry: reg}

	var cache b2c.TokenCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid redis url: %w", op, err)
		}
		a.redis = redis.NewClient(opts)
		rc, err := tokencache.NewRedis(a.redis)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := rc.Ping(context.Background()); err != nil {
			a.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		cache = rc
		logger.Info("using redis token cache", "addr", opts.Addr)
	} else {
		cache = tokencache.NewMemory()
	}

	if a.provider, err = b2c.NewProvider(c); err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	stateKey, sessionKey := cfg.keys(logger)
	codec, err := b2c.NewStateCodec(stateKey)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics, err := b2c.NewMetrics(reg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if a.o, err = b2c.NewOrchestrator(c, a.provider, cache, codec, b2c.WithMetrics(metrics)); err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if a.sessions, err = callback.NewSessionStore(sessionKey, nil, callback.WithSecureCookie(!cfg.InsecureCookies)); err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if c.ApiUrl != "" {
		if a.api, err = api.NewClient(c, cache, api.WithLogger(logger)); err != nil {
			a.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.provider != nil {
		a.provider.Done()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
