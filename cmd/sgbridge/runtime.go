package main

import (
	"errors"
	"fmt"
	"net/http"

	"supplygraph-a2a/internal/cache"
	"supplygraph-a2a/internal/config"
	"supplygraph-a2a/internal/observability/metrics"
	"supplygraph-a2a/internal/relay"
	"supplygraph-a2a/pkg/logger"
	"supplygraph-a2a/sdk/go/a2a"
	"supplygraph-a2a/sdk/go/bridge"
)

// runtime holds everything a command needs, built from config and flags.
type runtime struct {
	cfg     *config.Config
	client  *a2a.Client
	bridge  *bridge.Bridge
	metrics *metrics.Metrics
	cache   cache.Cache
}

// Replaced in tests.
var (
	httpClient *http.Client
	openRelay  = relay.Open
)

func newRuntime(opts *rootOptions) (*runtime, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	if opts.apiKey != "" {
		cfg.Gateway.APIKey = opts.apiKey
	}
	if opts.baseURL != "" {
		cfg.Gateway.BaseURL = opts.baseURL
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	m := metrics.Default()
	clientOpts := []a2a.Option{
		a2a.WithObserver(m),
		a2a.WithUserAgent(cfg.Gateway.UserAgent),
		a2a.WithHTTPClient(httpClient),
	}
	client, err := a2a.NewClient(cfg.Gateway.ClientConfig(), clientOpts...)
	if err != nil {
		return nil, err
	}

	c, err := cache.Open(cfg.Cache)
	if err != nil {
		return nil, err
	}
	b := bridge.New(client,
		bridge.WithManifestCache(cache.Instrumented(c, m.ObserveCacheLookup)),
		bridge.WithUnknownCodeHook(m.ObserveUnknownCode),
	)
	return &runtime{cfg: cfg, client: client, bridge: b, metrics: m, cache: c}, nil
}

func (r *runtime) Close() error {
	return errors.Join(r.cache.Close(), logger.Sync())
}
