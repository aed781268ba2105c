package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/tether"
	"github.com/arloliu/tether/adapter/cql"
	"github.com/arloliu/tether/contrib/logging/zl"
	"github.com/arloliu/tether/contrib/metrics/prom"
	"github.com/arloliu/tether/contrib/metrics/vm"
	"github.com/arloliu/tether/topology"
	"github.com/arloliu/tether/types"
)

// env holds everything a command needs: the registry and the resources that
// back its metrics and drain integrations.
type env struct {
	cfg      *Config
	logger   *zl.Logger
	registry *tether.Registry

	closers []func(ctx context.Context)
}

// newEnv builds the registry described by cfg.
func newEnv(ctx context.Context, cfg *Config, logger *zl.Logger) (*env, error) {
	e := &env{cfg: cfg, logger: logger}
	opts := append(cfg.RegistryOptions(), tether.WithLogger(logger))

	if cfg.Metrics.Listen != "" {
		collector, err := e.serveMetrics()
		if err != nil {
			e.close(ctx)
			return nil, err
		}
		opts = append(opts, tether.WithMetrics(collector))
	}

	if cfg.Drain.NATSURL != "" {
		watcher, err := e.connectDrain(ctx)
		if err != nil {
			e.close(ctx)
			return nil, err
		}
		opts = append(opts, tether.WithDrainWatcher(watcher))
	}

	registry, err := tether.NewRegistry(cql.NewSessionFactory(), opts...)
	if err != nil {
		e.close(ctx)
		return nil, err
	}
	e.registry = registry

	// Registry shutdown runs before the watcher and server closers.
	e.closers = append([]func(context.Context){func(ctx context.Context) {
		if err := registry.Shutdown(ctx); err != nil {
			logger.Warn("registry shutdown incomplete", "error", err)
		}
	}}, e.closers...)

	return e, nil
}

func (e *env) serveMetrics() (types.MetricsCollector, error) {
	var (
		collector types.MetricsCollector
		handler   http.Handler
	)

	switch e.cfg.Metrics.Backend {
	case "prom":
		reg := prometheus.NewRegistry()
		c, err := prom.New(reg, prom.WithNamespace(e.cfg.Metrics.Prefix))
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		collector = c
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	default:
		c := vm.New(vm.WithPrefix(e.cfg.Metrics.Prefix))
		collector = c
		handler = http.HandlerFunc(c.Handler)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{
		Addr:              e.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		e.logger.Info("serving metrics", "addr", server.Addr, "backend", e.cfg.Metrics.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server failed", "error", err)
		}
	}()

	e.closers = append(e.closers, func(ctx context.Context) {
		_ = server.Shutdown(ctx)
	})

	return collector, nil
}

// connectDrain opens the NATS KV bucket holding the drain list.
func (e *env) connectDrain(ctx context.Context) (*topology.NATS, error) {
	kv, nc, err := openDrainKV(ctx, e.cfg.Drain)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func(context.Context) { nc.Close() })

	watcher, err := topology.NewNATS(kv, topology.WithKey(e.cfg.Drain.Key))
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func(context.Context) { _ = watcher.Close() })

	return watcher, nil
}

// openDrainKV connects to NATS and opens, or creates, the drain bucket.
func openDrainKV(ctx context.Context, cfg DrainConfig) (jetstream.KeyValue, *nats.Conn, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("tetherctl"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: cfg.Bucket, History: 5})
	}
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("open KV bucket %s: %w", cfg.Bucket, err)
	}

	return kv, nc, nil
}

// close releases resources in registration order.
func (e *env) close(ctx context.Context) {
	for _, fn := range e.closers {
		fn(ctx)
	}
	e.closers = nil
}
