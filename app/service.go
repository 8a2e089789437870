// Package app wires the dispatch core, transports and sinks into a runnable
// service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sosgrid/sosd/api/emergencies"
	"github.com/sosgrid/sosd/api/teams"
	"github.com/sosgrid/sosd/config"
	"github.com/sosgrid/sosd/core/dispatch"
	"github.com/sosgrid/sosd/core/events"
	coremetrics "github.com/sosgrid/sosd/core/metrics"
	"github.com/sosgrid/sosd/core/model"
	"github.com/sosgrid/sosd/core/reaper"
	"github.com/sosgrid/sosd/core/registry"
	"github.com/sosgrid/sosd/core/store"
	"github.com/sosgrid/sosd/infra/logger"
	"github.com/sosgrid/sosd/infra/metrics"
	"github.com/sosgrid/sosd/infra/mqtt"
	infrastore "github.com/sosgrid/sosd/infra/store"
	"github.com/sosgrid/sosd/infra/ws"
	"github.com/sosgrid/sosd/internal/eventbus"
)

// Service orchestrates the dispatch engine, the session gateway and the
// ingest transports.
type Service struct {
	Engine   *dispatch.Engine
	Hub      *ws.Hub
	Registry registry.Store
	Store    store.EmergencyStore

	reaper      *reaper.Reaper
	ingest      *mqtt.Ingestor
	bus         *eventbus.Bus[events.Event]
	log         logger.Logger
	httpAddr    string
	promEnabled bool
	promPort    string
	closers     []func() error
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	svc := &Service{
		bus:         eventbus.New[events.Event](),
		log:         logg,
		httpAddr:    cfg.HTTP.Addr,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}

	svc.Registry = registry.NewMemoryStore()

	st, err := newEmergencyStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("emergency store: %w", err)
	}
	svc.Store = st
	if closer, ok := st.(interface{ Close() error }); ok {
		svc.closers = append(svc.closers, closer.Close)
	}

	sink, err := newSink(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	hub := ws.NewHub(svc.Registry, svc.bus, logger.New("ws_hub"))
	svc.Hub = hub

	engine, err := dispatch.NewEngine(cfg.Dispatch, svc.Registry, st, hub, svc.bus, sink, logger.New("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("dispatch engine: %w", err)
	}
	svc.Engine = engine
	hub.SetEngine(engine)

	svc.reaper = reaper.New(cfg.Reaper, svc.Registry, hub, svc.bus, logger.New("reaper"))

	if cfg.MQTT.Enabled {
		ingest, err := mqtt.NewIngestor(cfg.MQTT, svc.Registry, hub)
		if err != nil {
			return nil, fmt.Errorf("mqtt ingest: %w", err)
		}
		svc.ingest = ingest
	}
	return svc, nil
}

func newEmergencyStore(cfg config.StoreConfig) (store.EmergencyStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return infrastore.NewSQLiteStore(cfg.Path)
	default:
		return infrastore.NewMemoryStore(), nil
	}
}

func newSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return metrics.NewMultiSink(sinks...), nil
	}
}

// Handler builds the HTTP mux serving the API, the websocket endpoint and
// the health probe.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/sos", emergencies.NewReportHandler(s.Engine, model.SourceMobile))
	mux.Handle("/api/emergencies", methodSwitch(
		emergencies.NewReportHandler(s.Engine, model.SourceConsole),
		emergencies.NewHistoryHandler(s.Store),
	))
	mux.Handle("/api/teams/location", teams.NewLocationHandler(s.Registry, s.Hub))
	mux.Handle("/api/teams", teams.NewListHandler(s.Registry))
	mux.Handle("/ws", s.Hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// methodSwitch routes POST to post and everything else to rest, letting the
// handlers enforce their own method checks.
func methodSwitch(post, rest http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			post.ServeHTTP(w, r)
			return
		}
		rest.ServeHTTP(w, r)
	})
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.reaper.Run(ctx)
	go watchEvents(ctx, s.bus, logger.New("events"))
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, ":"+s.promPort, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.httpAddr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("listening on %s", s.httpAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.ingest != nil {
		s.ingest.Disconnect()
	}
	s.bus.Close()
	var first error
	for _, close := range s.closers {
		if err := close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
