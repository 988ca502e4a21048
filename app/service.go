package app

import (
	"context"
	"fmt"
	"time"

	"github.com/pierreba/era/config"
	"github.com/pierreba/era/core/alloc"
	coreaudit "github.com/pierreba/era/core/audit"
	corecatalog "github.com/pierreba/era/core/catalog"
	"github.com/pierreba/era/core/constraint"
	"github.com/pierreba/era/core/lock"
	coremetrics "github.com/pierreba/era/core/metrics"
	corenotify "github.com/pierreba/era/core/notify"
	"github.com/pierreba/era/core/pipeline"
	"github.com/pierreba/era/core/rules"
	"github.com/pierreba/era/core/tasks"
	"github.com/pierreba/era/infra/audit"
	infracatalog "github.com/pierreba/era/infra/catalog"
	"github.com/pierreba/era/infra/intake"
	"github.com/pierreba/era/infra/logger"
	"github.com/pierreba/era/infra/metrics"
	"github.com/pierreba/era/infra/notify"
	"github.com/pierreba/era/internal/eventbus"
)

// Service wires the allocation pipeline and its infrastructure.
type Service struct {
	Pipeline *pipeline.Pipeline

	bus         eventbus.EventBus
	log         logger.Logger
	store       coreaudit.Store
	notifier    corenotify.Sink
	eventSink   coremetrics.MetricsSink
	intakeCfg   config.IntakeConfig
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	loadedRules, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	engine, err := rules.NewEngine(loadedRules)
	if err != nil {
		return nil, fmt.Errorf("rule engine: %w", err)
	}
	library, err := tasks.LoadLibrary(cfg.Templates.Path)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	decomposer := tasks.NewDecomposer(library)

	cat, err := buildCatalog(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	optimizer, err := alloc.New(cfg.Alloc, logger.New("optimizer"))
	if err != nil {
		return nil, fmt.Errorf("optimizer: %w", err)
	}
	filter, err := constraint.NewFilter(cfg.Constraint)
	if err != nil {
		return nil, fmt.Errorf("constraint filter: %w", err)
	}
	locks := lock.NewManager(time.Duration(cfg.Lock.TTLSeconds) * time.Second)

	store, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}

	var notifier corenotify.Sink = corenotify.NopSink{}
	if cfg.Notify.Enabled {
		notifier, err = notify.NewMQTTSink(cfg.Notify.MQTT)
		if err != nil {
			return nil, fmt.Errorf("notify sink: %w", err)
		}
	}

	// Inline sinks record from inside the pipeline; the Influx sink is fed
	// from bus events by the collector instead.
	var inline []coremetrics.MetricsSink
	if len(cfg.Metrics.Sinks) > 0 {
		sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
		if err != nil {
			return nil, fmt.Errorf("metrics sinks: %w", err)
		}
		inline = append(inline, sink)
	}
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		inline = append(inline, sink)
	}
	var sink coremetrics.MetricsSink = coremetrics.NopSink{}
	if len(inline) == 1 {
		sink = inline[0]
	} else if len(inline) > 1 {
		sink = coremetrics.NewMultiSink(inline...)
	}
	var eventSink coremetrics.MetricsSink
	if cfg.Metrics.InfluxEnabled {
		eventSink = metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
	}

	promPort := cfg.Metrics.PrometheusPort
	if promPort == "" {
		promPort = "2112"
	}

	bus := eventbus.New()
	pipe, err := pipeline.New(cfg.Pipeline, engine, decomposer, cat, optimizer, filter,
		locks, pipeline.AutoApproveGate{}, store, sink, notifier, bus, logger.New("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	return &Service{
		Pipeline:    pipe,
		bus:         bus,
		log:         logg,
		store:       store,
		notifier:    notifier,
		eventSink:   eventSink,
		intakeCfg:   cfg.Intake,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    promPort,
	}, nil
}

func buildCatalog(cfg config.CatalogConfig) (corecatalog.Catalog, error) {
	switch cfg.Backend {
	case "sqlite":
		cat, err := infracatalog.NewSQLiteCatalog(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.ResourcesPath != "" {
			resources, err := infracatalog.LoadResources(cfg.ResourcesPath)
			if err != nil {
				return nil, err
			}
			ctx := context.Background()
			for _, r := range resources {
				if err := cat.Upsert(ctx, r); err != nil {
					return nil, err
				}
			}
		}
		return cat, nil
	case "memory", "":
		cat := infracatalog.NewMemoryCatalog()
		if cfg.ResourcesPath != "" {
			resources, err := infracatalog.LoadResources(cfg.ResourcesPath)
			if err != nil {
				return nil, err
			}
			for _, r := range resources {
				cat.Upsert(r)
			}
		}
		return cat, nil
	default:
		return nil, fmt.Errorf("unknown backend %s", cfg.Backend)
	}
}

// Run starts the service and blocks until the context is canceled. Requests
// are consumed from the provided channel; the MQTT intake feeds it when
// enabled.
func (s *Service) Run(ctx context.Context, requests chan pipeline.Request) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.eventSink != nil {
		metrics.StartEventCollector(ctx, s.bus, s.eventSink)
	}
	if s.intakeCfg.Enabled {
		in, err := intake.NewMQTTIntake(s.intakeCfg.MQTT, requests)
		if err != nil {
			return fmt.Errorf("event intake: %w", err)
		}
		defer in.Close()
	}
	s.Pipeline.Run(ctx, requests)
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if err := s.notifier.Close(); err != nil {
		s.log.Errorf("notify close: %v", err)
	}
	return s.store.Close()
}
