// Package servicebootstrap is the startup sequence every service binary
// (ucs, fis, ifrs, dcs) shares: connect to Mongo, run pending migrations,
// wire the persisted-event outbox and idempotence store, start the
// consumer goroutines and HTTP server, then block until a shutdown signal
// and drain everything in reverse order. Each cmd/* main supplies only the
// service-specific collection names, router and consumer routes; this
// package owns the ambient plumbing around them.
package servicebootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/marmos91/dittofs/internal/authn"
	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/eventbus"
	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/migration"
	"github.com/marmos91/dittofs/internal/serviceconfig"
	"github.com/marmos91/dittofs/internal/telemetry"
)

// LoadKeySet reads a JWK set document from path and parses it. Every
// service's token-issuer key set is configured as a file path today;
// nothing yet refreshes it from a live JWKS endpoint.
func LoadKeySet(path string) (*authn.KeySet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("servicebootstrap: reading key set %s: %w", path, err)
	}
	return authn.NewKeySet(raw)
}

// Mongo connects to cfg.Mongo.URI and returns the named database, running
// MigrateOrWait against it with no registered migration definitions yet —
// every service still goes through the staged lock-and-version protocol on
// startup, even with an empty migration set, so the lock/version
// collections exist from day one.
func Mongo(ctx context.Context, cfg *serviceconfig.Config) (*mongo.Database, func(context.Context) error, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("servicebootstrap: connecting to mongo: %w", err)
	}

	db := client.Database(cfg.Mongo.Database)

	manager, err := migration.NewManager(db, migration.Config{
		LockCollection:       cfg.Mongo.LockCollection,
		DbVersionCollection:  cfg.Mongo.DbVersionCollection,
		MigrationWaitSeconds: cfg.MigrationWaitSeconds,
	}, 1, map[int]migration.Definition{})
	if err != nil {
		return nil, nil, fmt.Errorf("servicebootstrap: building migration manager: %w", err)
	}
	if err := manager.MigrateOrWait(ctx); err != nil {
		return nil, nil, fmt.Errorf("servicebootstrap: running migrations: %w", err)
	}

	return db, client.Disconnect, nil
}

// EventPublisher wraps a Kafka publisher in the persisted outbox every
// service publishes through, so a broker outage defers rather than drops.
// It also returns the underlying Kafka publisher and the outbox
// collection's DAO, both needed by RunPublishPending's retry sweep.
func EventPublisher(db *mongo.Database, cfg *serviceconfig.Config) (*eventbus.OutboxPublisher, *eventbus.KafkaPublisher, *dao.DAO[dao.PersistedEvent]) {
	events := dao.New[dao.PersistedEvent](db.Collection(cfg.Mongo.PersistedEventsCollection))
	kafka := eventbus.NewKafkaPublisher(eventbus.KafkaConfig{Brokers: cfg.Kafka.Brokers, DLQTopic: cfg.Kafka.DLQTopic})
	return eventbus.NewOutboxPublisher(events, kafka), kafka, events
}

// IdempotenceStore wraps the shared idempotence collection.
func IdempotenceStore(db *mongo.Database, cfg *serviceconfig.Config) *dao.IdempotenceStore {
	return dao.NewIdempotenceStore(db.Collection(cfg.Mongo.IdempotenceCollection))
}

// ConfiguredAliasSet returns the set of storage alias names this
// deployment configured, for storagealias.NewResolver and UCS's
// known-alias check.
func ConfiguredAliasSet(cfg *serviceconfig.Config) map[string]struct{} {
	set := make(map[string]struct{}, len(cfg.StorageAliases))
	for alias := range cfg.StorageAliases {
		set[alias] = struct{}{}
	}
	return set
}

// RunConsumers builds one eventbus.Consumer per distinct topic in routes
// and runs each in its own goroutine until ctx is cancelled.
func RunConsumers(ctx context.Context, cfg *serviceconfig.Config, routes []eventbus.Route, idempotence *dao.IdempotenceStore, dlq *eventbus.KafkaPublisher) error {
	byTopic := make(map[string][]eventbus.Route)
	for _, route := range routes {
		byTopic[route.Topic] = append(byTopic[route.Topic], route)
	}

	for topic, topicRoutes := range byTopic {
		consumer, err := eventbus.NewConsumer(eventbus.ConsumerConfig{
			Brokers:  cfg.Kafka.Brokers,
			GroupID:  cfg.Kafka.GroupID,
			Topic:    topic,
			DLQTopic: cfg.Kafka.DLQTopic,
		}, topicRoutes, idempotence, dlq)
		if err != nil {
			return fmt.Errorf("servicebootstrap: building consumer for %s: %w", topic, err)
		}

		go func(topic string, c *eventbus.Consumer) {
			defer c.Close()
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("consumer stopped with error", "topic", topic, "error", err)
			}
		}(topic, consumer)
	}

	return nil
}

// RunPublishPending runs eventbus.PublishPending on a fixed interval until
// ctx is cancelled, the background sweep that re-sends outbox rows a
// broker outage left unpublished. Each tick sets the outbox-lag gauge on
// telemetry.GlobalMetrics; the publish counters move only when the sweep
// fails or sends at least one event.
func RunPublishPending(ctx context.Context, interval time.Duration, events *dao.DAO[dao.PersistedEvent], inner eventbus.Publisher) {
	metrics := telemetry.GlobalMetrics()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			published, lag, err := eventbus.PublishPending(ctx, events, inner)
			metrics.OutboxLagSeconds.Set(lag.Seconds())
			if err != nil {
				logger.Error("publish_pending sweep failed", "error", err)
				metrics.OutboxPublished.WithLabelValues("error").Inc()
				continue
			}
			if published > 0 {
				logger.Info("publish_pending sweep sent deferred events", "count", published)
				metrics.OutboxPublished.WithLabelValues("success").Add(float64(published))
			}
		}
	}
}

// Serve starts handler on addr and blocks until ctx is cancelled, then
// shuts the server down gracefully within shutdownTimeout.
func Serve(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	server := &http.Server{Addr: addr, Handler: handler}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("servicebootstrap: shutting down http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		return err
	}
}

// WaitForSignal blocks until SIGINT or SIGTERM, then cancels ctx.
func WaitForSignal() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()
	return ctx, cancel
}

// MountObservability wires the endpoints every REST service exposes:
// /health (bare liveness), /health/ready (calls ready, nil always passes)
// and, when metricsEnabled, /metrics (the default Prometheus registry via
// promhttp). Call it once from each service's NewRouter instead of
// hand-rolling /health.
func MountObservability(r chi.Router, ready func(r *http.Request) error, metricsEnabled bool) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if ready != nil {
			if err := ready(req); err != nil {
				logger.WarnCtx(req.Context(), "readiness check failed", logger.KeyError, err.Error())
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"NOT_READY"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	})
	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
}

// HealthRouter builds a bare observability-only handler for services with
// no domain REST surface of their own (IFRS), so they still expose
// /health, /health/ready and, when enabled, /metrics for orchestration and
// scraping.
func HealthRouter(ready func(r *http.Request) error, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()
	MountObservability(r, ready, metricsEnabled)
	return r
}

// InitLogger initializes the structured logger from cfg.
func InitLogger(cfg *serviceconfig.Config) error {
	return logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}
