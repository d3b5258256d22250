// Command dcs runs the download controller service: it serves the GA4GH
// DRS object and envelope endpoints, stages an object from its permanent
// bucket to the outbox on demand, and garbage-collects the outbox once a
// cached copy has outlived its retention window.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/dcs"
	"github.com/marmos91/dittofs/internal/dcs/adapters/events"
	"github.com/marmos91/dittofs/internal/dcs/adapters/rest"
	"github.com/marmos91/dittofs/internal/keystoreclient"
	"github.com/marmos91/dittofs/internal/objectstorage"
	"github.com/marmos91/dittofs/internal/servicebootstrap"
	"github.com/marmos91/dittofs/internal/serviceconfig"
	"github.com/marmos91/dittofs/internal/storagealias"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "dcs",
		Short: "Run the download controller service",
		Long: `dcs serves the GA4GH DRS object and envelope endpoints, stages an object
from its permanent bucket to the outbox on demand, and garbage-collects the
outbox once a cached copy has outlived its retention window.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serviceconfig.Load("dcs", configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := servicebootstrap.InitLogger(cfg); err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}

			ctx, cancel := servicebootstrap.WaitForSignal()
			defer cancel()

			return run(ctx, cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/dcs/config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("dcs: %v", err)
	}
}

func run(ctx context.Context, cfg *serviceconfig.Config) error {
	db, disconnect, err := servicebootstrap.Mongo(ctx, cfg)
	if err != nil {
		return err
	}
	defer disconnect(context.Background())

	eventPublisher, kafka, eventRecords := servicebootstrap.EventPublisher(db, cfg)
	defer eventPublisher.Close()

	idempotence := servicebootstrap.IdempotenceStore(db, cfg)

	storage, err := objectstorage.NewS3Storage(ctx, objectstorage.Config{Aliases: cfg.StorageAliases})
	if err != nil {
		return fmt.Errorf("configuring object storage: %w", err)
	}

	aliases := storagealias.NewResolver(servicebootstrap.ConfiguredAliasSet(cfg))
	keys := keystoreclient.New(keystoreclient.DefaultConfig(cfg.EkssBaseURL))

	objects := dao.New[dcs.DrsObject](db.Collection("drs_objects"))

	registry := dcs.NewRegistryController(
		objects, eventPublisher, storage, keys, aliases,
		cfg.DrsServerURI,
		cfg.StagingSpeedMBs,
		cfg.RetryAfterMin, cfg.RetryAfterMax,
		cfg.PresignedURLExpiresAfter, cfg.URLExpirationBuffer,
		time.Duration(cfg.OutboxCacheTimeoutDays)*24*time.Hour,
	)

	if err := servicebootstrap.RunConsumers(ctx, cfg, events.Routes(registry), idempotence, kafka); err != nil {
		return fmt.Errorf("starting consumers: %w", err)
	}

	go servicebootstrap.RunPublishPending(ctx, cfg.Server.PublishPendingInterval, eventRecords, kafka)

	issuerKeys, err := servicebootstrap.LoadKeySet(cfg.JWKSets.IssuerSet)
	if err != nil {
		return fmt.Errorf("loading work-order key set: %w", err)
	}

	ready := func(r *http.Request) error {
		return db.Client().Ping(r.Context(), nil)
	}
	router := rest.NewRouter(registry, issuerKeys, ready, cfg.Metrics.Enabled)

	return servicebootstrap.Serve(ctx, cfg.Server.Addr, router, cfg.Server.ShutdownTimeout)
}
