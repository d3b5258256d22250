// Command ifrs runs the internal file registry service: it consumes
// FileUploadValidationSuccess and NonStagedFileRequested events, drives
// the archival/staging/deletion state machine against object storage, and
// publishes FileInternallyRegistered and FileDeleted in turn. It has no
// public REST surface of its own.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/ifrs"
	eventsadapter "github.com/marmos91/dittofs/internal/ifrs/adapters/events"
	"github.com/marmos91/dittofs/internal/objectstorage"
	"github.com/marmos91/dittofs/internal/servicebootstrap"
	"github.com/marmos91/dittofs/internal/serviceconfig"
	"github.com/marmos91/dittofs/internal/storagealias"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ifrs",
		Short: "Run the internal file registry service",
		Long: `ifrs consumes FileUploadValidationSuccess and NonStagedFileRequested
events, drives the archival/staging/deletion state machine against object
storage, and publishes FileInternallyRegistered and FileDeleted in turn. It
has no public REST surface of its own, only /health, /health/ready and
/metrics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serviceconfig.Load("ifrs", configPath)
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
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/ifrs/config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("ifrs: %v", err)
	}
}

func run(ctx context.Context, cfg *serviceconfig.Config) error {
	db, disconnect, err := servicebootstrap.Mongo(ctx, cfg)
	if err != nil {
		return err
	}
	defer disconnect(context.Background())

	events, kafka, eventRecords := servicebootstrap.EventPublisher(db, cfg)
	defer events.Close()

	idempotence := servicebootstrap.IdempotenceStore(db, cfg)

	storage, err := objectstorage.NewS3Storage(ctx, objectstorage.Config{Aliases: cfg.StorageAliases})
	if err != nil {
		return fmt.Errorf("configuring object storage: %w", err)
	}

	aliases := storagealias.NewResolver(servicebootstrap.ConfiguredAliasSet(cfg))

	metadata := dao.New[ifrs.FileMetadata](db.Collection("file_metadata"))
	pending := dao.New[ifrs.PendingFileUpload](db.Collection("pending_file_uploads"))
	accessions := dao.New[ifrs.FileIDToAccession](db.Collection("file_id_to_accession"))

	registry := ifrs.NewRegistryController(metadata, pending, accessions, events, storage, aliases)

	if err := servicebootstrap.RunConsumers(ctx, cfg, eventsadapter.Routes(registry), idempotence, kafka); err != nil {
		return fmt.Errorf("starting consumers: %w", err)
	}

	go servicebootstrap.RunPublishPending(ctx, cfg.Server.PublishPendingInterval, eventRecords, kafka)

	ready := func(r *http.Request) error {
		return db.Client().Ping(r.Context(), nil)
	}

	return servicebootstrap.Serve(ctx, cfg.Server.Addr, servicebootstrap.HealthRouter(ready, cfg.Metrics.Enabled), cfg.Server.ShutdownTimeout)
}
