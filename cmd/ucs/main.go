// Command ucs runs the upload controller service: it owns file-upload
// boxes and their multipart uploads against each storage alias's inbox
// bucket, and publishes a box-created event once a box is first created.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/objectstorage"
	"github.com/marmos91/dittofs/internal/servicebootstrap"
	"github.com/marmos91/dittofs/internal/serviceconfig"
	"github.com/marmos91/dittofs/internal/ucs"
	"github.com/marmos91/dittofs/internal/ucs/adapters/rest"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ucs",
		Short: "Run the upload controller service",
		Long: `ucs owns file-upload boxes and their multipart uploads against each
storage alias's inbox bucket, publishing a box-created event the first time
a box is created.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serviceconfig.Load("ucs", configPath)
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
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/ucs/config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("ucs: %v", err)
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

	storage, err := objectstorage.NewS3Storage(ctx, objectstorage.Config{Aliases: cfg.StorageAliases})
	if err != nil {
		return fmt.Errorf("configuring object storage: %w", err)
	}

	boxes := dao.New[ucs.FileUploadBox](db.Collection("upload_boxes"))
	uploads := dao.New[ucs.FileUpload](db.Collection("file_uploads"))
	s3details := dao.New[ucs.S3UploadDetails](db.Collection("s3_upload_details"))

	ctrl := ucs.NewController(
		boxes, uploads, s3details, storage, events,
		servicebootstrap.ConfiguredAliasSet(cfg),
		cfg.PresignedURLExpiresAfter,
	)

	keys, err := servicebootstrap.LoadKeySet(cfg.JWKSets.IssuerSet)
	if err != nil {
		return fmt.Errorf("loading uos/wps issuer key set: %w", err)
	}

	ready := func(r *http.Request) error {
		return db.Client().Ping(r.Context(), nil)
	}
	router := rest.NewRouter(ctrl, keys, ready, cfg.Metrics.Enabled)

	go servicebootstrap.RunPublishPending(ctx, cfg.Server.PublishPendingInterval, eventRecords, kafka)

	return servicebootstrap.Serve(ctx, cfg.Server.Addr, router, cfg.Server.ShutdownTimeout)
}
