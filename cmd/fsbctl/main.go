// Command fsbctl is the operator tool for actions deliberately left off
// every service's public REST surface: republishing a stuck outbox,
// deleting a box outright, aborting an orphaned upload, and running the
// outbox cleanup sweep for a hub. It talks to each service's database
// directly, the way dittofs's own "user"/"group" commands manage the
// control-plane store in-process rather than over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/marmos91/dittofs/internal/cliutil"
	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/dcs"
	"github.com/marmos91/dittofs/internal/eventbus"
	"github.com/marmos91/dittofs/internal/keystoreclient"
	"github.com/marmos91/dittofs/internal/objectstorage"
	"github.com/marmos91/dittofs/internal/servicebootstrap"
	"github.com/marmos91/dittofs/internal/serviceconfig"
	"github.com/marmos91/dittofs/internal/storagealias"
	"github.com/marmos91/dittofs/internal/ucs"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "fsbctl",
		Short:         "Operator tool for the file-services backend",
		Long:          `fsbctl is the operator CLI for actions no service exposes over its public REST surface.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		republishOutboxCmd(),
		deleteBoxCmd(),
		abortUploadCmd(),
		cleanupOutboxCmd(),
		configSchemaCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fsbctl: %v\n", err)
		os.Exit(1)
	}
}

func republishOutboxCmd() *cobra.Command {
	var service, configPath string

	cmd := &cobra.Command{
		Use:   "republish-outbox",
		Short: "Resend every row in a service's persisted-event outbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			if service == "" {
				return fmt.Errorf("--service is required")
			}

			ctx := context.Background()
			cfg, err := serviceconfig.Load(service, configPath)
			if err != nil {
				return fmt.Errorf("loading %s config: %w", service, err)
			}

			db, disconnect, err := servicebootstrap.Mongo(ctx, cfg)
			if err != nil {
				return err
			}
			defer disconnect(context.Background())

			events := dao.New[dao.PersistedEvent](db.Collection(cfg.Mongo.PersistedEventsCollection))
			kafka := eventbus.NewKafkaPublisher(eventbus.KafkaConfig{Brokers: cfg.Kafka.Brokers, DLQTopic: cfg.Kafka.DLQTopic})
			defer kafka.Close()

			count, err := eventbus.Republish(ctx, events, kafka)
			if err != nil {
				return err
			}

			cliutil.PrintTable(os.Stdout, []string{"Field", "Value"}, [][]string{
				{"service", service},
				{"events republished", fmt.Sprintf("%d", count)},
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "service whose outbox to republish (ucs|fis|ifrs|dcs)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to the service's config file")
	return cmd
}

func deleteBoxCmd() *cobra.Command {
	var configPath, boxID string
	var force bool

	cmd := &cobra.Command{
		Use:   "delete-box",
		Short: "Delete an upload box outright (operator-only, bypasses locking)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if boxID == "" {
				return fmt.Errorf("--box-id is required")
			}

			confirmed, err := confirmDestructive(fmt.Sprintf("really delete box %s permanently?", boxID), force)
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("aborted, box not deleted")
				return nil
			}

			ctx := context.Background()
			cfg, err := serviceconfig.Load("ucs", configPath)
			if err != nil {
				return fmt.Errorf("loading ucs config: %w", err)
			}

			db, disconnect, err := servicebootstrap.Mongo(ctx, cfg)
			if err != nil {
				return err
			}
			defer disconnect(context.Background())

			ctrl, closeEvents, err := buildUCSController(ctx, db, cfg)
			if err != nil {
				return err
			}
			defer closeEvents()

			if err := ctrl.DeleteBox(ctx, boxID); err != nil {
				return err
			}

			cliutil.PrintTable(os.Stdout, []string{"Field", "Value"}, [][]string{
				{"box_id", boxID},
				{"status", "deleted"},
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to ucs's config file")
	cmd.Flags().StringVar(&boxID, "box-id", "", "id of the box to delete")
	cmd.Flags().BoolVar(&force, "force", false, "skip the interactive confirmation")
	return cmd
}

func abortUploadCmd() *cobra.Command {
	var configPath, boxID, fileID string
	var force bool

	cmd := &cobra.Command{
		Use:   "abort-upload",
		Short: "Remove an in-progress file upload and its multipart handle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if boxID == "" || fileID == "" {
				return fmt.Errorf("--box-id and --file-id are required")
			}

			confirmed, err := confirmDestructive("really abort this multipart upload?", force)
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("aborted, upload left in place")
				return nil
			}

			ctx := context.Background()
			cfg, err := serviceconfig.Load("ucs", configPath)
			if err != nil {
				return fmt.Errorf("loading ucs config: %w", err)
			}

			db, disconnect, err := servicebootstrap.Mongo(ctx, cfg)
			if err != nil {
				return err
			}
			defer disconnect(context.Background())

			ctrl, closeEvents, err := buildUCSController(ctx, db, cfg)
			if err != nil {
				return err
			}
			defer closeEvents()

			if err := ctrl.RemoveFileUpload(ctx, boxID, fileID); err != nil {
				return err
			}

			cliutil.PrintTable(os.Stdout, []string{"Field", "Value"}, [][]string{
				{"box_id", boxID},
				{"file_id", fileID},
				{"status", "aborted"},
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to ucs's config file")
	cmd.Flags().StringVar(&boxID, "box-id", "", "id of the box the upload belongs to")
	cmd.Flags().StringVar(&fileID, "file-id", "", "id of the upload to abort")
	cmd.Flags().BoolVar(&force, "force", false, "skip the interactive confirmation")
	return cmd
}

func cleanupOutboxCmd() *cobra.Command {
	var configPath, hub string

	cmd := &cobra.Command{
		Use:   "cleanup-outbox",
		Short: "Run DCS's outbox cleanup sweep for one hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hub == "" {
				return fmt.Errorf("--hub is required")
			}

			ctx := context.Background()
			cfg, err := serviceconfig.Load("dcs", configPath)
			if err != nil {
				return fmt.Errorf("loading dcs config: %w", err)
			}

			db, disconnect, err := servicebootstrap.Mongo(ctx, cfg)
			if err != nil {
				return err
			}
			defer disconnect(context.Background())

			events, _, _ := servicebootstrap.EventPublisher(db, cfg)
			defer events.Close()

			storage, err := objectstorage.NewS3Storage(ctx, objectstorage.Config{Aliases: cfg.StorageAliases})
			if err != nil {
				return fmt.Errorf("configuring object storage: %w", err)
			}

			keys := keystoreclient.New(keystoreclient.DefaultConfig(cfg.EkssBaseURL))
			aliases := storagealias.NewResolver(servicebootstrap.ConfiguredAliasSet(cfg))
			objects := dao.New[dcs.DrsObject](db.Collection("drs_objects"))

			registry := dcs.NewRegistryController(
				objects, events, storage, keys, aliases,
				cfg.DrsServerURI, cfg.StagingSpeedMBs,
				cfg.RetryAfterMin, cfg.RetryAfterMax,
				cfg.PresignedURLExpiresAfter, cfg.URLExpirationBuffer,
				time.Duration(cfg.OutboxCacheTimeoutDays)*24*time.Hour,
			)

			if err := registry.CleanupOutbox(ctx, hub); err != nil {
				return err
			}

			cliutil.PrintTable(os.Stdout, []string{"Field", "Value"}, [][]string{
				{"hub", hub},
				{"status", "swept"},
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to dcs's config file")
	cmd.Flags().StringVar(&hub, "hub", "", "hub alias to clean up")
	return cmd
}

func configSchemaCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "config-schema",
		Short: "Print the JSON schema shared by every service's config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaJSON, err := json.MarshalIndent(serviceconfig.JSONSchema(), "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling schema: %w", err)
			}

			if output != "" {
				if err := os.WriteFile(output, schemaJSON, 0644); err != nil {
					return fmt.Errorf("writing schema file: %w", err)
				}
				fmt.Printf("schema written to %s\n", output)
				return nil
			}

			fmt.Println(string(schemaJSON))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write the schema to (default: stdout)")
	return cmd
}

// confirmDestructive skips the prompt when force is set, otherwise asks the
// operator to confirm before a command mutates or deletes state it cannot
// recover.
func confirmDestructive(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	ok, err := cliutil.Confirm(label, false)
	if err != nil {
		if err == cliutil.ErrAborted {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// buildUCSController wires a ucs.Controller against db/cfg for one-shot
// operator commands, returning a close func for the event publisher it
// opens alongside.
func buildUCSController(ctx context.Context, db *mongo.Database, cfg *serviceconfig.Config) (*ucs.Controller, func(), error) {
	events, _, _ := servicebootstrap.EventPublisher(db, cfg)

	storage, err := objectstorage.NewS3Storage(ctx, objectstorage.Config{Aliases: cfg.StorageAliases})
	if err != nil {
		return nil, nil, fmt.Errorf("configuring object storage: %w", err)
	}

	boxes := dao.New[ucs.FileUploadBox](db.Collection("upload_boxes"))
	uploads := dao.New[ucs.FileUpload](db.Collection("file_uploads"))
	s3details := dao.New[ucs.S3UploadDetails](db.Collection("s3_upload_details"))

	ctrl := ucs.NewController(
		boxes, uploads, s3details, storage, events,
		servicebootstrap.ConfiguredAliasSet(cfg),
		cfg.PresignedURLExpiresAfter,
	)

	return ctrl, func() { _ = events.Close() }, nil
}
