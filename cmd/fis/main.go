// Command fis runs the file ingest service: it decrypts the upload
// metadata and secret envelopes a submitter seals against this service's
// Crypt4GH keypair, deposits the wrapped key with the key store, and
// drives the interrogation state machine that tracks a file from inbox
// arrival through pass or fail.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittofs/pkg/crypt4gh"
	"github.com/marmos91/dittofs/internal/dao"
	"github.com/marmos91/dittofs/internal/fis"
	"github.com/marmos91/dittofs/internal/fis/adapters/rest"
	"github.com/marmos91/dittofs/internal/keystoreclient"
	"github.com/marmos91/dittofs/internal/servicebootstrap"
	"github.com/marmos91/dittofs/internal/serviceconfig"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "fis",
		Short: "Run the file ingest service",
		Long: `fis decrypts the upload metadata and secret envelopes a submitter seals
against its Crypt4GH keypair, deposits the wrapped key with the key store,
and drives the interrogation state machine that tracks a file from inbox
arrival through pass or fail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serviceconfig.Load("fis", configPath)
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
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/fis/config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("fis: %v", err)
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

	passphrase, err := readPassphrase(cfg.Crypt4GH.PassphraseFilePath)
	if err != nil {
		return fmt.Errorf("reading crypt4gh passphrase: %w", err)
	}
	keyPair, err := crypt4gh.LoadKeyPair(cfg.Crypt4GH.PrivateKeyPath, passphrase)
	if err != nil {
		return fmt.Errorf("loading crypt4gh keypair: %w", err)
	}

	ks := keystoreclient.New(keystoreclient.DefaultConfig(cfg.EkssBaseURL))

	fileIDs := dao.New[fis.FileIDRecord](db.Collection("processed_file_ids"))
	interrogations := dao.New[fis.FileUnderInterrogation](db.Collection("files_under_interrogation"))

	ingest := fis.NewIngestController(fileIDs, events, ks, keyPair)
	interrogation := fis.NewInterrogationHandler(interrogations, events, ks)

	keys, err := servicebootstrap.LoadKeySet(cfg.JWKSets.IssuerSet)
	if err != nil {
		return fmt.Errorf("loading hub key set: %w", err)
	}

	ready := func(r *http.Request) error {
		return db.Client().Ping(r.Context(), nil)
	}
	router := rest.NewRouter(ingest, interrogation, keys, ready, cfg.Metrics.Enabled)

	go servicebootstrap.RunPublishPending(ctx, cfg.Server.PublishPendingInterval, eventRecords, kafka)

	return servicebootstrap.Serve(ctx, cfg.Server.Addr, router, cfg.Server.ShutdownTimeout)
}

// readPassphrase reads the Crypt4GH private key passphrase from file
// content, never from an env var, so it never shows up in a process
// listing. An empty path means the key is unencrypted.
func readPassphrase(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
