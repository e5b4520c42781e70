// Command tracktracker runs the Track Tracker data platform: catalog
// ingestion, the HTTP API, and schema setup.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/lowkeylabs/tracktracker/internal/archive"
	"github.com/lowkeylabs/tracktracker/internal/config"
	"github.com/lowkeylabs/tracktracker/internal/db"
	"github.com/lowkeylabs/tracktracker/internal/ingest"
	"github.com/lowkeylabs/tracktracker/internal/spotify"
	"github.com/lowkeylabs/tracktracker/internal/web"
)

const usage = "usage: tracktracker <serve | ingest [-limit n] | init-db>"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s", usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	switch args[0] {
	case "init-db":
		if err := database.InitSchema(ctx); err != nil {
			return err
		}
		fmt.Println("Tables created")
		return nil

	case "ingest":
		fs := flag.NewFlagSet("ingest", flag.ExitOnError)
		limit := fs.Int("limit", 20, "how many new releases to ingest")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		service, err := newIngestService(ctx, cfg, database)
		if err != nil {
			return err
		}

		result, err := service.Run(ctx, *limit)
		if err != nil {
			return fmt.Errorf("ingestion run: %w", err)
		}
		fmt.Printf("Processed %d tracks, created %d snapshots, %d errors\n",
			result.TracksProcessed, result.SnapshotsCreated, result.Errors)
		return nil

	case "serve":
		service, err := newIngestService(ctx, cfg, database)
		if err != nil {
			return err
		}

		server := web.NewServer(web.ServerConfig{
			Addr:        cfg.ListenAddr,
			TokenSecret: cfg.TokenSecret,
		}, database, service)
		return server.Run()

	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

// newIngestService wires the catalog client, persistence gateway, and
// optional raw archive into an ingestion service.
func newIngestService(ctx context.Context, cfg *config.Config, database *db.DB) (*ingest.Service, error) {
	catalog, err := spotify.NewClientCredentials(ctx, cfg.SpotifyID, cfg.SpotifySecret)
	if err != nil {
		return nil, fmt.Errorf("creating catalog client: %w", err)
	}

	var opts []ingest.Option
	if cfg.ArchiveBucket != "" {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.AWSRegion),
		})
		if err != nil {
			return nil, fmt.Errorf("creating AWS session: %w", err)
		}
		store := archive.NewS3Store(sess)
		opts = append(opts, ingest.WithArchive(store.Bucket(cfg.ArchiveBucket)))
	}

	return ingest.New(catalog, database, opts...), nil
}
