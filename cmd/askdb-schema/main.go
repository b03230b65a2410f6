package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
	schemapostgres "github.com/askdb/askdb/internal/schema/postgres"
	"github.com/askdb/askdb/internal/schema/snapshot"
	"github.com/askdb/askdb/internal/storage/s3"
)

func main() {
	schemaName := flag.String("schema", "", "schema to introspect; defaults to ASKDB_SCHEMA_NAME")
	out := flag.String("out", "-", "file to write the schema document to; - for stdout")
	upload := flag.Bool("upload", false, "store the document as a snapshot in the object store")
	diff := flag.Bool("diff", false, "compare against the latest stored snapshot before uploading")
	list := flag.Bool("list", false, "list stored snapshots and exit")
	keep := flag.Int("keep", 0, "after uploading, delete all but the newest N snapshots; 0 keeps everything")
	flag.Parse()

	cfg, err := config.LoadFromEnv("askdb-schema")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *schemaName == "" {
		*schemaName = cfg.Schema.Name
	}

	logger, closeLog, err := observability.OpenLogger(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var archive *snapshot.Archive
	if *upload || *diff || *list {
		store, err := s3.New(ctx, cfg.ObjectStore)
		if err != nil {
			logger.Error("failed to open object store", slog.Any("error", err))
			os.Exit(1)
		}
		archive = snapshot.NewArchive(store)
	}

	if *list {
		objects, err := archive.List(ctx, *schemaName)
		if err != nil {
			logger.Error("failed to list snapshots", slog.Any("error", err))
			os.Exit(1)
		}
		for _, object := range objects {
			fmt.Printf("%s\t%d\t%s\n", object.Key, object.Size, object.LastModified.UTC().Format(time.RFC3339))
		}
		return
	}

	doc, err := schemapostgres.NewIntrospector(schemapostgres.ConnectDSN(cfg.Database.DSN)).GetSchema(ctx, *schemaName)
	if err != nil {
		logger.Error("schema introspection failed", slog.String("schema", *schemaName), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("schema introspected", slog.String("schema", schema.NormalizeName(*schemaName)), slog.Int("tables", len(doc)))

	if err := writeDocument(*out, doc); err != nil {
		logger.Error("failed to write schema document", slog.String("out", *out), slog.Any("error", err))
		os.Exit(1)
	}

	if *diff {
		previous, info, err := archive.Latest(ctx, *schemaName)
		switch {
		case errors.Is(err, snapshot.ErrNoSnapshots):
			fmt.Fprintln(os.Stderr, "no previous snapshot")
		case err != nil:
			logger.Error("failed to load latest snapshot", slog.Any("error", err))
			os.Exit(1)
		default:
			changes := snapshot.Diff(previous, doc)
			fmt.Fprintf(os.Stderr, "%d change(s) since %s\n", len(changes), info.Key)
			for _, change := range changes {
				fmt.Fprintln(os.Stderr, change)
			}
		}
	}

	if *upload {
		info, err := archive.Save(ctx, *schemaName, doc)
		if err != nil {
			logger.Error("failed to upload schema snapshot", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("schema snapshot uploaded", slog.String("key", info.Key), slog.Int64("size", info.Size))

		if *keep > 0 {
			removed, err := archive.Prune(ctx, *schemaName, *keep)
			if err != nil {
				logger.Error("failed to prune schema snapshots", slog.Any("error", err))
				os.Exit(1)
			}
			logger.Info("schema snapshots pruned", slog.Int("removed", len(removed)), slog.Int("kept", *keep))
		}
	}
}

func writeDocument(path string, doc schema.Document) error {
	if path == "-" {
		return snapshot.Write(os.Stdout, doc)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := snapshot.Write(file, doc); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
