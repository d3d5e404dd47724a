package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/cigraph/internal/config"
	"github.com/rohankatakam/cigraph/internal/embedding"
	"github.com/rohankatakam/cigraph/internal/ingestion"
	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/storage"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file|-]",
	Short: "Ingest NDJSON indexer output into the graph store",
	Long: `Ingest newline-delimited JSON records ({"type": ..., "data": {...}}) emitted by an
indexer. Each record is validated, sanitized, optionally enriched with an
embedding, and written under the --tenant/--repo scope.

Without --stream the whole input is applied as one batch. With --stream records
are flushed every ingest.batch_size records, so earlier batches stay applied if
a later record is rejected.

Examples:
  cig ingest index.ndjson --tenant acme --repo api
  indexer run | cig ingest - --tenant acme --repo api --stream`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Bool("stream", false, "flush in batches while reading")
	ingestCmd.Flags().Bool("trace-records", false, "log every decoded record at debug level")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := scope()
	if err != nil {
		return err
	}
	stream, _ := cmd.Flags().GetBool("stream")
	traceRecords, _ := cmd.Flags().GetBool("trace-records")

	in := rootCmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	embedder, closeEmbedder, err := embedding.New(embedding.Config{
		Provider:          cfg.Embedding.Provider,
		APIKey:            cfg.Embedding.APIKey,
		BaseURL:           cfg.Embedding.BaseURL,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		CachePath:         cfg.Embedding.CachePath,
	})
	if err != nil {
		return err
	}
	if closeEmbedder != nil {
		defer closeEmbedder()
	}

	opts := ingestion.Options{
		BatchSize:            cfg.Ingest.BatchSize,
		EmbeddingConcurrency: cfg.Ingest.EmbeddingConcurrency,
		MaxTextLength:        cfg.Ingest.MaxTextLength,
		Embedder:             embedder,
		Logger:               logger,
	}
	if traceRecords {
		opts.Observer = func(rec models.Record) {
			logger.WithFields(logrus.Fields{
				"record_type": fmt.Sprintf("%T", rec),
			}).Debug("decoded record")
		}
	}

	return withStore(config.ValidationContextIngest, func(store storage.Store) error {
		ingestor := ingestion.NewIngestor(store, opts)

		var result *ingestion.Result
		if stream {
			result, err = ingestor.IngestStream(ctx, s, in)
		} else {
			data, readErr := io.ReadAll(in)
			if readErr != nil {
				return fmt.Errorf("failed to read input: %w", readErr)
			}
			result, err = ingestor.Ingest(ctx, s, string(data))
		}
		if err != nil {
			return err
		}
		return render(result)
	})
}
