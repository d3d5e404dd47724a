// Package ingestion reads NDJSON record streams produced by the indexer and
// writes them to a graph store.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/cigraph/internal/deps"
	"github.com/rohankatakam/cigraph/internal/embedding"
	"github.com/rohankatakam/cigraph/internal/errors"
	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/sanitize"
	"github.com/rohankatakam/cigraph/internal/storage"
	"github.com/rohankatakam/cigraph/internal/validation"
)

// DefaultBatchSize is the streaming flush threshold
const DefaultBatchSize = 500

// Observer sees every decoded record in input order, unrecognized ones included
type Observer func(rec models.Record)

// Options configures an Ingestor
type Options struct {
	BatchSize            int
	EmbeddingConcurrency int
	MaxTextLength        int
	Embedder             embedding.Embedder // nil disables enrichment
	Observer             Observer
	Logger               *logrus.Logger
}

// Result summarises one ingest call
type Result struct {
	RunID             string        `json:"runId"`
	Records           int           `json:"records"`
	Nodes             int           `json:"nodes"`
	Edges             int           `json:"edges"`
	Occurrences       int           `json:"occurrences"`
	Skipped           int           `json:"skipped"`
	Batches           int           `json:"batches"`
	Embedded          int           `json:"embedded"`
	DependencySignals bool          `json:"dependencySignals"`
	Mismatches        int           `json:"mismatches"`
	Duration          time.Duration `json:"duration"`
}

// Ingestor validates, sanitizes and enriches records, then writes them to a store
type Ingestor struct {
	store    storage.Store
	opts     Options
	decoder  *Decoder
	analyzer *deps.Analyzer
	logger   *logrus.Logger
}

// NewIngestor creates an ingestor writing to store
func NewIngestor(store storage.Store, opts Options) *Ingestor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.EmbeddingConcurrency <= 0 {
		opts.EmbeddingConcurrency = embedding.DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Ingestor{
		store:    store,
		opts:     opts,
		decoder:  NewDecoder(sanitize.New(opts.MaxTextLength)),
		analyzer: deps.NewAnalyzer(store, opts.Logger),
		logger:   opts.Logger,
	}
}

// Ingest processes a complete NDJSON text. All records are written in one flush,
// so a failing record leaves nothing from this call in the store.
func (in *Ingestor) Ingest(ctx context.Context, scope models.Scope, text string) (*Result, error) {
	return in.run(ctx, scope, strings.NewReader(text), 0)
}

// IngestStream processes NDJSON from r, flushing every BatchSize records.
// Batches flushed before a failing record stay in the store.
func (in *Ingestor) IngestStream(ctx context.Context, scope models.Scope, r io.Reader) (*Result, error) {
	return in.run(ctx, scope, r, in.opts.BatchSize)
}

// run drives one ingest call. batchSize 0 buffers until the end of input.
func (in *Ingestor) run(ctx context.Context, scope models.Scope, r io.Reader, batchSize int) (*Result, error) {
	if !scope.Valid() {
		return nil, errors.InvalidArgument("tenant and repo ids are required")
	}

	start := time.Now()
	res := &Result{RunID: uuid.New().String()}
	log := in.logger.WithFields(logrus.Fields{
		"run_id": res.RunID,
		"scope":  scope.String(),
	})

	pool := embedding.NewPool(in.opts.EmbeddingConcurrency, 0)
	defer pool.Close()

	var embedded int64
	var buffer []models.Record

	flush := func() error {
		if err := pool.Wait(); err != nil {
			return err
		}
		if len(buffer) == 0 {
			return nil
		}
		if err := in.write(ctx, scope, buffer); err != nil {
			return err
		}
		res.Batches++
		log.WithFields(logrus.Fields{
			"batch":   res.Batches,
			"records": len(buffer),
		}).Debug("flushed batch")
		buffer = nil
		return nil
	}

	reader := bufio.NewReader(r)
	lineNo := 0
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			pool.Wait()
			return nil, errors.Wrap(readErr, errors.ErrorTypeExternal, errors.SeverityHigh, "read record stream")
		}
		if len(line) > 0 {
			lineNo++
			rec, err := in.process(ctx, pool, bytes.TrimSpace(line), res, &embedded)
			if err != nil {
				pool.Wait()
				return nil, atLine(err, lineNo)
			}
			if rec != nil {
				buffer = append(buffer, rec)
				if batchSize > 0 && len(buffer) >= batchSize {
					if err := flush(); err != nil {
						return nil, err
					}
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if err := ctx.Err(); err != nil {
			pool.Wait()
			return nil, err
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}
	res.Embedded = int(atomic.LoadInt64(&embedded))

	if res.DependencySignals {
		mismatches, err := in.analyzer.Recompute(ctx, scope)
		if err != nil {
			return nil, err
		}
		res.Mismatches = len(mismatches)
	}

	res.Duration = time.Since(start)
	log.WithFields(logrus.Fields{
		"records":  res.Records,
		"nodes":    res.Nodes,
		"edges":    res.Edges,
		"skipped":  res.Skipped,
		"batches":  res.Batches,
		"embedded": res.Embedded,
		"duration": res.Duration.String(),
	}).Info("ingestion completed")

	return res, nil
}

// process decodes and checks one line. It returns nil for lines that are not
// stored (blank or unrecognized).
func (in *Ingestor) process(ctx context.Context, pool *embedding.Pool, line []byte, res *Result, embedded *int64) (models.Record, error) {
	if len(line) == 0 {
		return nil, nil
	}
	rec, err := in.decoder.Decode(line)
	if err != nil {
		return nil, err
	}
	res.Records++
	if in.opts.Observer != nil {
		in.opts.Observer(rec)
	}

	switch r := rec.(type) {
	case *models.Unrecognized:
		res.Skipped++
		return nil, nil
	case *models.Node:
		if err := validation.ValidateNode(r); err != nil {
			return nil, err
		}
		res.Nodes++
		if in.opts.Embedder != nil && r.NeedsEmbedding() {
			if err := pool.Submit(ctx, in.enrich(r, embedded)); err != nil {
				return nil, err
			}
		}
	case *models.Edge:
		if err := validation.ValidateEdge(r); err != nil {
			return nil, err
		}
		res.Edges++
	case *models.EdgeOccurrence:
		if err := validation.ValidateEdgeOccurrence(r); err != nil {
			return nil, err
		}
		res.Occurrences++
	default:
		if rec.RecordType().IsDependencyFact() {
			res.DependencySignals = true
		}
	}
	return rec, nil
}

// enrich returns a task that fills node.Embedding. Embedding failures are not
// fatal: the node is stored without a vector.
func (in *Ingestor) enrich(node *models.Node, embedded *int64) embedding.Task {
	text := node.EmbeddingText
	return func(ctx context.Context) error {
		vec, err := in.opts.Embedder.Embed(ctx, text)
		if err != nil {
			in.logger.WithFields(logrus.Fields{
				"symbol_uid": node.SymbolUID,
				"error":      err.Error(),
			}).Warn("embedding failed, storing node without vector")
			return nil
		}
		if len(vec) == 0 {
			return nil
		}
		node.Embedding = vec
		atomic.AddInt64(embedded, 1)
		return nil
	}
}

// write hands a batch to the store, in one call when the store supports it
func (in *Ingestor) write(ctx context.Context, scope models.Scope, records []models.Record) error {
	if bulk, ok := in.store.(storage.BulkIngester); ok {
		return bulk.IngestRecords(ctx, scope, records)
	}
	for _, rec := range records {
		if err := storage.ApplyRecord(ctx, in.store, scope, rec); err != nil {
			return err
		}
	}
	return nil
}

func atLine(err error, line int) error {
	if e, ok := errors.As(err); ok {
		return e.WithContext("line", line)
	}
	return err
}
