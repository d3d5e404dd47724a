package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/cigraph/internal/errors"
	"github.com/rohankatakam/cigraph/internal/models"
)

// SQLStore implements Store over SQLite (local/development) or PostgreSQL
// (production). Every operation runs in its own transaction; on PostgreSQL the
// transaction first pins app.tenant_id so row-level security hides other tenants
// even from a query that forgets its tenant predicate.
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *logrus.Logger
}

// OpenSQLite opens (creating if needed) a SQLite database. path may be ":memory:".
func OpenSQLite(path string, logger *logrus.Logger) (*SQLStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// One connection serialises writers and keeps a :memory: database alive
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	return newSQLStore(db, DialectSQLite, logger)
}

// OpenPostgres connects through the pgx stdlib driver and installs the schema
// with row-level security policies
func OpenPostgres(dsn string, logger *logrus.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, DialectPostgres, logger)
}

func newSQLStore(db *sqlx.DB, dialect Dialect, logger *logrus.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	store := &SQLStore{db: db, dialect: dialect, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *SQLStore) initSchema() error {
	if _, err := s.db.Exec(schemaFor(s.dialect)); err != nil {
		return err
	}
	s.logger.WithField("dialect", s.dialect).Debug("graph store schema ready")
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// withScope runs fn in a transaction bound to the scope's tenant
func (s *SQLStore) withScope(ctx context.Context, scope models.Scope, fn func(tx *sqlx.Tx) error) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError(err, "begin transaction")
	}
	defer tx.Rollback()

	if s.dialect == DialectPostgres {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('app.tenant_id', $1, true)`, scope.TenantID); err != nil {
			return errors.DatabaseErrorf(err, "bind tenant %s to transaction", scope.TenantID)
		}
	}

	if err := fn(tx); err != nil {
		if err == ErrNotFound {
			return err
		}
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.DatabaseError(err, "graph store operation")
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseError(err, "commit transaction")
	}
	return nil
}

// JSON column helpers

func encodeJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode json column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(ns sql.NullString) interface{} {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(ns.String), &v); err != nil {
		return nil
	}
	return v
}

// IngestRecords applies a batch of records in one transaction
func (s *SQLStore) IngestRecords(ctx context.Context, scope models.Scope, records []models.Record) error {
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		for i, rec := range records {
			if err := applyTx(ctx, tx, scope, rec); err != nil {
				return fmt.Errorf("record %d (%s): %w", i, rec.RecordType(), err)
			}
		}
		return nil
	})
	if err == nil {
		s.logger.WithFields(logrus.Fields{
			"scope":   scope.String(),
			"records": len(records),
		}).Debug("applied record batch")
	}
	return err
}

func applyTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, rec models.Record) error {
	switch r := rec.(type) {
	case *models.Node:
		return upsertNodeTx(ctx, tx, scope, r)
	case *models.Edge:
		return upsertEdgeTx(ctx, tx, scope, r)
	case *models.EdgeOccurrence:
		return addOccurrenceTx(ctx, tx, scope, r)
	case *models.FlowEntrypoint:
		return upsertEntrypointTx(ctx, tx, scope, r)
	case *models.FlowGraph:
		return upsertFlowGraphTx(ctx, tx, scope, r)
	case *models.DependencyManifest:
		return addManifestTx(ctx, tx, scope, r)
	case *models.DeclaredDependency:
		return addDeclaredTx(ctx, tx, scope, r)
	case *models.ObservedDependency:
		return addObservedTx(ctx, tx, scope, r)
	case *models.DependencyMismatch:
		return addMismatchTx(ctx, tx, scope, r)
	case *models.IndexDiagnostic:
		return addDiagnosticTx(ctx, tx, scope, r)
	case *models.UnresolvedImport:
		return addUnresolvedTx(ctx, tx, scope, r)
	case *models.Unrecognized:
		return nil
	}
	return errors.InternalErrorf("unsupported record %T", rec)
}

// Node operations

type nodeRow struct {
	SymbolUID       string         `db:"symbol_uid"`
	QualifiedName   string         `db:"qualified_name"`
	NodeType        string         `db:"node_type"`
	FilePath        string         `db:"file_path"`
	LineStart       int            `db:"line_start"`
	LineEnd         int            `db:"line_end"`
	Language        string         `db:"language"`
	Visibility      string         `db:"visibility"`
	Signature       string         `db:"signature"`
	SignatureHash   string         `db:"signature_hash"`
	Docstring       string         `db:"docstring"`
	Contract        sql.NullString `db:"contract"`
	Constraints     sql.NullString `db:"constraints_json"`
	AllowableValues sql.NullString `db:"allowable_values"`
	EmbeddingText   string         `db:"embedding_text"`
	Embedding       sql.NullString `db:"embedding"`
	ExternalRef     sql.NullString `db:"external_ref"`
}

const nodeColumns = `symbol_uid, qualified_name, node_type, file_path, line_start, line_end, language,
	visibility, signature, signature_hash, docstring, contract, constraints_json, allowable_values,
	embedding_text, embedding, external_ref`

func (r *nodeRow) toModel() *models.Node {
	n := &models.Node{
		SymbolUID:       r.SymbolUID,
		QualifiedName:   r.QualifiedName,
		NodeType:        r.NodeType,
		FilePath:        r.FilePath,
		LineStart:       r.LineStart,
		LineEnd:         r.LineEnd,
		Language:        r.Language,
		Visibility:      r.Visibility,
		Signature:       r.Signature,
		SignatureHash:   r.SignatureHash,
		Docstring:       r.Docstring,
		Contract:        decodeJSON(r.Contract),
		Constraints:     decodeJSON(r.Constraints),
		AllowableValues: decodeJSON(r.AllowableValues),
		EmbeddingText:   r.EmbeddingText,
		ExternalRef:     decodeJSON(r.ExternalRef),
	}
	if r.Embedding.Valid && r.Embedding.String != "" {
		var vec []float32
		if err := json.Unmarshal([]byte(r.Embedding.String), &vec); err == nil {
			n.Embedding = vec
		}
	}
	return n
}

func upsertNodeTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, n *models.Node) error {
	var cols [5]sql.NullString
	for i, v := range []interface{}{n.Contract, n.Constraints, n.AllowableValues, n.ExternalRef} {
		c, err := encodeJSON(v)
		if err != nil {
			return err
		}
		cols[i] = c
	}
	if len(n.Embedding) > 0 {
		c, err := encodeJSON(n.Embedding)
		if err != nil {
			return err
		}
		cols[4] = c
	}

	query := tx.Rebind(`
		INSERT INTO cig_nodes (tenant_id, repo_id, ` + nodeColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, repo_id, symbol_uid) DO UPDATE SET
			qualified_name = excluded.qualified_name,
			node_type = excluded.node_type,
			file_path = excluded.file_path,
			line_start = excluded.line_start,
			line_end = excluded.line_end,
			language = excluded.language,
			visibility = excluded.visibility,
			signature = excluded.signature,
			signature_hash = excluded.signature_hash,
			docstring = excluded.docstring,
			contract = excluded.contract,
			constraints_json = excluded.constraints_json,
			allowable_values = excluded.allowable_values,
			embedding_text = excluded.embedding_text,
			embedding = excluded.embedding,
			external_ref = excluded.external_ref,
			updated_at = excluded.updated_at
	`)
	_, err := tx.ExecContext(ctx, query,
		scope.TenantID, scope.RepoID,
		n.SymbolUID, n.QualifiedName, n.NodeType, n.FilePath, n.LineStart, n.LineEnd, n.Language,
		n.Visibility, n.Signature, n.SignatureHash, n.Docstring, cols[0], cols[1], cols[2],
		n.EmbeddingText, cols[4], cols[3], time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", n.SymbolUID, err)
	}
	return nil
}

func (s *SQLStore) UpsertNode(ctx context.Context, scope models.Scope, node *models.Node) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return upsertNodeTx(ctx, tx, scope, node)
	})
}

func (s *SQLStore) GetNodeBySymbolUID(ctx context.Context, scope models.Scope, symbolUID string) (*models.Node, error) {
	var row nodeRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+nodeColumns+` FROM cig_nodes
			WHERE tenant_id = ? AND repo_id = ? AND symbol_uid = ?`),
			scope.TenantID, scope.RepoID, symbolUID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *SQLStore) ListNodes(ctx context.Context, scope models.Scope, filter NodeFilter) ([]*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM cig_nodes WHERE tenant_id = ? AND repo_id = ?`
	args := []interface{}{scope.TenantID, scope.RepoID}
	if filter.NodeType != "" {
		query += ` AND node_type = ?`
		args = append(args, filter.NodeType)
	}
	if filter.FilePath != "" {
		query += ` AND file_path = ?`
		args = append(args, filter.FilePath)
	}
	query += ` ORDER BY symbol_uid`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	var rows []nodeRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(query), args...)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Node, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// Edge operations

type edgeRow struct {
	Source   string         `db:"source_symbol_uid"`
	EdgeType string         `db:"edge_type"`
	Target   string         `db:"target_symbol_uid"`
	Metadata sql.NullString `db:"metadata"`
}

func (r *edgeRow) toModel() *models.Edge {
	return &models.Edge{
		SourceSymbolUID: r.Source,
		EdgeType:        r.EdgeType,
		TargetSymbolUID: r.Target,
		Metadata:        decodeJSON(r.Metadata),
	}
}

func upsertEdgeTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, e *models.Edge) error {
	meta, err := encodeJSON(e.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cig_edges (tenant_id, repo_id, source_symbol_uid, edge_type, target_symbol_uid, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, repo_id, source_symbol_uid, edge_type, target_symbol_uid) DO UPDATE SET
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`), scope.TenantID, scope.RepoID, e.SourceSymbolUID, e.EdgeType, e.TargetSymbolUID, meta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert edge %s: %w", e.Key(), err)
	}
	return nil
}

func (s *SQLStore) UpsertEdge(ctx context.Context, scope models.Scope, edge *models.Edge) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return upsertEdgeTx(ctx, tx, scope, edge)
	})
}

func (s *SQLStore) ListEdges(ctx context.Context, scope models.Scope, filter EdgeFilter) ([]*models.Edge, error) {
	return s.selectEdges(ctx, scope, "", nil, filter)
}

func (s *SQLStore) ListEdgesByNode(ctx context.Context, scope models.Scope, symbolUID string, direction models.Direction, filter EdgeFilter) ([]*models.Edge, error) {
	switch direction {
	case models.DirectionOut:
		return s.selectEdges(ctx, scope, ` AND source_symbol_uid = ?`, []interface{}{symbolUID}, filter)
	case models.DirectionIn:
		return s.selectEdges(ctx, scope, ` AND target_symbol_uid = ?`, []interface{}{symbolUID}, filter)
	default:
		return s.selectEdges(ctx, scope, ` AND (source_symbol_uid = ? OR target_symbol_uid = ?)`,
			[]interface{}{symbolUID, symbolUID}, filter)
	}
}

func (s *SQLStore) selectEdges(ctx context.Context, scope models.Scope, where string, whereArgs []interface{}, filter EdgeFilter) ([]*models.Edge, error) {
	query := `SELECT source_symbol_uid, edge_type, target_symbol_uid, metadata FROM cig_edges
		WHERE tenant_id = ? AND repo_id = ?` + where
	args := append([]interface{}{scope.TenantID, scope.RepoID}, whereArgs...)
	if len(filter.EdgeTypes) > 0 {
		query += ` AND edge_type IN (?)`
		args = append(args, filter.EdgeTypes)
	}
	query += ` ORDER BY source_symbol_uid, edge_type, target_symbol_uid`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	if len(filter.EdgeTypes) > 0 {
		expanded, expandedArgs, err := sqlx.In(query, args...)
		if err != nil {
			return nil, fmt.Errorf("expand edge type filter: %w", err)
		}
		query, args = expanded, expandedArgs
	}

	var rows []edgeRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(query), args...)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Edge, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// Edge occurrence operations

type occurrenceRow struct {
	Source         string         `db:"source_symbol_uid"`
	EdgeType       string         `db:"edge_type"`
	Target         string         `db:"target_symbol_uid"`
	FilePath       string         `db:"file_path"`
	LineStart      int            `db:"line_start"`
	LineEnd        int            `db:"line_end"`
	OccurrenceKind string         `db:"occurrence_kind"`
	Metadata       sql.NullString `db:"metadata"`
}

func addOccurrenceTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, o *models.EdgeOccurrence) error {
	meta, err := encodeJSON(o.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cig_edge_occurrences (tenant_id, repo_id, source_symbol_uid, edge_type, target_symbol_uid,
			file_path, line_start, line_end, occurrence_kind, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), scope.TenantID, scope.RepoID, o.SourceSymbolUID, o.EdgeType, o.TargetSymbolUID,
		o.FilePath, o.LineStart, o.LineEnd, o.OccurrenceKind, meta)
	if err != nil {
		return fmt.Errorf("add edge occurrence %s: %w", o.Key(), err)
	}
	return nil
}

func (s *SQLStore) AddEdgeOccurrence(ctx context.Context, scope models.Scope, occ *models.EdgeOccurrence) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return addOccurrenceTx(ctx, tx, scope, occ)
	})
}

func (s *SQLStore) ListEdgeOccurrencesForEdge(ctx context.Context, scope models.Scope, key models.EdgeKey) ([]*models.EdgeOccurrence, error) {
	var rows []occurrenceRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(`
			SELECT source_symbol_uid, edge_type, target_symbol_uid, file_path, line_start, line_end,
				occurrence_kind, metadata
			FROM cig_edge_occurrences
			WHERE tenant_id = ? AND repo_id = ? AND source_symbol_uid = ? AND edge_type = ? AND target_symbol_uid = ?
			ORDER BY id`), scope.TenantID, scope.RepoID, key.Source, key.Type, key.Target)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.EdgeOccurrence, len(rows))
	for i, r := range rows {
		out[i] = &models.EdgeOccurrence{
			SourceSymbolUID: r.Source,
			EdgeType:        r.EdgeType,
			TargetSymbolUID: r.Target,
			FilePath:        r.FilePath,
			LineStart:       r.LineStart,
			LineEnd:         r.LineEnd,
			OccurrenceKind:  r.OccurrenceKind,
			Metadata:        decodeJSON(r.Metadata),
		}
	}
	return out, nil
}

func (s *SQLStore) CountEdgeOccurrences(ctx context.Context, scope models.Scope, key models.EdgeKey) (int, error) {
	var n int
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.GetContext(ctx, &n, tx.Rebind(`
			SELECT COUNT(*) FROM cig_edge_occurrences
			WHERE tenant_id = ? AND repo_id = ? AND source_symbol_uid = ? AND edge_type = ? AND target_symbol_uid = ?`),
			scope.TenantID, scope.RepoID, key.Source, key.Type, key.Target)
	})
	return n, err
}

// Flow operations

type entrypointRow struct {
	EntrypointKey  string         `db:"entrypoint_key"`
	EntrypointType string         `db:"entrypoint_type"`
	Method         string         `db:"method"`
	Path           string         `db:"path"`
	SymbolUID      string         `db:"symbol_uid"`
	Metadata       sql.NullString `db:"metadata"`
}

func (r *entrypointRow) toModel() *models.FlowEntrypoint {
	return &models.FlowEntrypoint{
		EntrypointKey:  r.EntrypointKey,
		EntrypointType: r.EntrypointType,
		Method:         r.Method,
		Path:           r.Path,
		SymbolUID:      r.SymbolUID,
		Metadata:       decodeJSON(r.Metadata),
	}
}

const entrypointColumns = `entrypoint_key, entrypoint_type, method, path, symbol_uid, metadata`

func upsertEntrypointTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, ep *models.FlowEntrypoint) error {
	meta, err := encodeJSON(ep.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cig_flow_entrypoints (tenant_id, repo_id, `+entrypointColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, repo_id, entrypoint_key) DO UPDATE SET
			entrypoint_type = excluded.entrypoint_type,
			method = excluded.method,
			path = excluded.path,
			symbol_uid = excluded.symbol_uid,
			metadata = excluded.metadata
	`), scope.TenantID, scope.RepoID, ep.EntrypointKey, ep.EntrypointType, ep.Method, ep.Path, ep.SymbolUID, meta)
	if err != nil {
		return fmt.Errorf("upsert flow entrypoint %s: %w", ep.EntrypointKey, err)
	}
	return nil
}

func (s *SQLStore) UpsertFlowEntrypoint(ctx context.Context, scope models.Scope, ep *models.FlowEntrypoint) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return upsertEntrypointTx(ctx, tx, scope, ep)
	})
}

func (s *SQLStore) GetFlowEntrypoint(ctx context.Context, scope models.Scope, entrypointKey string) (*models.FlowEntrypoint, error) {
	var row entrypointRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+entrypointColumns+` FROM cig_flow_entrypoints
			WHERE tenant_id = ? AND repo_id = ? AND entrypoint_key = ?`),
			scope.TenantID, scope.RepoID, entrypointKey)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *SQLStore) ListFlowEntrypoints(ctx context.Context, scope models.Scope) ([]*models.FlowEntrypoint, error) {
	var rows []entrypointRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(`SELECT `+entrypointColumns+` FROM cig_flow_entrypoints
			WHERE tenant_id = ? AND repo_id = ? ORDER BY entrypoint_key`), scope.TenantID, scope.RepoID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.FlowEntrypoint, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

type flowGraphRow struct {
	FlowGraphKey  string `db:"flow_graph_key"`
	EntrypointKey string `db:"entrypoint_key"`
	Sha           string `db:"sha"`
	Depth         int    `db:"depth"`
	NodeUIDs      string `db:"node_uids"`
	EdgeKeys      string `db:"edge_keys"`
}

const flowGraphColumns = `flow_graph_key, entrypoint_key, sha, depth, node_uids, edge_keys`

func (r *flowGraphRow) toModel() *models.FlowGraph {
	fg := &models.FlowGraph{
		FlowGraphKey:  r.FlowGraphKey,
		EntrypointKey: r.EntrypointKey,
		Sha:           r.Sha,
		Depth:         r.Depth,
	}
	json.Unmarshal([]byte(r.NodeUIDs), &fg.NodeUIDs)
	json.Unmarshal([]byte(r.EdgeKeys), &fg.EdgeKeys)
	return fg
}

func upsertFlowGraphTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, fg *models.FlowGraph) error {
	nodes, err := json.Marshal(nonNil(fg.NodeUIDs))
	if err != nil {
		return err
	}
	edges, err := json.Marshal(nonNil(fg.EdgeKeys))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cig_flow_graphs (tenant_id, repo_id, `+flowGraphColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, repo_id, flow_graph_key) DO UPDATE SET
			entrypoint_key = excluded.entrypoint_key,
			sha = excluded.sha,
			depth = excluded.depth,
			node_uids = excluded.node_uids,
			edge_keys = excluded.edge_keys
	`), scope.TenantID, scope.RepoID, fg.FlowGraphKey, fg.EntrypointKey, fg.Sha, fg.Depth, string(nodes), string(edges))
	if err != nil {
		return fmt.Errorf("upsert flow graph %s: %w", fg.FlowGraphKey, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *SQLStore) UpsertFlowGraph(ctx context.Context, scope models.Scope, fg *models.FlowGraph) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return upsertFlowGraphTx(ctx, tx, scope, fg)
	})
}

func (s *SQLStore) GetFlowGraph(ctx context.Context, scope models.Scope, flowGraphKey string) (*models.FlowGraph, error) {
	var row flowGraphRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+flowGraphColumns+` FROM cig_flow_graphs
			WHERE tenant_id = ? AND repo_id = ? AND flow_graph_key = ?`),
			scope.TenantID, scope.RepoID, flowGraphKey)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *SQLStore) ListFlowGraphs(ctx context.Context, scope models.Scope, entrypointKey string) ([]*models.FlowGraph, error) {
	query := `SELECT ` + flowGraphColumns + ` FROM cig_flow_graphs WHERE tenant_id = ? AND repo_id = ?`
	args := []interface{}{scope.TenantID, scope.RepoID}
	if entrypointKey != "" {
		query += ` AND entrypoint_key = ?`
		args = append(args, entrypointKey)
	}
	query += ` ORDER BY flow_graph_key`

	var rows []flowGraphRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(query), args...)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.FlowGraph, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// Dependency operations

type manifestRow struct {
	ManifestPath string         `db:"manifest_path"`
	Ecosystem    string         `db:"ecosystem"`
	PackageName  string         `db:"package_name"`
	Metadata     sql.NullString `db:"metadata"`
}

func addManifestTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, m *models.DependencyManifest) error {
	meta, err := encodeJSON(m.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cig_dependency_manifests (tenant_id, repo_id, manifest_path, ecosystem, package_name, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, repo_id, manifest_path) DO UPDATE SET
			ecosystem = excluded.ecosystem,
			package_name = excluded.package_name,
			metadata = excluded.metadata
	`), scope.TenantID, scope.RepoID, m.ManifestPath, m.Ecosystem, m.PackageName, meta)
	if err != nil {
		return fmt.Errorf("upsert manifest %s: %w", m.ManifestPath, err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM cig_declared_dependencies WHERE tenant_id = ? AND repo_id = ? AND manifest_path = ?
	`), scope.TenantID, scope.RepoID, m.ManifestPath)
	if err != nil {
		return fmt.Errorf("reset declared dependencies of %s: %w", m.ManifestPath, err)
	}
	return nil
}

func (s *SQLStore) AddDependencyManifest(ctx context.Context, scope models.Scope, m *models.DependencyManifest) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return addManifestTx(ctx, tx, scope, m)
	})
}

func (s *SQLStore) ListDependencyManifests(ctx context.Context, scope models.Scope) ([]*models.DependencyManifest, error) {
	var rows []manifestRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(`
			SELECT manifest_path, ecosystem, package_name, metadata FROM cig_dependency_manifests
			WHERE tenant_id = ? AND repo_id = ? ORDER BY manifest_path`), scope.TenantID, scope.RepoID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.DependencyManifest, len(rows))
	for i, r := range rows {
		out[i] = &models.DependencyManifest{
			ManifestPath: r.ManifestPath,
			Ecosystem:    r.Ecosystem,
			PackageName:  r.PackageName,
			Metadata:     decodeJSON(r.Metadata),
		}
	}
	return out, nil
}

type declaredRow struct {
	ManifestPath    string `db:"manifest_path"`
	PackageKey      string `db:"package_key"`
	VersionSpec     string `db:"version_spec"`
	DependencyScope string `db:"dependency_scope"`
}

func addDeclaredTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, d *models.DeclaredDependency) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cig_declared_dependencies (tenant_id, repo_id, manifest_path, package_key, version_spec, dependency_scope)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, repo_id, manifest_path, package_key) DO UPDATE SET
			version_spec = excluded.version_spec,
			dependency_scope = excluded.dependency_scope
	`), scope.TenantID, scope.RepoID, d.ManifestPath, d.PackageKey, d.VersionSpec, d.DependencyScope)
	if err != nil {
		return fmt.Errorf("upsert declared dependency %s: %w", d.PackageKey, err)
	}
	return nil
}

func (s *SQLStore) AddDeclaredDependency(ctx context.Context, scope models.Scope, d *models.DeclaredDependency) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return addDeclaredTx(ctx, tx, scope, d)
	})
}

func (s *SQLStore) ListDeclaredDependencies(ctx context.Context, scope models.Scope) ([]*models.DeclaredDependency, error) {
	var rows []declaredRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(`
			SELECT manifest_path, package_key, version_spec, dependency_scope FROM cig_declared_dependencies
			WHERE tenant_id = ? AND repo_id = ? ORDER BY manifest_path, package_key`), scope.TenantID, scope.RepoID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.DeclaredDependency, len(rows))
	for i, r := range rows {
		out[i] = &models.DeclaredDependency{
			ManifestPath:    r.ManifestPath,
			PackageKey:      r.PackageKey,
			VersionSpec:     r.VersionSpec,
			DependencyScope: r.DependencyScope,
		}
	}
	return out, nil
}

type observedRow struct {
	PackageKey string `db:"package_key"`
	FilePath   string `db:"file_path"`
	LineStart  int    `db:"line_start"`
	ImportPath string `db:"import_path"`
	Version    string `db:"version"`
}

func addObservedTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, d *models.ObservedDependency) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cig_observed_dependencies (tenant_id, repo_id, package_key, file_path, line_start, import_path, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, repo_id, package_key, file_path, line_start) DO UPDATE SET
			import_path = excluded.import_path,
			version = excluded.version
	`), scope.TenantID, scope.RepoID, d.PackageKey, d.FilePath, d.LineStart, d.ImportPath, d.Version)
	if err != nil {
		return fmt.Errorf("upsert observed dependency %s: %w", d.PackageKey, err)
	}
	return nil
}

func (s *SQLStore) AddObservedDependency(ctx context.Context, scope models.Scope, d *models.ObservedDependency) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return addObservedTx(ctx, tx, scope, d)
	})
}

func (s *SQLStore) ListObservedDependencies(ctx context.Context, scope models.Scope) ([]*models.ObservedDependency, error) {
	var rows []observedRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(`
			SELECT package_key, file_path, line_start, import_path, version FROM cig_observed_dependencies
			WHERE tenant_id = ? AND repo_id = ? ORDER BY package_key, file_path, line_start`), scope.TenantID, scope.RepoID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.ObservedDependency, len(rows))
	for i, r := range rows {
		out[i] = &models.ObservedDependency{
			PackageKey: r.PackageKey,
			FilePath:   r.FilePath,
			LineStart:  r.LineStart,
			ImportPath: r.ImportPath,
			Version:    r.Version,
		}
	}
	return out, nil
}

type mismatchRow struct {
	PackageKey          string         `db:"package_key"`
	Kind                string         `db:"kind"`
	ManifestPath        string         `db:"manifest_path"`
	DeclaredVersionSpec string         `db:"declared_version_spec"`
	ObservedVersion     string         `db:"observed_version"`
	Details             sql.NullString `db:"details"`
	Source              string         `db:"source"`
}

func addMismatchTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, m *models.DependencyMismatch) error {
	details, err := encodeJSON(m.Details)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cig_dependency_mismatches (tenant_id, repo_id, package_key, kind, manifest_path,
			declared_version_spec, observed_version, details, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, repo_id, kind, package_key, manifest_path, observed_version) DO UPDATE SET
			declared_version_spec = excluded.declared_version_spec,
			details = excluded.details,
			source = excluded.source
	`), scope.TenantID, scope.RepoID, m.PackageKey, m.Kind, m.ManifestPath, m.DeclaredVersionSpec, m.ObservedVersion, details, m.Source)
	if err != nil {
		return fmt.Errorf("add mismatch %s/%s: %w", m.Kind, m.PackageKey, err)
	}
	return nil
}

func (s *SQLStore) AddDependencyMismatch(ctx context.Context, scope models.Scope, m *models.DependencyMismatch) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return addMismatchTx(ctx, tx, scope, m)
	})
}

func (s *SQLStore) ReplaceDependencyMismatches(ctx context.Context, scope models.Scope, ms []*models.DependencyMismatch) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			DELETE FROM cig_dependency_mismatches WHERE tenant_id = ? AND repo_id = ?
		`), scope.TenantID, scope.RepoID); err != nil {
			return fmt.Errorf("clear mismatches: %w", err)
		}
		for _, m := range ms {
			if err := addMismatchTx(ctx, tx, scope, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) ListDependencyMismatches(ctx context.Context, scope models.Scope) ([]*models.DependencyMismatch, error) {
	var rows []mismatchRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(`
			SELECT package_key, kind, manifest_path, declared_version_spec, observed_version, details, source
			FROM cig_dependency_mismatches WHERE tenant_id = ? AND repo_id = ? ORDER BY id`), scope.TenantID, scope.RepoID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.DependencyMismatch, len(rows))
	for i, r := range rows {
		out[i] = &models.DependencyMismatch{
			PackageKey:          r.PackageKey,
			Kind:                r.Kind,
			ManifestPath:        r.ManifestPath,
			DeclaredVersionSpec: r.DeclaredVersionSpec,
			ObservedVersion:     r.ObservedVersion,
			Details:             decodeJSON(r.Details),
			Source:              r.Source,
		}
	}
	return out, nil
}

// Audit operations

type diagnosticRow struct {
	RunID         string         `db:"run_id"`
	Mode          string         `db:"mode"`
	Sha           string         `db:"sha"`
	FilesReparsed int            `db:"files_reparsed"`
	FilesImpacted int            `db:"files_impacted"`
	Metadata      sql.NullString `db:"metadata"`
	CreatedAt     time.Time      `db:"created_at"`
}

func addDiagnosticTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, d *models.IndexDiagnostic) error {
	meta, err := encodeJSON(d.Metadata)
	if err != nil {
		return err
	}
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cig_index_diagnostics (tenant_id, repo_id, run_id, mode, sha, files_reparsed, files_impacted, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), scope.TenantID, scope.RepoID, d.RunID, d.Mode, d.Sha, d.FilesReparsed, d.FilesImpacted, meta, created)
	if err != nil {
		return fmt.Errorf("add index diagnostic: %w", err)
	}
	return nil
}

func (s *SQLStore) AddIndexDiagnostic(ctx context.Context, scope models.Scope, d *models.IndexDiagnostic) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return addDiagnosticTx(ctx, tx, scope, d)
	})
}

func (s *SQLStore) ListIndexDiagnostics(ctx context.Context, scope models.Scope) ([]*models.IndexDiagnostic, error) {
	var rows []diagnosticRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(`
			SELECT run_id, mode, sha, files_reparsed, files_impacted, metadata, created_at
			FROM cig_index_diagnostics WHERE tenant_id = ? AND repo_id = ? ORDER BY id`), scope.TenantID, scope.RepoID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.IndexDiagnostic, len(rows))
	for i, r := range rows {
		out[i] = &models.IndexDiagnostic{
			RunID:         r.RunID,
			Mode:          r.Mode,
			Sha:           r.Sha,
			FilesReparsed: r.FilesReparsed,
			FilesImpacted: r.FilesImpacted,
			Metadata:      decodeJSON(r.Metadata),
			CreatedAt:     r.CreatedAt,
		}
	}
	return out, nil
}

type unresolvedRow struct {
	FilePath   string `db:"file_path"`
	LineStart  int    `db:"line_start"`
	ImportPath string `db:"import_path"`
	Reason     string `db:"reason"`
}

func addUnresolvedTx(ctx context.Context, tx *sqlx.Tx, scope models.Scope, u *models.UnresolvedImport) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cig_unresolved_imports (tenant_id, repo_id, file_path, line_start, import_path, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`), scope.TenantID, scope.RepoID, u.FilePath, u.LineStart, u.ImportPath, u.Reason)
	if err != nil {
		return fmt.Errorf("add unresolved import %s: %w", u.ImportPath, err)
	}
	return nil
}

func (s *SQLStore) AddUnresolvedImport(ctx context.Context, scope models.Scope, u *models.UnresolvedImport) error {
	return s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return addUnresolvedTx(ctx, tx, scope, u)
	})
}

func (s *SQLStore) ListUnresolvedImports(ctx context.Context, scope models.Scope) ([]*models.UnresolvedImport, error) {
	var rows []unresolvedRow
	err := s.withScope(ctx, scope, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, tx.Rebind(`
			SELECT file_path, line_start, import_path, reason FROM cig_unresolved_imports
			WHERE tenant_id = ? AND repo_id = ? ORDER BY id`), scope.TenantID, scope.RepoID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.UnresolvedImport, len(rows))
	for i, r := range rows {
		out[i] = &models.UnresolvedImport{
			FilePath:   r.FilePath,
			LineStart:  r.LineStart,
			ImportPath: r.ImportPath,
			Reason:     r.Reason,
		}
	}
	return out, nil
}

// Dialect reports which backend the store talks to
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// String describes the store for logs
func (s *SQLStore) String() string {
	return strings.ToLower(string(s.dialect)) + " graph store"
}
