package storage

import (
	"fmt"
	"strings"
)

// Dialect selects SQL differences between the supported backends
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// scopedTables lists every table carrying tenant_id; all of them get row-level
// security on PostgreSQL
var scopedTables = []string{
	"cig_nodes",
	"cig_edges",
	"cig_edge_occurrences",
	"cig_flow_entrypoints",
	"cig_flow_graphs",
	"cig_dependency_manifests",
	"cig_declared_dependencies",
	"cig_observed_dependencies",
	"cig_dependency_mismatches",
	"cig_index_diagnostics",
	"cig_unresolved_imports",
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS cig_nodes (
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	symbol_uid TEXT NOT NULL,
	qualified_name TEXT NOT NULL DEFAULT '',
	node_type TEXT NOT NULL,
	file_path TEXT NOT NULL DEFAULT '',
	line_start INTEGER NOT NULL DEFAULT 0,
	line_end INTEGER NOT NULL DEFAULT 0,
	language TEXT NOT NULL DEFAULT '',
	visibility TEXT NOT NULL DEFAULT '',
	signature TEXT NOT NULL DEFAULT '',
	signature_hash TEXT NOT NULL DEFAULT '',
	docstring TEXT NOT NULL DEFAULT '',
	contract TEXT,
	constraints_json TEXT,
	allowable_values TEXT,
	embedding_text TEXT NOT NULL DEFAULT '',
	embedding TEXT,
	external_ref TEXT,
	updated_at {{TS}} NOT NULL,
	PRIMARY KEY (tenant_id, repo_id, symbol_uid)
);

CREATE TABLE IF NOT EXISTS cig_edges (
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	source_symbol_uid TEXT NOT NULL,
	edge_type TEXT NOT NULL,
	target_symbol_uid TEXT NOT NULL,
	metadata TEXT,
	updated_at {{TS}} NOT NULL,
	PRIMARY KEY (tenant_id, repo_id, source_symbol_uid, edge_type, target_symbol_uid)
);
CREATE INDEX IF NOT EXISTS idx_cig_edges_target ON cig_edges (tenant_id, repo_id, target_symbol_uid);

CREATE TABLE IF NOT EXISTS cig_edge_occurrences (
	id {{ID}},
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	source_symbol_uid TEXT NOT NULL,
	edge_type TEXT NOT NULL,
	target_symbol_uid TEXT NOT NULL,
	file_path TEXT NOT NULL,
	line_start INTEGER NOT NULL,
	line_end INTEGER NOT NULL,
	occurrence_kind TEXT NOT NULL DEFAULT '',
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_cig_occ_edge ON cig_edge_occurrences (tenant_id, repo_id, source_symbol_uid, edge_type, target_symbol_uid);

CREATE TABLE IF NOT EXISTS cig_flow_entrypoints (
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	entrypoint_key TEXT NOT NULL,
	entrypoint_type TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	symbol_uid TEXT NOT NULL,
	metadata TEXT,
	PRIMARY KEY (tenant_id, repo_id, entrypoint_key)
);

CREATE TABLE IF NOT EXISTS cig_flow_graphs (
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	flow_graph_key TEXT NOT NULL,
	entrypoint_key TEXT NOT NULL,
	sha TEXT NOT NULL,
	depth INTEGER NOT NULL,
	node_uids TEXT NOT NULL,
	edge_keys TEXT NOT NULL,
	PRIMARY KEY (tenant_id, repo_id, flow_graph_key)
);

CREATE TABLE IF NOT EXISTS cig_dependency_manifests (
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	manifest_path TEXT NOT NULL,
	ecosystem TEXT NOT NULL DEFAULT '',
	package_name TEXT NOT NULL DEFAULT '',
	metadata TEXT,
	PRIMARY KEY (tenant_id, repo_id, manifest_path)
);

CREATE TABLE IF NOT EXISTS cig_declared_dependencies (
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	manifest_path TEXT NOT NULL DEFAULT '',
	package_key TEXT NOT NULL,
	version_spec TEXT NOT NULL DEFAULT '',
	dependency_scope TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, repo_id, manifest_path, package_key)
);

CREATE TABLE IF NOT EXISTS cig_observed_dependencies (
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	package_key TEXT NOT NULL,
	file_path TEXT NOT NULL DEFAULT '',
	line_start INTEGER NOT NULL DEFAULT 0,
	import_path TEXT NOT NULL DEFAULT '',
	version TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, repo_id, package_key, file_path, line_start)
);

CREATE TABLE IF NOT EXISTS cig_dependency_mismatches (
	id {{ID}},
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	package_key TEXT NOT NULL,
	kind TEXT NOT NULL,
	manifest_path TEXT NOT NULL DEFAULT '',
	declared_version_spec TEXT NOT NULL DEFAULT '',
	observed_version TEXT NOT NULL DEFAULT '',
	details TEXT,
	source TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cig_mismatch_key
	ON cig_dependency_mismatches (tenant_id, repo_id, kind, package_key, manifest_path, observed_version);

CREATE TABLE IF NOT EXISTS cig_index_diagnostics (
	id {{ID}},
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL DEFAULT '',
	sha TEXT NOT NULL DEFAULT '',
	files_reparsed INTEGER NOT NULL DEFAULT 0,
	files_impacted INTEGER NOT NULL DEFAULT 0,
	metadata TEXT,
	created_at {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS cig_unresolved_imports (
	id {{ID}},
	tenant_id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	line_start INTEGER NOT NULL DEFAULT 0,
	import_path TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);
`

// rlsTemplate enables and forces row-level security on one table. FORCE makes the
// policy apply to the table owner too, so the application role cannot bypass it.
const rlsTemplate = `
ALTER TABLE %[1]s ENABLE ROW LEVEL SECURITY;
ALTER TABLE %[1]s FORCE ROW LEVEL SECURITY;
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_policies WHERE tablename = '%[1]s' AND policyname = 'cig_tenant_isolation') THEN
		CREATE POLICY cig_tenant_isolation ON %[1]s
			USING (tenant_id = current_setting('app.tenant_id', true))
			WITH CHECK (tenant_id = current_setting('app.tenant_id', true));
	END IF;
END $$;
`

// schemaFor renders the DDL for a dialect
func schemaFor(d Dialect) string {
	var id, ts string
	switch d {
	case DialectPostgres:
		id, ts = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	default:
		id, ts = "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	}
	ddl := strings.NewReplacer("{{ID}}", id, "{{TS}}", ts).Replace(schemaTemplate)
	if d != DialectPostgres {
		return ddl
	}
	var sb strings.Builder
	sb.WriteString(ddl)
	for _, table := range scopedTables {
		sb.WriteString(fmt.Sprintf(rlsTemplate, table))
	}
	return sb.String()
}
