package ingestion

import (
	"bytes"
	"encoding/json"

	"github.com/rohankatakam/cigraph/internal/errors"
	"github.com/rohankatakam/cigraph/internal/identity"
	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/sanitize"
)

// Fields stored verbatim; everything else in node, edge and occurrence payloads
// goes through the redactor.
var (
	nodeKeep = map[string]bool{
		"symbolUid": true, "qualifiedName": true, "nodeType": true, "filePath": true,
		"lineStart": true, "lineEnd": true, "language": true, "signatureHash": true,
		"embedding": true,
	}
	edgeKeep = map[string]bool{
		"sourceSymbolUid": true, "edgeType": true, "targetSymbolUid": true,
	}
	occurrenceKeep = map[string]bool{
		"sourceSymbolUid": true, "edgeType": true, "targetSymbolUid": true,
		"filePath": true, "lineStart": true, "lineEnd": true,
	}
)

type envelope struct {
	Type json.RawMessage `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decoder turns one NDJSON line into a typed record
type Decoder struct {
	redactor *sanitize.Redactor
}

// NewDecoder creates a decoder that redacts with r (sanitize.Default when nil)
func NewDecoder(r *sanitize.Redactor) *Decoder {
	if r == nil {
		r = sanitize.Default
	}
	return &Decoder{redactor: r}
}

// Decode parses line. Unknown types decode to *models.Unrecognized; malformed
// lines return a malformed-input error with a reason code.
func (d *Decoder) Decode(line []byte) (models.Record, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, errors.MalformedCode(errors.CodeInvalidJSON, "invalid JSON: %v", err)
	}
	if isNull(env.Type) {
		return nil, errors.MalformedCode(errors.CodeMissingType, "record has no type")
	}
	var typ string
	if err := json.Unmarshal(env.Type, &typ); err != nil || typ == "" {
		return nil, errors.MalformedCode(errors.CodeMissingType, "record type must be a non-empty string")
	}

	rt := models.RecordType(typ)
	if !known(rt) {
		return &models.Unrecognized{Type: typ, Data: env.Data}, nil
	}
	if isNull(env.Data) {
		return nil, errors.MalformedCode(errors.CodeMissingData, "%s record has no data", typ).
			WithContext("record_type", typ)
	}
	if trimmed := bytes.TrimSpace(env.Data); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.MalformedCode(errors.CodeBadShape, "%s record data must be an object", typ).
			WithContext("record_type", typ)
	}

	rec, err := d.decodeData(rt, env.Data)
	if err != nil {
		return nil, errors.MalformedCode(errors.CodeBadShape, "%s record: %v", typ, err).
			WithContext("record_type", typ)
	}
	return rec, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func known(rt models.RecordType) bool {
	switch rt {
	case models.RecordNode, models.RecordEdge, models.RecordEdgeOccurrence,
		models.RecordFlowEntrypoint, models.RecordFlowGraph,
		models.RecordDependencyManifest, models.RecordDeclaredDependency, models.RecordObservedDependency,
		models.RecordDependencyMismatch, models.RecordIndexDiagnostic, models.RecordUnresolvedImport:
		return true
	}
	return false
}

func (d *Decoder) decodeData(rt models.RecordType, data json.RawMessage) (models.Record, error) {
	switch rt {
	case models.RecordNode:
		var n models.Node
		if err := d.sanitized(data, nodeKeep, backfillSignatureHash, &n); err != nil {
			return nil, err
		}
		return &n, nil
	case models.RecordEdge:
		var e models.Edge
		if err := d.sanitized(data, edgeKeep, nil, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case models.RecordEdgeOccurrence:
		var o models.EdgeOccurrence
		if err := d.sanitized(data, occurrenceKeep, nil, &o); err != nil {
			return nil, err
		}
		return &o, nil
	case models.RecordFlowEntrypoint:
		var ep models.FlowEntrypoint
		if err := json.Unmarshal(data, &ep); err != nil {
			return nil, err
		}
		ep.Metadata = d.redactor.Value(ep.Metadata)
		return &ep, nil
	case models.RecordFlowGraph:
		var fg models.FlowGraph
		if err := json.Unmarshal(data, &fg); err != nil {
			return nil, err
		}
		return &fg, nil
	case models.RecordDependencyManifest:
		var m models.DependencyManifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		m.Metadata = d.redactor.Value(m.Metadata)
		return &m, nil
	case models.RecordDeclaredDependency:
		var dep models.DeclaredDependency
		if err := json.Unmarshal(data, &dep); err != nil {
			return nil, err
		}
		return &dep, nil
	case models.RecordObservedDependency:
		var dep models.ObservedDependency
		if err := json.Unmarshal(data, &dep); err != nil {
			return nil, err
		}
		return &dep, nil
	case models.RecordDependencyMismatch:
		var m models.DependencyMismatch
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		m.Details = d.redactor.Value(m.Details)
		m.Source = models.MismatchSourceIndexer
		return &m, nil
	case models.RecordIndexDiagnostic:
		var diag models.IndexDiagnostic
		if err := json.Unmarshal(data, &diag); err != nil {
			return nil, err
		}
		diag.Metadata = d.redactor.Value(diag.Metadata)
		return &diag, nil
	case models.RecordUnresolvedImport:
		var u models.UnresolvedImport
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, err
		}
		u.Reason = d.redactor.String(u.Reason)
		return &u, nil
	}
	return nil, nil
}

// sanitized redacts the payload as a generic object, then decodes the result
// into out. pre sees the raw object before redaction.
func (d *Decoder) sanitized(data json.RawMessage, keep map[string]bool, pre func(map[string]interface{}), out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if pre != nil {
		pre(raw)
	}
	clean, err := json.Marshal(d.redactor.Fields(raw, keep))
	if err != nil {
		return err
	}
	return json.Unmarshal(clean, out)
}

// backfillSignatureHash derives signatureHash from the raw signature when the
// indexer left it empty, before the signature itself is redacted
func backfillSignatureHash(raw map[string]interface{}) {
	if h, _ := raw["signatureHash"].(string); h != "" {
		return
	}
	sig, _ := raw["signature"].(string)
	if sig == "" {
		return
	}
	raw["signatureHash"] = identity.ComputeSignatureHash(sig)
}
