package storage

import "github.com/rohankatakam/cigraph/internal/models"

// cloneValue deep-copies decoded JSON values so stored rows never alias caller memory
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, x := range t {
			out[k] = cloneValue(x)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneNode(n *models.Node) *models.Node {
	c := *n
	c.Contract = cloneValue(n.Contract)
	c.Constraints = cloneValue(n.Constraints)
	c.AllowableValues = cloneValue(n.AllowableValues)
	c.ExternalRef = cloneValue(n.ExternalRef)
	if n.Embedding != nil {
		c.Embedding = append([]float32(nil), n.Embedding...)
	}
	return &c
}

func cloneEdge(e *models.Edge) *models.Edge {
	c := *e
	c.Metadata = cloneValue(e.Metadata)
	return &c
}

func cloneOccurrence(o *models.EdgeOccurrence) *models.EdgeOccurrence {
	c := *o
	c.Metadata = cloneValue(o.Metadata)
	return &c
}

func cloneEntrypoint(ep *models.FlowEntrypoint) *models.FlowEntrypoint {
	c := *ep
	c.Metadata = cloneValue(ep.Metadata)
	return &c
}

func cloneFlowGraph(fg *models.FlowGraph) *models.FlowGraph {
	c := *fg
	c.NodeUIDs = cloneStrings(fg.NodeUIDs)
	c.EdgeKeys = cloneStrings(fg.EdgeKeys)
	return &c
}

func cloneManifest(m *models.DependencyManifest) *models.DependencyManifest {
	c := *m
	c.Metadata = cloneValue(m.Metadata)
	return &c
}

func cloneMismatch(m *models.DependencyMismatch) *models.DependencyMismatch {
	c := *m
	c.Details = cloneValue(m.Details)
	return &c
}

func cloneDiagnostic(d *models.IndexDiagnostic) *models.IndexDiagnostic {
	c := *d
	c.Metadata = cloneValue(d.Metadata)
	return &c
}
