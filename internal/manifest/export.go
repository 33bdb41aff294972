package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"edge-lab/internal/domain"
)

// Document is the stable shape handed to the trading-decision layer and the
// documentation generator.
type Document struct {
	GeneratedAtMs int64  `yaml:"generated_at_ms"`
	Edges         []Edge `yaml:"edges"`
}

// Edge is one exported manifest entry.
type Edge struct {
	EdgeCode     string                 `yaml:"edge_code"`
	ParamHash    string                 `yaml:"param_hash"`
	LineageHash  string                 `yaml:"lineage_hash"`
	Version      int                    `yaml:"version"`
	Revision     int                    `yaml:"revision"`
	Instrument   string                 `yaml:"instrument"`
	Status       domain.ManifestStatus  `yaml:"status"`
	ApprovedAtMs int64                  `yaml:"approved_at_ms"`
	Rules        domain.RuleSetDoc      `yaml:"rules"`
	Metrics      domain.MetricsSnapshot `yaml:"metrics"`
	Synced       map[string]bool        `yaml:"synced"`
}

// NewDocument converts entries into the export shape, preserving order.
func NewDocument(entries []*domain.ManifestEntry, generatedAtMs int64) Document {
	doc := Document{GeneratedAtMs: generatedAtMs, Edges: make([]Edge, 0, len(entries))}
	for _, e := range entries {
		doc.Edges = append(doc.Edges, Edge{
			EdgeCode:     e.EdgeCode,
			ParamHash:    e.ParamHash,
			LineageHash:  e.LineageHash,
			Version:      e.Version,
			Revision:     e.Spec.Revision,
			Instrument:   e.Spec.Instrument,
			Status:       e.Status,
			ApprovedAtMs: e.ApprovedAtMs,
			Rules:        e.Spec.RuleDoc(),
			Metrics:      e.Metrics,
			Synced:       e.SyncFlags,
		})
	}
	return doc
}

// MarshalYAML encodes entries as a YAML document.
func MarshalYAML(entries []*domain.ManifestEntry, generatedAtMs int64) ([]byte, error) {
	out, err := yaml.Marshal(NewDocument(entries, generatedAtMs))
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return out, nil
}

// UnmarshalYAML decodes an exported document.
func UnmarshalYAML(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return doc, nil
}
