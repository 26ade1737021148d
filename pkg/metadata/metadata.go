// Package metadata builds and persists the per-app flows document, the
// JSON record that accompanies every upload batch so the archive is
// self-describing.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"flowvault/pkg/models"
)

// Document is the per-app flows record stored alongside the extracted
// assets. It is rebuilt from scratch on every flow completion so it always
// reflects everything archived so far.
type Document struct {
	AppName   string        `json:"app_name"`
	AppURL    string        `json:"app_url"`
	Timestamp string        `json:"timestamp"`
	Flows     []models.Flow `json:"flows"`
}

// Build assembles the document for an app from the flows archived so far.
// Flow order is preserved from the caller.
func Build(app models.App, flows []models.Flow, ts time.Time) *Document {
	doc := &Document{
		AppName:   app.Title,
		AppURL:    app.URL,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Flows:     make([]models.Flow, len(flows)),
	}
	copy(doc.Flows, flows)
	return doc
}

// Save writes the document to path as indented JSON.
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flows document: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write flows document: %w", err)
	}
	return nil
}

// Load reads a document back from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flows document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse flows document: %w", err)
	}
	return &doc, nil
}
