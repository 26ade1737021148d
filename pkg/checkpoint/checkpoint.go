// Package checkpoint persists app- and flow-level completion state so an
// interrupted run resumes without redoing confirmed work.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"flowvault/pkg/logger"
)

// Status is the completion state of one app or one flow.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is the recorded state for a single app or flow.
type Entry struct {
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completed reports whether the entry confirms durably finished work.
func (e Entry) Completed() bool {
	return e.Status == StatusCompleted
}

// Failed reports whether the entry records a permanent failure.
func (e Entry) Failed() bool {
	return e.Status == StatusFailed
}

const documentVersion = 1

// appsDocument and flowsDocument are the two durable records. Each is
// written as a whole document; run frequency makes partial updates not
// worth the complexity.
type appsDocument struct {
	Version   int              `json:"version"`
	Apps      map[string]Entry `json:"apps"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type flowsDocument struct {
	Version   int                         `json:"version"`
	Flows     map[string]map[string]Entry `json:"flows"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// Store is the durable checkpoint record. Single writer: the pipeline
// orchestrator. Reads for resume happen at construction, before any
// concurrent work begins.
type Store struct {
	appsPath  string
	flowsPath string
	apps      map[string]Entry
	flows     map[string]map[string]Entry
	logger    logger.Logger
}

// NewStore opens (or creates) the checkpoint directory and loads the last
// flushed state. A torn or unreadable document from a prior crash is
// treated as empty: redo is safe, silent skip is not.
func NewStore(dir string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	s := &Store{
		appsPath:  filepath.Join(dir, "apps_progress.json"),
		flowsPath: filepath.Join(dir, "flows_progress.json"),
		logger:    log,
	}

	var appsDoc appsDocument
	if loadDocument(s.appsPath, &appsDoc, log) && appsDoc.Apps != nil {
		s.apps = appsDoc.Apps
	} else {
		s.apps = make(map[string]Entry)
	}

	var flowsDoc flowsDocument
	if loadDocument(s.flowsPath, &flowsDoc, log) && flowsDoc.Flows != nil {
		s.flows = flowsDoc.Flows
	} else {
		s.flows = make(map[string]map[string]Entry)
	}

	return s, nil
}

// loadDocument reads one checkpoint document. Returns false when the file
// is missing or unreadable; unreadable files are logged and discarded.
func loadDocument(path string, target interface{}, log logger.Logger) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WarnWithFields("checkpoint unreadable, starting fresh", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
		return false
	}
	if err := json.Unmarshal(data, target); err != nil {
		log.WarnWithFields("checkpoint corrupt, treating all work as pending", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// AppStatus returns the recorded state for an app, pending if unknown.
func (s *Store) AppStatus(appID string) Entry {
	if e, ok := s.apps[appID]; ok {
		return e
	}
	return Entry{Status: StatusPending}
}

// Apps returns a copy of all recorded app entries.
func (s *Store) Apps() map[string]Entry {
	out := make(map[string]Entry, len(s.apps))
	for k, v := range s.apps {
		out[k] = v
	}
	return out
}

// FlowStatus returns the recorded state for a flow, pending if unknown.
func (s *Store) FlowStatus(appID, flowID string) Entry {
	if flows, ok := s.flows[appID]; ok {
		if e, ok := flows[flowID]; ok {
			return e
		}
	}
	return Entry{Status: StatusPending}
}

// FlowStatuses returns a copy of all recorded flow entries for an app.
func (s *Store) FlowStatuses(appID string) map[string]Entry {
	out := make(map[string]Entry)
	for k, v := range s.flows[appID] {
		out[k] = v
	}
	return out
}

// RecordApp updates an app entry and flushes the app document to stable
// storage before returning. The caller must not proceed to the next unit
// of work until this returns.
func (s *Store) RecordApp(appID string, status Status, reason string) error {
	s.apps[appID] = Entry{Status: status, Reason: reason, UpdatedAt: time.Now()}
	return s.flushApps()
}

// RecordFlow updates a flow entry and flushes the flow document.
func (s *Store) RecordFlow(appID, flowID string, status Status, reason string) error {
	if s.flows[appID] == nil {
		s.flows[appID] = make(map[string]Entry)
	}
	s.flows[appID][flowID] = Entry{Status: status, Reason: reason, UpdatedAt: time.Now()}
	return s.flushFlows()
}

// Reset removes both checkpoint documents (force restart).
func (s *Store) Reset() error {
	s.apps = make(map[string]Entry)
	s.flows = make(map[string]map[string]Entry)
	for _, path := range []string{s.appsPath, s.flowsPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove checkpoint %s: %w", path, err)
		}
	}
	s.logger.Info("checkpoints cleared")
	return nil
}

func (s *Store) flushApps() error {
	doc := appsDocument{Version: documentVersion, Apps: s.apps, UpdatedAt: time.Now()}
	return writeDocument(s.appsPath, &doc)
}

func (s *Store) flushFlows() error {
	doc := flowsDocument{Version: documentVersion, Flows: s.flows, UpdatedAt: time.Now()}
	return writeDocument(s.flowsPath, &doc)
}

// writeDocument persists a document atomically: write to a temp file,
// fsync, then rename over the old document. A crash mid-write leaves the
// previous document intact.
func writeDocument(path string, doc interface{}) error {
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}
