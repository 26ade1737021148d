package models

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"flowvault/pkg/errors"
)

// App is one source-site application listing. Immutable once loaded.
type App struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// ID returns the filesystem/object-key-safe identifier for the app.
func (a App) ID() string {
	return SafeID(a.Title)
}

// BoundingBox locates an annotation on a screen.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Annotation is a labeled region on a screen.
type Annotation struct {
	ID          string      `json:"annotation_id"`
	Type        string      `json:"annotation_type"`
	Box         BoundingBox `json:"box"`
	Description string      `json:"description,omitempty"`
}

// Screen is one screen inside a flow, in capture order.
type Screen struct {
	ID             string       `json:"screen_id"`
	Name           string       `json:"screen_name"`
	URL            string       `json:"screen_url"`
	ScreenshotPath string       `json:"screenshot_path,omitempty"`
	Order          int          `json:"order"`
	Annotations    []Annotation `json:"annotations,omitempty"`
}

// Transition links two screens within a flow.
type Transition struct {
	FromScreenID string `json:"from_screen_id"`
	ToScreenID   string `json:"to_screen_id"`
	Type         string `json:"transition_type"`
	Description  string `json:"description,omitempty"`
}

// Flow is the unit of download/extract/upload. Metadata is immutable once
// extracted; only the checkpoint status of a flow changes.
type Flow struct {
	ID            string       `json:"flow_id"`
	Name          string       `json:"flow_name"`
	URL           string       `json:"flow_url"`
	Screens       []Screen     `json:"screens,omitempty"`
	Transitions   []Transition `json:"transitions,omitempty"`
	ArchivePath   string       `json:"zip_path,omitempty"`
	ExtractedPath string       `json:"extracted_path,omitempty"`
}

// Validate rejects malformed flow records at the acquisition boundary.
// Invalid records fail the flow, never the app.
func (f *Flow) Validate() error {
	if f.Name == "" {
		return errors.New(errors.KindTerminalFlow, "flow record missing name")
	}
	if f.URL == "" {
		return errors.New(errors.KindTerminalFlow, fmt.Sprintf("flow %q missing source URL", f.Name))
	}
	if f.ID == "" {
		f.ID = SafeID(f.Name)
	}
	for i := range f.Screens {
		if f.Screens[i].ID == "" {
			return errors.New(errors.KindTerminalFlow, fmt.Sprintf("flow %q screen %d missing id", f.Name, i))
		}
	}
	for _, tr := range f.Transitions {
		if tr.FromScreenID == "" || tr.ToScreenID == "" {
			return errors.New(errors.KindTerminalFlow, fmt.Sprintf("flow %q has a transition missing an endpoint", f.Name))
		}
	}
	return nil
}

// FileKind tags a staged object for content-type and metadata purposes.
type FileKind string

const (
	KindMetadata   FileKind = "metadata"
	KindScreenshot FileKind = "screenshot"
	KindArchive    FileKind = "archive"
)

// StagedFile is a local file awaiting confirmed durable storage. It exists
// only between extraction and upload; it is deleted on confirmed success.
type StagedFile struct {
	LocalPath string
	Key       string
	Kind      FileKind
	AppID     string
	FlowID    string
}

const maxIDLength = 200

// SafeID normalizes a title into a filesystem/object-key-safe token:
// spaces become underscores, path separators and colons become
// underscores, everything outside [alnum _ - .] is dropped, capped at 200.
func SafeID(title string) string {
	s := strings.TrimSpace(title)
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_")
	s = replacer.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_', r == '-', r == '.':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxIDLength {
		out = out[:maxIDLength]
	}
	return out
}

// LoadApps reads the app input list, preserving listing order.
func LoadApps(path string) ([]App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read apps file: %w", err)
	}

	var apps []App
	if err := json.Unmarshal(data, &apps); err != nil {
		return nil, fmt.Errorf("failed to parse apps file: %w", err)
	}

	for i, app := range apps {
		if app.Title == "" {
			return nil, fmt.Errorf("app at index %d missing title", i)
		}
		if app.URL == "" {
			return nil, fmt.Errorf("app %q missing url", app.Title)
		}
	}
	return apps, nil
}
