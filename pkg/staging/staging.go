// Package staging manages the local scratch tree where flow archives are
// downloaded, extracted, and lined up for upload. Everything under the
// staging root is disposable: it is purged after confirmed upload and can
// be deleted wholesale between runs without losing durable state.
package staging

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	perrors "flowvault/pkg/errors"
	"flowvault/pkg/logger"
	"flowvault/pkg/models"
	"flowvault/pkg/storage"
)

// Manager owns the staging root and the per-app/per-flow layout inside it:
//
//	{root}/downloads/{appID}/{flowID}.zip
//	{root}/extracted/{appID}/{flowID}/...
type Manager struct {
	root   string
	logger logger.Logger
}

// NewManager creates the staging root if needed.
func NewManager(root string, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, classifyDiskError(err, "failed to create staging directory")
	}
	return &Manager{root: root, logger: log}, nil
}

// Root returns the staging root directory.
func (m *Manager) Root() string {
	return m.root
}

// ArchivePath returns where a flow's downloaded archive lives.
func (m *Manager) ArchivePath(appID, flowID string) string {
	return filepath.Join(m.root, "downloads", appID, flowID+".zip")
}

// ExtractedDir returns where a flow's archive contents are unpacked.
func (m *Manager) ExtractedDir(appID, flowID string) string {
	return filepath.Join(m.root, "extracted", appID, flowID)
}

// MetadataPath returns where the app's flows document is written before upload.
func (m *Manager) MetadataPath(appID string) string {
	return filepath.Join(m.root, "extracted", appID, appID+"_flows.json")
}

// PrepareFlow makes the download and extraction directories for one flow.
func (m *Manager) PrepareFlow(appID, flowID string) error {
	for _, dir := range []string{
		filepath.Join(m.root, "downloads", appID),
		m.ExtractedDir(appID, flowID),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return classifyDiskError(err, "failed to prepare staging directories")
		}
	}
	return nil
}

// WriteArchive streams an archive into staging atomically: the final path
// appears only once the whole body has been written.
func (m *Manager) WriteArchive(appID, flowID string, body io.Reader) (string, error) {
	target := m.ArchivePath(appID, flowID)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", classifyDiskError(err, "failed to create download directory")
	}

	tempPath := target + ".part"
	out, err := os.Create(tempPath)
	if err != nil {
		return "", classifyDiskError(err, "failed to create archive file")
	}

	written, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(tempPath)
		return "", perrors.Transient(copyErr, "failed to write archive body")
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return "", classifyDiskError(closeErr, "failed to close archive file")
	}
	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return "", classifyDiskError(err, "failed to finalize archive file")
	}

	m.logger.DebugWithFields("archive written", map[string]interface{}{
		"app_id":  appID,
		"flow_id": flowID,
		"bytes":   written,
	})
	return target, nil
}

// HasRetainedArchive reports whether a previous run left a readable,
// non-empty archive for the flow, letting a rerun skip the download. An
// unreadable leftover is ignored so the flow downloads a fresh copy.
func (m *Manager) HasRetainedArchive(appID, flowID string) bool {
	reader, err := zip.OpenReader(m.ArchivePath(appID, flowID))
	if err != nil {
		if reader != nil {
			reader.Close()
		}
		return false
	}
	defer reader.Close()
	return len(reader.File) > 0
}

// Extract unpacks a flow archive into its extraction directory and returns
// the number of files extracted. A corrupt archive is a flow-level failure
// and the archive file is kept on disk for inspection. An archive with no
// extractable files is also a flow-level failure.
func (m *Manager) Extract(appID, flowID string) (int, error) {
	archivePath := m.ArchivePath(appID, flowID)
	destDir := m.ExtractedDir(appID, flowID)

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		if reader != nil {
			reader.Close()
		}
		switch {
		case errors.Is(err, zip.ErrFormat):
			return 0, perrors.TerminalFlow(err, "archive is not a valid zip")
		case errors.Is(err, zip.ErrInsecurePath):
			return 0, perrors.TerminalFlow(err, "archive contains insecure entry paths")
		default:
			return 0, classifyDiskError(err, "failed to open archive")
		}
	}
	defer reader.Close()

	count := 0
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		if err := m.extractFile(file, destDir); err != nil {
			return count, err
		}
		count++
	}

	if count == 0 {
		return 0, perrors.New(perrors.KindTerminalFlow, "archive contains no files")
	}

	m.logger.InfoWithFields("archive extracted", map[string]interface{}{
		"app_id":  appID,
		"flow_id": flowID,
		"files":   count,
	})
	return count, nil
}

func (m *Manager) extractFile(file *zip.File, destDir string) error {
	// Reject entries that would escape the extraction directory.
	target := filepath.Join(destDir, filepath.FromSlash(file.Name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return perrors.New(perrors.KindTerminalFlow,
			fmt.Sprintf("archive entry %q escapes extraction directory", file.Name))
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return classifyDiskError(err, "failed to create extraction directory")
	}

	in, err := file.Open()
	if err != nil {
		return perrors.TerminalFlow(err, "failed to read archive entry")
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return classifyDiskError(err, "failed to create extracted file")
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(target)
		return perrors.TerminalFlow(copyErr, "failed to decompress archive entry")
	}
	if closeErr != nil {
		os.Remove(target)
		return classifyDiskError(closeErr, "failed to close extracted file")
	}
	return nil
}

// StageFlow walks a flow's extracted tree and builds the upload manifest:
// every extracted file plus the original archive, with their storage keys.
// Files are ordered lexicographically by relative path so upload order is
// stable across runs.
func (m *Manager) StageFlow(keyPrefix, appID, flowID string) ([]models.StagedFile, error) {
	destDir := m.ExtractedDir(appID, flowID)

	var staged []models.StagedFile
	err := filepath.Walk(destDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(destDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		staged = append(staged, models.StagedFile{
			LocalPath: path,
			Key:       storage.AssetKey(keyPrefix, appID, flowID, rel),
			Kind:      models.KindScreenshot,
			AppID:     appID,
			FlowID:    flowID,
		})
		return nil
	})
	if err != nil {
		return nil, classifyDiskError(err, "failed to walk extracted files")
	}

	sort.Slice(staged, func(i, j int) bool {
		return staged[i].Key < staged[j].Key
	})

	archivePath := m.ArchivePath(appID, flowID)
	if _, err := os.Stat(archivePath); err == nil {
		staged = append(staged, models.StagedFile{
			LocalPath: archivePath,
			Key:       storage.ArchiveKey(keyPrefix, appID, flowID),
			Kind:      models.KindArchive,
			AppID:     appID,
			FlowID:    flowID,
		})
	}
	return staged, nil
}

// PurgeFlow removes a flow's archive and extracted tree after its uploads
// are confirmed.
func (m *Manager) PurgeFlow(appID, flowID string) error {
	if err := os.RemoveAll(m.ExtractedDir(appID, flowID)); err != nil {
		return classifyDiskError(err, "failed to remove extracted files")
	}
	if err := os.Remove(m.ArchivePath(appID, flowID)); err != nil && !os.IsNotExist(err) {
		return classifyDiskError(err, "failed to remove archive")
	}
	m.logger.DebugWithFields("staging purged", map[string]interface{}{
		"app_id":  appID,
		"flow_id": flowID,
	})
	return nil
}

// PurgeApp removes everything staged for an app.
func (m *Manager) PurgeApp(appID string) error {
	for _, dir := range []string{
		filepath.Join(m.root, "downloads", appID),
		filepath.Join(m.root, "extracted", appID),
	} {
		if err := os.RemoveAll(dir); err != nil {
			return classifyDiskError(err, "failed to purge app staging")
		}
	}
	return nil
}

// classifyDiskError maps filesystem failures onto the error taxonomy: a
// full disk stops the whole run, anything else fails the current app.
func classifyDiskError(err error, message string) *perrors.Error {
	if errors.Is(err, syscall.ENOSPC) {
		return perrors.Fatal(err, message+": disk full")
	}
	return perrors.TerminalApp(err, message)
}
