// Package artifact owns the session-scoped temporary files produced by a
// conversion: the staged upload, the extracted images, and the final
// deliverable. Reads of previously stored artifacts go through Resolver.
package artifact

import (
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Mode selects how WriteOutput delivers the final artifact.
type Mode int

const (
	// ModeDisk writes deliverables under the public directory and returns a
	// relative URL the browser can fetch.
	ModeDisk Mode = iota
	// ModeInline base64-encodes deliverables into a data URL. Used when the
	// execution environment has no filesystem that survives across requests.
	ModeInline
)

func (m Mode) String() string {
	if m == ModeInline {
		return "inline"
	}
	return "disk"
}

// Image is one extracted image in the converter's intermediate location,
// waiting to be copied into the session's public directory.
type Image struct {
	SourcePath string
	Name       string
}

var disallowedNameRunes = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeName reduces an arbitrary client-supplied filename to a safe base
// name: directory components stripped, unknown runes collapsed to underscores.
func sanitizeName(raw string) string {
	name := filepath.Base(filepath.ToSlash(raw))
	name = disallowedNameRunes.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._-")
	if name == "" {
		name = "upload"
	}
	if len(name) > 120 {
		name = name[len(name)-120:]
	}
	return name
}

// Store lays out session directories under a single data root:
//
//	<dataDir>/staging/<session>           staged upload + converter scratch
//	<dataDir>/staging/<session>/images    intermediate image extraction
//	<dataDir>/public/<session>            servable artifacts (resolver sandbox)
type Store struct {
	dataDir string
	mode    Mode
}

func NewStore(dataDir string, mode Mode) *Store {
	return &Store{dataDir: dataDir, mode: mode}
}

// DetectMode probes the environment once at startup: serverless signals or an
// uncreatable public directory force inline delivery.
func DetectMode(dataDir string) Mode {
	if os.Getenv("VERCEL") != "" || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" || os.Getenv("DOCMARK_INLINE") != "" {
		return ModeInline
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "public"), 0o755); err != nil {
		log.Printf("public dir unavailable, forcing inline mode: %v", err)
		return ModeInline
	}
	return ModeDisk
}

func (s *Store) Mode() Mode { return s.mode }

// StagingRoot is swept by the retention sweeper alongside PublicRoot.
func (s *Store) StagingRoot() string { return filepath.Join(s.dataDir, "staging") }
func (s *Store) PublicRoot() string  { return filepath.Join(s.dataDir, "public") }

func (s *Store) stagingDir(sessionID string) string {
	return filepath.Join(s.StagingRoot(), sessionID)
}

func (s *Store) publicDir(sessionID string) string {
	return filepath.Join(s.PublicRoot(), sessionID)
}

// ImageDir is the intermediate directory handed to the converter for image
// extraction. It lives under staging so Cleanup reclaims it.
func (s *Store) ImageDir(sessionID string) string {
	return filepath.Join(s.stagingDir(sessionID), "images")
}

// StageInput writes the raw upload under the session's private staging
// directory and returns its path. Staging failures are fatal to the request:
// nothing downstream can run without the input file.
func (s *Store) StageInput(sessionID, filename string, src io.Reader) (string, error) {
	dir := s.stagingDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	dest := filepath.Join(dir, sanitizeName(filename))
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("stage input: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("stage input: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("stage input: %w", err)
	}
	return dest, nil
}

// PersistImages copies extracted images into the session's public image
// directory. One unreadable image does not abort the rest: it is logged,
// counted as skipped, and the conversion stays usable.
func (s *Store) PersistImages(sessionID string, images []Image) (persisted []string, skipped int) {
	if len(images) == 0 {
		return nil, 0
	}
	destDir := filepath.Join(s.publicDir(sessionID), "images")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		log.Printf("create image dir for session %s failed: %v", sessionID, err)
		return nil, len(images)
	}
	for _, img := range images {
		name := img.Name
		if name == "" {
			name = filepath.Base(img.SourcePath)
		}
		name = sanitizeName(name)
		if err := copyFile(img.SourcePath, filepath.Join(destDir, name)); err != nil {
			log.Printf("persist image %s for session %s failed: %v", img.SourcePath, sessionID, err)
			skipped++
			continue
		}
		persisted = append(persisted, name)
	}
	return persisted, skipped
}

// PublicImagePath returns where a persisted image lives on disk.
func (s *Store) PublicImagePath(sessionID, name string) string {
	return filepath.Join(s.publicDir(sessionID), "images", name)
}

// WriteOutput persists the final deliverable and returns the URL the client
// uses to fetch it. In disk mode that is a relative serve-artifact URL; in
// inline mode the bytes are embedded in a data URL and nothing touches disk.
func (s *Store) WriteOutput(sessionID, name string, data []byte) (string, error) {
	name = sanitizeName(name)
	if s.mode == ModeInline {
		return "data:" + outputMIME(name) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	}
	dir := s.publicDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create public dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return "/api/serve-artifact?session=" + sessionID + "&path=" + name, nil
}

// OutputFile opens the final deliverable for streaming writes. Disk mode
// only; the packager streams archives through it so large image sets never
// sit in memory.
func (s *Store) OutputFile(sessionID, name string) (*os.File, string, error) {
	if s.mode != ModeDisk {
		return nil, "", fmt.Errorf("output file requires disk mode")
	}
	name = sanitizeName(name)
	dir := s.publicDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create public dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, "", fmt.Errorf("create output: %w", err)
	}
	return f, "/api/serve-artifact?session=" + sessionID + "&path=" + name, nil
}

// Cleanup removes the session's staging tree, converter scratch included.
// Tolerant of partial state: already-deleted and never-created targets are
// not errors, so calling it twice is a no-op.
func (s *Store) Cleanup(sessionID string) {
	if sessionID == "" {
		return
	}
	if err := os.RemoveAll(s.stagingDir(sessionID)); err != nil {
		log.Printf("cleanup session %s staging failed: %v", sessionID, err)
	}
}

func outputMIME(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return "application/zip"
	case ".md":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
