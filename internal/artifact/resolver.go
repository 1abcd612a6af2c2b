package artifact

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docmark/internal/models"
	"docmark/internal/session"
)

// layoutCandidates are the sub-layouts tried, in priority order, when serving
// an artifact. Earlier deployments wrote images directly into the session
// root or under artifacts/; the fallbacks keep those sessions servable.
// Compatibility debt, not design.
var layoutCandidates = []string{"", "images", "artifacts"}

// Resolver maps (session id, requested path) pairs onto files inside the
// session's sandbox directory. Every read of a stored artifact goes through
// here; it is the path-traversal and expiry gate.
type Resolver struct {
	root   string
	window time.Duration
	now    func() time.Time

	// deleter receives expired session directories. Detached by default so
	// the caller never waits on deletion; tests inject a synchronous hook.
	deleter func(dir string)
}

func NewResolver(root string, window time.Duration) *Resolver {
	if window <= 0 {
		window = session.DefaultRetention
	}
	r := &Resolver{root: root, window: window, now: time.Now}
	r.deleter = func(dir string) {
		go func() {
			if err := os.RemoveAll(dir); err != nil {
				log.Printf("remove expired session dir %s failed: %v", dir, err)
			}
		}()
	}
	return r
}

// SetDeleter replaces the detached deletion hook. Used by tests to run
// expiry deletion synchronously.
func (r *Resolver) SetDeleter(fn func(dir string)) {
	if fn != nil {
		r.deleter = fn
	}
}

// SetClock overrides the time source. Test hook.
func (r *Resolver) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Resolve validates the session id, checks expiry, sanitizes the requested
// path down to its base name, and returns the first existing layout
// candidate. Validation happens before any filesystem access so forged
// tokens cannot probe the disk.
func (r *Resolver) Resolve(sessionID, requested string) (string, error) {
	if _, err := session.Parse(sessionID); err != nil {
		return "", err
	}
	if session.Expired(sessionID, r.window, r.now()) {
		// Reclaim eagerly; the response does not wait for it.
		r.deleter(filepath.Join(r.root, sessionID))
		return "", models.ErrExpiredSession
	}

	name := filepath.Base(filepath.ToSlash(requested))
	if name != requested || name == "" || name == "." || name == string(filepath.Separator) || strings.Contains(name, "..") {
		return "", models.ErrInvalidPath
	}

	sandbox := filepath.Join(r.root, sessionID)
	for _, sub := range layoutCandidates {
		candidate := filepath.Join(sandbox, sub, name)
		if rel, err := filepath.Rel(sandbox, candidate); err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", models.ErrArtifactNotFound
}
