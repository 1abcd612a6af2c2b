// Package session mints and validates the time-prefixed tokens that scope all
// temporary artifacts of one conversion request.
package session

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"docmark/internal/models"
)

const (
	// DefaultRetention is how long a session's artifacts stay servable.
	DefaultRetention = time.Hour

	suffixLen      = 8
	suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// idPattern gates every externally supplied session id before it is allowed
// anywhere near the filesystem.
var idPattern = regexp.MustCompile(`^\d+-[A-Za-z0-9]+$`)

// New returns a fresh session id of the form <unixMillis>-<randomSuffix>.
// Uniqueness needs no coordination: a collision requires the same millisecond
// and the same 8-char suffix, and would only overwrite artifacts of an
// identically-timed request.
func New() string {
	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; fall back to a
		// nanosecond tail so ids stay well-formed.
		return fmt.Sprintf("%d-%08d", time.Now().UnixMilli(), time.Now().UnixNano()%1e8)
	}
	var b strings.Builder
	b.Grow(suffixLen)
	for _, c := range buf {
		b.WriteByte(suffixAlphabet[int(c)%len(suffixAlphabet)])
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), b.String())
}

// Parse validates the id format and extracts the creation time from the
// numeric prefix.
func Parse(id string) (time.Time, error) {
	if !idPattern.MatchString(id) {
		return time.Time{}, models.ErrInvalidSession
	}
	millis, err := strconv.ParseInt(id[:strings.IndexByte(id, '-')], 10, 64)
	if err != nil {
		return time.Time{}, models.ErrInvalidSession
	}
	return time.UnixMilli(millis), nil
}

// Expired reports whether the session identified by id has outlived window as
// of now. Malformed ids are treated as expired.
func Expired(id string, window time.Duration, now time.Time) bool {
	createdAt, err := Parse(id)
	if err != nil {
		return true
	}
	return now.Sub(createdAt) > window
}
