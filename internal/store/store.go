// Package store persists the board and manifest documents. Every write goes
// through an exclusive per-key lock held across read-modify-write, so
// concurrent CLI processes and UI sessions never lose an update.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
)

// Key names one stored document, e.g. "boards/alpha".
type Key string

const (
	boardPrefix    = "boards"
	manifestPrefix = "manifests"
)

// BoardKey is the key of a team's board document.
func BoardKey(team string) Key {
	return Key(boardPrefix + "/" + strings.ToLower(team))
}

// ManifestKey is the key of a release manifest owned by team.
func ManifestKey(team, releaseID string) Key {
	return Key(manifestPrefix + "/" + strings.ToLower(team) + "/" + strings.ToUpper(releaseID))
}

// ManifestPrefix is the List prefix covering every manifest of team.
func ManifestPrefix(team string) string {
	return manifestPrefix + "/" + strings.ToLower(team) + "/"
}

// Kind labels a key for metrics and logs.
func (k Key) Kind() string {
	switch {
	case strings.HasPrefix(string(k), boardPrefix+"/"):
		return "board"
	case strings.HasPrefix(string(k), manifestPrefix+"/"):
		return "manifest"
	default:
		return "other"
	}
}

// Base returns the last path component of the key.
func (k Key) Base() string {
	s := string(k)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (k Key) valid() bool {
	s := string(k)
	if s == "" || strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return false
	}
	for _, part := range strings.Split(s, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

var (
	// ErrNoChange returned from an update function releases the lock without
	// writing anything.
	ErrNoChange = errors.New("store: no change")

	// ErrNotExist is returned by Read for a key that was never written.
	ErrNotExist = errors.New("store: key does not exist")

	// ErrLockTimeout means a lock could not be acquired within the retry
	// policy. It matches domain.ErrLockTimeout.
	ErrLockTimeout = domain.ErrLockTimeout
)

// LockTimeoutError reports which key stayed busy and for how long.
type LockTimeoutError struct {
	Key    Key
	Waited time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock on %s still held after %s; retry shortly", e.Key, e.Waited.Round(time.Millisecond))
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// UpdateFunc receives the current document (nil when absent) and returns the
// document to persist.
type UpdateFunc func(current []byte) ([]byte, error)

// UpdateManyFunc receives the current documents of every requested key
// (absent keys map to nil) and returns the documents to persist. Keys left out
// of the result are not written.
type UpdateManyFunc func(current map[Key][]byte) (map[Key][]byte, error)

// Store is the locking document store shared by every process that touches a
// board.
type Store interface {
	// Read returns the last fully written document without locking.
	Read(ctx context.Context, key Key) ([]byte, error)
	// Update runs fn under the key's exclusive lock. If fn fails nothing is
	// written.
	Update(ctx context.Context, key Key, fn UpdateFunc) error
	// UpdateMany locks every key in sorted order, runs fn once, and writes
	// the results in the same order. A failed write restores the keys already
	// written before the error is returned.
	UpdateMany(ctx context.Context, keys []Key, fn UpdateManyFunc) error
	// List returns the keys under prefix in sorted order.
	List(ctx context.Context, prefix string) ([]Key, error)
	Close() error
}

// sortedKeys returns the distinct keys in lock order. "boards/..." sorts
// before "manifests/...", so a board is always locked before its manifests.
func sortedKeys(keys []Key) ([]Key, error) {
	seen := make(map[Key]bool, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if !k.valid() {
			return nil, fmt.Errorf("store: invalid key %q", k)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// checkResult rejects documents for keys that were not locked.
func checkResult(locked []Key, next map[Key][]byte) error {
	allowed := make(map[Key]bool, len(locked))
	for _, k := range locked {
		allowed[k] = true
	}
	for k := range next {
		if !allowed[k] {
			return fmt.Errorf("store: update returned unlocked key %s", k)
		}
	}
	return nil
}

func cloneDocs(in map[Key][]byte) map[Key][]byte {
	out := make(map[Key][]byte, len(in))
	for k, v := range in {
		if v != nil {
			out[k] = append([]byte(nil), v...)
		} else {
			out[k] = nil
		}
	}
	return out
}
